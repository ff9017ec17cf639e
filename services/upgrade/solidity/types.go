// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package solidity

// SourcePoint is a 1-based position in a source file.
type SourcePoint struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// SourceSpan is an inclusive range between two source points.
type SourceSpan struct {
	Start SourcePoint `json:"start"`
	End   SourcePoint `json:"end"`
}

// VariableDeclaration is one state variable declaration inside a contract
// body.
type VariableDeclaration struct {
	// Name is the declared identifier.
	Name string `json:"name"`

	// TypeText is the declared type expression as written in source
	// (uint256, mapping(address => uint256), IERC20, uint256[]). Display
	// only; layout comparison uses encoder type tokens, not this.
	TypeText string `json:"type_text"`

	// Constant and Immutable mark declarations that occupy no storage
	// slot. The layout never lists them, but locating them is still
	// useful for diagnostics.
	Constant  bool `json:"constant,omitempty"`
	Immutable bool `json:"immutable,omitempty"`

	// Span covers the declaration from its first token through the
	// terminating semicolon.
	Span SourceSpan `json:"span"`
}

// ContractDefinition is one contract, abstract contract, or library block.
type ContractDefinition struct {
	Name string `json:"name"`

	// Span covers the whole definition, keyword through closing brace.
	Span SourceSpan `json:"span"`

	// Variables in declaration order.
	Variables []VariableDeclaration `json:"variables"`
}

// Variable returns the named state variable declaration, if present.
func (c *ContractDefinition) Variable(name string) (*VariableDeclaration, bool) {
	for i := range c.Variables {
		if c.Variables[i].Name == name {
			return &c.Variables[i], true
		}
	}
	return nil, false
}

// ScanIssue is a non-fatal oddity encountered while scanning, kept for
// diagnostics.
type ScanIssue struct {
	Message string `json:"message"`
	Line    int    `json:"line"`
}

// File is the scan result for one source unit.
type File struct {
	Path      string               `json:"path"`
	Contracts []ContractDefinition `json:"contracts"`
	Issues    []ScanIssue          `json:"issues,omitempty"`
}

// Contract returns the named definition, if the file declares it. Matching
// is by bare contract name, case-sensitive.
func (f *File) Contract(name string) (*ContractDefinition, bool) {
	for i := range f.Contracts {
		if f.Contracts[i].Name == name {
			return &f.Contracts[i], true
		}
	}
	return nil, false
}
