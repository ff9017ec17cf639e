// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resolve anchors diff records to source locations and formats
// them for display.
//
// The resolver consumes records, it never mutates them: severity and title
// come from the static policy, the message is composed here, and the span
// comes from the head branch's scanned source. Layout and source must
// describe the same build; a head-side record whose variable has no
// declaration means the pipeline fed mismatched inputs, which is fatal.
package resolve

import (
	"encoding/hex"
	"fmt"

	"github.com/AleutianAI/SlotGuard/services/upgrade/diff"
	"github.com/AleutianAI/SlotGuard/services/upgrade/solidity"
)

// FormattedDiff is a display-ready record: classified, ranked, messaged,
// and anchored to the head source.
type FormattedDiff struct {
	Kind     diff.Kind     `json:"kind"`
	Severity diff.Severity `json:"severity"`
	Title    string        `json:"title"`
	Message  string        `json:"message"`

	Name     string `json:"name"`
	PrevName string `json:"prev_name,omitempty"`

	// File and Span locate the record in the head source. Removals anchor
	// at the contract definition unless the head source still declares the
	// name (a variable turned constant, for example).
	File string              `json:"file"`
	Span solidity.SourceSpan `json:"span"`

	// OnChainEvidence is the verifier's storage word as 0x-prefixed hex,
	// empty when no read happened.
	OnChainEvidence string `json:"on_chain_evidence,omitempty"`
}

// SourceLocationNotFoundError means a head-side record references a
// variable the head source does not declare. Layout and source are
// supposed to come from the same build, so this is an internal
// consistency failure of the check pipeline, not a finding.
type SourceLocationNotFoundError struct {
	Variable string
	Contract string
}

func (e *SourceLocationNotFoundError) Error() string {
	if e.Variable == "" {
		return fmt.Sprintf("source location not found: contract %s is not declared in the scanned source", e.Contract)
	}
	return fmt.Sprintf("source location not found: variable %s is not declared in contract %s", e.Variable, e.Contract)
}

// Resolver anchors records for one contract to its scanned head source.
//
// Thread Safety: Safe for concurrent use once constructed.
type Resolver struct {
	file *solidity.File
	def  *solidity.ContractDefinition
}

// NewResolver binds a scanned source file to the named contract.
//
// The contract name may be bare (Vault) or fully qualified
// (src/Vault.sol:Vault); only the bare part is matched against the source.
func NewResolver(file *solidity.File, contract string) (*Resolver, error) {
	name := bareContractName(contract)
	def, ok := file.Contract(name)
	if !ok {
		return nil, &SourceLocationNotFoundError{Contract: name}
	}
	return &Resolver{file: file, def: def}, nil
}

// Format classifies and messages one record without anchoring it to
// source. Callers with no head source at hand (the HTTP surface) use it
// directly; Resolve builds on it and adds the anchor.
func Format(rec diff.Record) FormattedDiff {
	fd := FormattedDiff{
		Kind:     rec.Kind,
		Severity: rec.Kind.Severity(),
		Title:    rec.Kind.Title(),
		Message:  message(rec),
		Name:     rec.Name,
		PrevName: rec.PrevName,
	}
	if len(rec.OnChainEvidence) > 0 {
		fd.OnChainEvidence = "0x" + hex.EncodeToString(rec.OnChainEvidence)
	}
	return fd
}

// FormatAll formats a record list without source anchors.
func FormatAll(recs []diff.Record) []FormattedDiff {
	out := make([]FormattedDiff, 0, len(recs))
	for _, rec := range recs {
		out = append(out, Format(rec))
	}
	return out
}

// Resolve formats one record and anchors it in the head source.
//
// # Description
//
// Head-anchored kinds (added, renamed, type changed, slot moved) resolve
// to the variable's declaration span. Removals resolve to the declaration
// when one still exists, else to the contract definition span.
//
// # Inputs
//
//   - rec: One diff record. Not mutated.
//
// # Outputs
//
//   - FormattedDiff: Display-ready record.
//   - error: *SourceLocationNotFoundError when a head-side variable has
//     no declaration.
func (r *Resolver) Resolve(rec diff.Record) (FormattedDiff, error) {
	fd := Format(rec)
	fd.File = r.file.Path

	if rec.Kind == diff.KindVariableRemoved {
		if decl, ok := r.def.Variable(rec.Name); ok {
			fd.Span = decl.Span
		} else {
			fd.Span = r.def.Span
		}
		return fd, nil
	}

	decl, ok := r.def.Variable(rec.Name)
	if !ok {
		return FormattedDiff{}, &SourceLocationNotFoundError{Variable: rec.Name, Contract: r.def.Name}
	}
	fd.Span = decl.Span
	return fd, nil
}

// ResolveAll formats a record list, stopping at the first failure.
func (r *Resolver) ResolveAll(recs []diff.Record) ([]FormattedDiff, error) {
	out := make([]FormattedDiff, 0, len(recs))
	for _, rec := range recs {
		fd, err := r.Resolve(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, fd)
	}
	return out, nil
}

func message(rec diff.Record) string {
	switch rec.Kind {
	case diff.KindVariableAdded:
		return fmt.Sprintf("%s (%s) added at %s", rec.Name, rec.Head.TypeSignature, rec.Head.Position())
	case diff.KindVariableRemoved:
		msg := fmt.Sprintf("%s (%s) removed; existing deployments keep its data at %s",
			rec.Name, rec.Base.TypeSignature, rec.Base.Position())
		if len(rec.OnChainEvidence) > 0 {
			msg += fmt.Sprintf(", live storage word 0x%s", hex.EncodeToString(rec.OnChainEvidence))
		}
		return msg
	case diff.KindVariableRenamed:
		return fmt.Sprintf("%s renamed to %s at %s, type %s unchanged",
			rec.PrevName, rec.Name, rec.Head.Position(), rec.Head.TypeSignature)
	case diff.KindTypeChanged:
		if rec.Base.Position() == rec.Head.Position() {
			return fmt.Sprintf("%s changed type %s -> %s at %s",
				rec.Name, rec.Base.TypeSignature, rec.Head.TypeSignature, rec.Head.Position())
		}
		return fmt.Sprintf("%s changed type %s -> %s and moved %s -> %s",
			rec.Name, rec.Base.TypeSignature, rec.Head.TypeSignature, rec.Base.Position(), rec.Head.Position())
	case diff.KindSlotChanged:
		return fmt.Sprintf("%s (%s) moved %s -> %s",
			rec.Name, rec.Head.TypeSignature, rec.Base.Position(), rec.Head.Position())
	default:
		return fmt.Sprintf("%s storage layout entry changed", rec.Name)
	}
}

// bareContractName strips the src/File.sol: prefix of a fully qualified
// contract name.
func bareContractName(contract string) string {
	for i := len(contract) - 1; i >= 0; i-- {
		if contract[i] == ':' {
			return contract[i+1:]
		}
	}
	return contract
}
