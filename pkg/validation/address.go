// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided inputs that end up in
// subprocess calls, RPC payloads, or object-store keys. Using these
// validators prevents injection attacks (command injection, path traversal,
// malformed RPC parameters). Config, CLI and HTTP layers all share them.
package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// addressPattern matches a 20-byte EVM address in hex notation.
var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// identifierPattern matches a Solidity contract or variable identifier.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// ValidateAddress validates an EVM contract address.
//
// Valid addresses:
//   - 0x prefix
//   - exactly 40 hex digits
//
// Checksum casing (EIP-55) is accepted but not verified.
//
// Example:
//
//	if err := validation.ValidateAddress(addr); err != nil {
//	    return nil, fmt.Errorf("invalid address: %w", err)
//	}
//	// Safe to use as an eth_getStorageAt parameter
func ValidateAddress(addr string) error {
	if addr == "" {
		return fmt.Errorf("address cannot be empty")
	}

	if !addressPattern.MatchString(addr) {
		return fmt.Errorf("invalid address format: %q (must be 0x followed by 40 hex digits)", addr)
	}

	return nil
}

// NormalizeAddress validates an address and returns it trimmed and with
// the hex digits lowercased, the form the RPC layer sends.
func NormalizeAddress(addr string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(addr))
	if err := ValidateAddress(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}

// ValidateContractSpec validates a contract spec as given on the command
// line or in config: either a bare contract name (Vault) or a qualified
// path:name pair (src/Vault.sol:Vault).
//
// The spec reaches the build tool as a subprocess argument and the object
// store as part of a key, so both parts are held to a strict shape:
//   - the name is a Solidity identifier
//   - the path, when present, ends in .sol and contains no traversal,
//     whitespace, or control characters
func ValidateContractSpec(spec string) error {
	if spec == "" {
		return fmt.Errorf("contract spec cannot be empty")
	}

	name := spec
	if i := strings.LastIndex(spec, ":"); i >= 0 {
		path := spec[:i]
		name = spec[i+1:]
		if err := validateSourcePath(path); err != nil {
			return fmt.Errorf("invalid contract spec %q: %w", spec, err)
		}
	}

	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("invalid contract spec %q: %q is not a contract identifier", spec, name)
	}
	return nil
}

// ValidateContractSpecs validates a spec list, as configured for a
// project. Returns an error listing every invalid spec.
func ValidateContractSpecs(specs []string) error {
	var invalid []string
	for _, s := range specs {
		if err := ValidateContractSpec(s); err != nil {
			invalid = append(invalid, s)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid contract specs: %v", invalid)
	}
	return nil
}

// ValidateEndpoint validates an RPC endpoint URL. HTTP and WebSocket
// schemes are accepted; anything else is rejected before a dial is
// attempted.
func ValidateEndpoint(raw string) error {
	if raw == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid endpoint %q: %w", raw, err)
	}

	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("invalid endpoint %q: scheme must be http, https, ws or wss", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid endpoint %q: missing host", raw)
	}
	return nil
}

func validateSourcePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty source path")
	}
	if !strings.HasSuffix(path, ".sol") {
		return fmt.Errorf("source path %q does not end in .sol", path)
	}
	if strings.Contains(path, "..") {
		return fmt.Errorf("source path %q contains a traversal", path)
	}
	for _, r := range path {
		if r <= ' ' || r == 0x7f {
			return fmt.Errorf("source path %q contains whitespace or control characters", path)
		}
	}
	return nil
}
