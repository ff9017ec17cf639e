// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package layout defines the storage layout model for EVM contracts and the
// decoder for the layout JSON emitted by the build tool.
//
// A layout is the ordered list of state variables a compiled contract's
// storage occupies: for each variable its canonical type token, byte size,
// and absolute (slot, byte offset) coordinate. Layouts are value snapshots
// of a single build; nothing in this package touches the network.
package layout

import (
	"fmt"
)

// SlotBytes is the width of one EVM storage slot.
const SlotBytes = 32

// StorageVariable is a single state variable's placement in contract storage.
type StorageVariable struct {
	// Name is the declared variable name, case-sensitive.
	Name string `json:"name"`

	// TypeSignature is the canonical encoder type token (t_uint256,
	// t_mapping(t_address,t_uint256), ...). Tokens are opaque: two
	// variables have the same type iff the tokens are byte-equal.
	TypeSignature string `json:"type"`

	// ByteSize is the number of bytes the variable occupies in storage.
	ByteSize uint64 `json:"byte_size"`

	// Slot is the index of the 32-byte word the variable starts in.
	Slot uint64 `json:"slot"`

	// Offset is the byte offset inside the slot, 0 through 31.
	Offset uint64 `json:"offset"`
}

// Position returns the variable's (slot, offset) coordinate.
func (v StorageVariable) Position() Position {
	return Position{Slot: v.Slot, Offset: v.Offset}
}

func (v StorageVariable) startByte() uint64 { return v.Slot*SlotBytes + v.Offset }
func (v StorageVariable) endByte() uint64   { return v.startByte() + v.ByteSize }

// Position is an absolute storage coordinate.
type Position struct {
	Slot   uint64
	Offset uint64
}

func (p Position) String() string {
	return fmt.Sprintf("slot %d offset %d", p.Slot, p.Offset)
}

// StorageLayout is one contract's complete storage layout, in declaration
// order. The zero value is a valid empty layout.
type StorageLayout struct {
	// Contract is the fully qualified contract name when the wire data
	// carries one (src/Vault.sol:Vault), else empty.
	Contract string `json:"contract,omitempty"`

	// Variables in source declaration order. Declaration order and
	// ascending (slot, offset) order coincide for well-formed layouts.
	Variables []StorageVariable `json:"variables"`
}

// Validate checks the structural invariants every well-formed layout holds:
// named variables with non-empty type tokens, offsets inside a slot,
// multi-word variables starting at offset 0, ascending (slot, offset)
// order, and no overlapping byte ranges.
//
// A violation means the layout cannot be diffed; the error is always a
// *MalformedLayoutError and callers must treat it as fatal rather than as
// a finding about the contract.
func (l *StorageLayout) Validate() error {
	var prevEnd uint64
	var prevStart uint64
	for i, v := range l.Variables {
		if v.Name == "" {
			return l.malformed("", fmt.Sprintf("variable at index %d has no name", i))
		}
		if v.TypeSignature == "" {
			return l.malformed(v.Name, "empty type signature")
		}
		if v.ByteSize == 0 {
			return l.malformed(v.Name, "zero byte size")
		}
		if v.Offset >= SlotBytes {
			return l.malformed(v.Name, fmt.Sprintf("offset %d outside slot", v.Offset))
		}
		if v.Offset != 0 && v.Offset+v.ByteSize > SlotBytes {
			return l.malformed(v.Name, "variable crosses a slot boundary from a packed offset")
		}
		start := v.startByte()
		if i > 0 {
			if start < prevStart {
				return l.malformed(v.Name, "variables not in ascending slot order")
			}
			if start < prevEnd {
				return l.malformed(v.Name, fmt.Sprintf("overlaps preceding variable %q", l.Variables[i-1].Name))
			}
		}
		prevStart = start
		prevEnd = v.endByte()
	}
	return nil
}

func (l *StorageLayout) malformed(variable, reason string) error {
	return &MalformedLayoutError{Contract: l.Contract, Variable: variable, Reason: reason}
}
