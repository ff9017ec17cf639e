// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package diff aligns two storage layouts of the same contract and
// classifies every difference that matters for upgrade safety.
//
// The comparison works on explicit (slot, offset) coordinates, never on
// array positions, so inserting a variable mid-contract shifts exactly the
// variables whose slots actually moved. The engine is pure: no I/O, no
// severity decisions (see policy.go), deterministic output for identical
// inputs.
package diff

import (
	"github.com/AleutianAI/SlotGuard/services/upgrade/layout"
)

// Kind classifies one aligned difference between two layouts.
type Kind string

const (
	KindVariableAdded   Kind = "VARIABLE_ADDED"
	KindVariableRemoved Kind = "VARIABLE_REMOVED"
	KindVariableRenamed Kind = "VARIABLE_RENAMED"
	KindTypeChanged     Kind = "TYPE_CHANGED"
	KindSlotChanged     Kind = "SLOT_CHANGED"
)

// Record is one classified difference. Base and Head point into the input
// layouts: Base is nil for additions, Head is nil for removals, both are
// set otherwise. PrevName is set only for renames. Records are never
// mutated after Compare returns; the on-chain verifier attaches evidence
// to copies.
type Record struct {
	Kind Kind `json:"kind"`

	// Name is the head-side variable name, or the base-side name for
	// removals.
	Name string `json:"name"`

	// PrevName is the base-side name a renamed variable had.
	PrevName string `json:"prev_name,omitempty"`

	Base *layout.StorageVariable `json:"base,omitempty"`
	Head *layout.StorageVariable `json:"head,omitempty"`

	// OnChainEvidence is the raw 32-byte storage word read from a live
	// deployment for a removed variable's slot, nil when no read was
	// performed. Evidence never changes the record's classification.
	OnChainEvidence []byte `json:"on_chain_evidence,omitempty"`
}

// Options controls which computed differences surface in the result.
type Options struct {
	// CheckRemovals surfaces VARIABLE_REMOVED records. When false,
	// removals are still computed and kept on Result.Removals so the
	// verifier can annotate them, but they do not appear in
	// Result.Records and cannot fail a check.
	CheckRemovals bool
}

// Result holds the aligned differences between a base and a head layout.
type Result struct {
	// Records is the surfaced list: head-declaration order for every
	// difference anchored to a head variable, then removals in base
	// declaration order (present only when Options.CheckRemovals).
	Records []Record

	// Removals is every VARIABLE_REMOVED in base declaration order,
	// regardless of gating.
	Removals []Record
}

// Empty reports whether the surfaced list has no records.
func (r *Result) Empty() bool { return len(r.Records) == 0 }

// Compare aligns two layouts of one contract and classifies the
// differences.
//
// # Description
//
// Alignment runs in two passes. The primary pass matches variables by
// name: a matched pair whose type tokens differ is TYPE_CHANGED (even if
// the slot also moved); a pair with equal types at different coordinates
// is SLOT_CHANGED; equal type and coordinates is a clean match. The
// secondary pass matches the leftovers by identical (slot, offset, type):
// such a pair is VARIABLE_RENAMED, ambiguity broken by lowest base
// declaration index. Remaining head variables are VARIABLE_ADDED,
// remaining base variables VARIABLE_REMOVED.
//
// Runs in O(n+m) over the two variable counts using two hash maps.
//
// # Inputs
//
//   - base: The baseline layout (the deployed contract's build).
//   - head: The candidate layout (the proposed upgrade's build).
//   - opts: Gating options.
//
// # Outputs
//
//   - *Result: Surfaced records plus the ungated removal list. Never nil.
//
// Both layouts are assumed to have passed Validate; Compare itself never
// fails.
func Compare(base, head *layout.StorageLayout, opts Options) *Result {
	baseVars := base.Variables
	headVars := head.Variables

	baseByName := make(map[string]int, len(baseVars))
	for i, v := range baseVars {
		baseByName[v.Name] = i
	}

	// Base indices by coordinate+type, declaration order preserved for
	// the lowest-index tie-break.
	type posKey struct {
		pos layout.Position
		sig string
	}
	baseByPos := make(map[posKey][]int, len(baseVars))
	for i, v := range baseVars {
		k := posKey{pos: v.Position(), sig: v.TypeSignature}
		baseByPos[k] = append(baseByPos[k], i)
	}

	consumed := make([]bool, len(baseVars))
	records := make([]Record, 0)

	// Primary pass: name matches. Classification is final here; the
	// secondary pass only sees unmatched variables.
	kinds := make([]Kind, len(headVars))
	partners := make([]int, len(headVars))
	for i := range partners {
		partners[i] = -1
	}
	for i, hv := range headVars {
		bi, ok := baseByName[hv.Name]
		if !ok {
			continue
		}
		consumed[bi] = true
		partners[i] = bi
		bv := baseVars[bi]
		switch {
		case bv.TypeSignature != hv.TypeSignature:
			kinds[i] = KindTypeChanged
		case bv.Position() != hv.Position():
			kinds[i] = KindSlotChanged
		default:
			// Clean match, no record.
		}
	}

	// Secondary pass: rename detection for head variables with no name
	// match, in head order so the tie-break is deterministic.
	for i, hv := range headVars {
		if partners[i] != -1 {
			continue
		}
		k := posKey{pos: hv.Position(), sig: hv.TypeSignature}
		for _, bi := range baseByPos[k] {
			if consumed[bi] {
				continue
			}
			consumed[bi] = true
			partners[i] = bi
			kinds[i] = KindVariableRenamed
			break
		}
		if partners[i] == -1 {
			kinds[i] = KindVariableAdded
		}
	}

	// Emit head-anchored records in head declaration order.
	for i, hv := range headVars {
		if kinds[i] == "" {
			continue
		}
		rec := Record{Kind: kinds[i], Name: hv.Name}
		h := hv
		rec.Head = &h
		if bi := partners[i]; bi != -1 {
			b := baseVars[bi]
			rec.Base = &b
			if rec.Kind == KindVariableRenamed {
				rec.PrevName = b.Name
			}
		}
		records = append(records, rec)
	}

	// Removals: base variables nothing in head accounted for, in base
	// declaration order.
	removals := make([]Record, 0)
	for i, bv := range baseVars {
		if consumed[i] {
			continue
		}
		b := bv
		removals = append(removals, Record{
			Kind: KindVariableRemoved,
			Name: bv.Name,
			Base: &b,
		})
	}

	if opts.CheckRemovals {
		records = append(records, removals...)
	}

	return &Result{Records: records, Removals: removals}
}
