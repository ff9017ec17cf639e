// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package upgrade

import (
	"time"

	"github.com/AleutianAI/SlotGuard/services/upgrade/diff"
	"github.com/AleutianAI/SlotGuard/services/upgrade/layout"
	"github.com/AleutianAI/SlotGuard/services/upgrade/resolve"
)

// Report is the outcome of one layout check, ready for rendering.
type Report struct {
	// Contract is the identifier the check ran against, as requested.
	Contract string `json:"contract"`

	// BaseRef is the ref the baseline snapshot was published under,
	// empty when the baseline came from a local file.
	BaseRef string `json:"base_ref,omitempty"`

	GeneratedAt time.Time `json:"generated_at"`
	DurationMs  int64     `json:"duration_ms"`

	// Passed is false iff any surfaced difference carries error severity.
	Passed   bool `json:"passed"`
	Errors   int  `json:"errors"`
	Warnings int  `json:"warnings"`

	// Diffs is every surfaced difference, classified, ranked and anchored
	// to the head source, in surfacing order.
	Diffs []resolve.FormattedDiff `json:"diffs"`

	// Base and Head carry the compared layouts for renderers that show
	// full listings. They do not serialize.
	Base *layout.StorageLayout `json:"-"`
	Head *layout.StorageLayout `json:"-"`
}

// Tally derives the counters and the verdict from the resolved diffs.
// Anything that assembles a Report by hand calls this last.
func (r *Report) Tally() {
	r.Errors, r.Warnings = 0, 0
	for _, d := range r.Diffs {
		if d.Severity == diff.SeverityError {
			r.Errors++
		} else {
			r.Warnings++
		}
	}
	r.Passed = r.Errors == 0
}

// Clean reports whether the check found no differences at all.
func (r *Report) Clean() bool { return len(r.Diffs) == 0 }
