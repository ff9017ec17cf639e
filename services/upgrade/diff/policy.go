// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package diff

import "strings"

// Severity ranks a difference for the pass/fail decision. The mapping from
// Kind to Severity is static policy, kept apart from the alignment engine
// so the two can change independently.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// severityOrder maps severity to numeric order (higher = more severe).
var severityOrder = map[Severity]int{
	SeverityWarning: 0,
	SeverityError:   1,
}

// ParseSeverity converts a string to Severity. Unknown strings parse as
// error so a typo in a threshold never loosens the gate.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(s) {
	case "warning":
		return SeverityWarning
	case "error":
		return SeverityError
	default:
		return SeverityError
	}
}

// AtLeast returns true if this severity is at or above the threshold.
func (s Severity) AtLeast(threshold Severity) bool {
	return severityOrder[s] >= severityOrder[threshold]
}

// severityByKind is the static policy table. Layout moves and type
// reinterpretations corrupt state on upgrade, so they are errors. Additions
// and renames keep every existing variable's storage intact, so they only
// warn. Removals are errors when surfaced: a removed variable's slot is
// dead weight the next append will silently reuse.
var severityByKind = map[Kind]Severity{
	KindVariableAdded:   SeverityWarning,
	KindVariableRenamed: SeverityWarning,
	KindVariableRemoved: SeverityError,
	KindTypeChanged:     SeverityError,
	KindSlotChanged:     SeverityError,
}

// titleByKind is the static display title table. Message bodies live with
// the formatter, not here.
var titleByKind = map[Kind]string{
	KindVariableAdded:   "Storage variable added",
	KindVariableRemoved: "Storage variable removed",
	KindVariableRenamed: "Storage variable renamed",
	KindTypeChanged:     "Variable type changed",
	KindSlotChanged:     "Storage slot moved",
}

// Severity returns the pass/fail rank for the kind. Unknown kinds rank as
// error (fail closed).
func (k Kind) Severity() Severity {
	if s, ok := severityByKind[k]; ok {
		return s
	}
	return SeverityError
}

// Title returns the short display title for the kind.
func (k Kind) Title() string {
	if t, ok := titleByKind[k]; ok {
		return t
	}
	return "Storage layout changed"
}
