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

import "testing"

func TestSeverityByKind(t *testing.T) {
	tests := []struct {
		kind Kind
		want Severity
	}{
		{KindVariableAdded, SeverityWarning},
		{KindVariableRenamed, SeverityWarning},
		{KindVariableRemoved, SeverityError},
		{KindTypeChanged, SeverityError},
		{KindSlotChanged, SeverityError},
		{Kind("SOMETHING_NEW"), SeverityError},
	}
	for _, tc := range tests {
		if got := tc.kind.Severity(); got != tc.want {
			t.Errorf("Severity(%s) = %s, want %s", tc.kind, got, tc.want)
		}
	}
}

func TestTitleByKind(t *testing.T) {
	for _, k := range []Kind{KindVariableAdded, KindVariableRemoved, KindVariableRenamed, KindTypeChanged, KindSlotChanged} {
		if k.Title() == "" {
			t.Errorf("kind %s has no title", k)
		}
	}
	if Kind("SOMETHING_NEW").Title() == "" {
		t.Error("unknown kind must still map to a generic title")
	}
}

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		in   string
		want Severity
	}{
		{"warning", SeverityWarning},
		{"Warning", SeverityWarning},
		{"error", SeverityError},
		{"ERROR", SeverityError},
		{"critical", SeverityError},
		{"", SeverityError},
	}
	for _, tc := range tests {
		if got := ParseSeverity(tc.in); got != tc.want {
			t.Errorf("ParseSeverity(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestSeverityAtLeast(t *testing.T) {
	if !SeverityError.AtLeast(SeverityWarning) {
		t.Error("error should satisfy a warning threshold")
	}
	if SeverityWarning.AtLeast(SeverityError) {
		t.Error("warning should not satisfy an error threshold")
	}
	if !SeverityWarning.AtLeast(SeverityWarning) {
		t.Error("a severity satisfies its own threshold")
	}
}
