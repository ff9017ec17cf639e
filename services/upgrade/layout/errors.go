// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package layout

import (
	"fmt"
	"strings"
)

// MalformedLayoutError reports layout data that violates the structural
// invariants or cannot be decoded from the wire format. It always aborts
// the comparison; a broken snapshot is a pipeline defect, not a property
// of the contract under review.
type MalformedLayoutError struct {
	// Contract is the fully qualified contract name when known.
	Contract string

	// Variable names the offending variable when the defect is tied to one.
	Variable string

	// Reason is a short human-readable description of the defect.
	Reason string

	// Err is the underlying decode error, if any.
	Err error
}

func (e *MalformedLayoutError) Error() string {
	var b strings.Builder
	b.WriteString("malformed storage layout")
	if e.Contract != "" {
		fmt.Fprintf(&b, " for %s", e.Contract)
	}
	if e.Variable != "" {
		fmt.Fprintf(&b, ": variable %q", e.Variable)
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, ": %s", e.Reason)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *MalformedLayoutError) Unwrap() error { return e.Err }
