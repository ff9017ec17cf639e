// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/AleutianAI/SlotGuard/services/upgrade"
)

// Annotations writes GitHub Actions workflow commands, one per finding,
// wrapped in a collapsible log group. Each finding becomes
//
//	::error file=src/Vault.sol,line=6,endLine=6,title=Variable removed::message
//
// with the severity choosing between ::error and ::warning. Property
// values and message data are percent-escaped per the workflow-command
// rules so multi-line messages survive the runner's line parser.
func Annotations(w io.Writer, r *upgrade.Report) error {
	var b strings.Builder

	fmt.Fprintf(&b, "::group::%s\n", escapeData("Storage layout check: "+r.Contract))
	if len(r.Diffs) == 0 {
		fmt.Fprintf(&b, "::notice title=%s::%s\n",
			escapeProperty("Storage layout check"),
			escapeData("no storage layout changes for "+r.Contract))
	}
	for _, d := range r.Diffs {
		fmt.Fprintf(&b, "::%s file=%s,line=%d,endLine=%d,title=%s::%s\n",
			d.Severity,
			escapeProperty(d.File), d.Span.Start.Line, d.Span.End.Line,
			escapeProperty(d.Title),
			escapeData(d.Message))
	}
	b.WriteString("::endgroup::\n")

	_, err := io.WriteString(w, b.String())
	return err
}

// escapeData escapes the message part of a workflow command.
func escapeData(s string) string {
	s = strings.ReplaceAll(s, "%", "%25")
	s = strings.ReplaceAll(s, "\r", "%0D")
	s = strings.ReplaceAll(s, "\n", "%0A")
	return s
}

// escapeProperty escapes a key=value property value, which additionally
// cannot contain the property and command delimiters.
func escapeProperty(s string) string {
	s = escapeData(s)
	s = strings.ReplaceAll(s, ":", "%3A")
	s = strings.ReplaceAll(s, ",", "%2C")
	return s
}
