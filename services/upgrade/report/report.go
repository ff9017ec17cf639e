// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package report renders check outcomes for the surfaces that consume
// them: terminals, machines, PR comments, and CI log annotations.
//
// Renderers never decide anything; they draw the Report they are given.
// Styling is injected so the same renderer serves colored terminals and
// plain pipes.
package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/AleutianAI/SlotGuard/pkg/ux"
	"github.com/AleutianAI/SlotGuard/services/upgrade"
	"github.com/AleutianAI/SlotGuard/services/upgrade/diff"
)

// Text writes a severity-colored listing for terminals.
func Text(w io.Writer, r *upgrade.Report, styles ux.Styles) error {
	var err error
	p := func(format string, args ...any) {
		if err == nil {
			_, err = fmt.Fprintf(w, format, args...)
		}
	}

	p("%s  %s\n", styles.Title.Render("Storage layout check"), styles.Bold.Render(r.Contract))
	p("%s\n\n", styles.Muted.Render(contextLine(r)))

	for _, d := range r.Diffs {
		icon, style := severityLook(d.Severity, styles)
		p("  %s %s  %s\n", icon.Render(styles), style.Render(d.Title), styles.Bold.Render(d.Name))
		p("      %s\n", styles.Muted.Render(fmt.Sprintf("%s:%d:%d", d.File, d.Span.Start.Line, d.Span.Start.Column)))
		p("      %s\n\n", d.Message)
	}

	box := styles.Box
	if !r.Passed {
		box = styles.ErrorBox
	}
	p("%s\n", box.Render(verdictLine(r, styles)))
	return err
}

// JSON writes the report as indented JSON, one document.
func JSON(w io.Writer, r *upgrade.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func contextLine(r *upgrade.Report) string {
	base := "base: local file"
	if r.BaseRef != "" {
		base = "base: " + r.BaseRef
	}
	return fmt.Sprintf("%s (%dms)", base, r.DurationMs)
}

func severityLook(s diff.Severity, styles ux.Styles) (ux.Icon, func(...string) string) {
	if s == diff.SeverityError {
		return ux.IconError, styles.Error.Render
	}
	return ux.IconWarning, styles.Warning.Render
}

func verdictLine(r *upgrade.Report, styles ux.Styles) string {
	switch {
	case r.Clean():
		return fmt.Sprintf("%s %s", ux.IconSuccess.Render(styles), styles.Success.Render("no storage layout changes"))
	case r.Passed:
		return fmt.Sprintf("%s %s", ux.IconSuccess.Render(styles),
			styles.Success.Render(fmt.Sprintf("passed with %s", plural(r.Warnings, "warning"))))
	default:
		return fmt.Sprintf("%s %s", ux.IconError.Render(styles),
			styles.Error.Render(fmt.Sprintf("unsafe storage layout change: %s, %s",
				plural(r.Errors, "error"), plural(r.Warnings, "warning"))))
	}
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
