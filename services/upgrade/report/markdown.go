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
	"slices"
	"strings"

	godiff "github.com/sourcegraph/go-diff/diff"

	"github.com/AleutianAI/SlotGuard/pkg/ux"
	"github.com/AleutianAI/SlotGuard/services/upgrade"
	"github.com/AleutianAI/SlotGuard/services/upgrade/diff"
	"github.com/AleutianAI/SlotGuard/services/upgrade/layout"
)

// Markdown writes a pull-request comment body: a verdict line, a finding
// table, and the base/head layout listings as a unified diff.
//
// The layout diff is built as a structured file diff and rendered through
// the go-diff printer, so hunk headers always agree with the body. Reports
// decoded from JSON carry no layouts; for those the diff block is omitted.
func Markdown(w io.Writer, r *upgrade.Report) error {
	var b strings.Builder

	fmt.Fprintf(&b, "## Storage layout check: `%s`\n\n", r.Contract)
	fmt.Fprintf(&b, "%s\n\n", summaryLine(r))

	if len(r.Diffs) > 0 {
		b.WriteString("| Severity | Change | Variable | Location | Detail |\n")
		b.WriteString("| --- | --- | --- | --- | --- |\n")
		for _, d := range r.Diffs {
			fmt.Fprintf(&b, "| %s %s | %s | `%s` | `%s:%d` | %s |\n",
				severityMark(d.Severity), d.Severity, d.Title, d.Name,
				d.File, d.Span.Start.Line, tableCell(d.Message))
		}
		b.WriteString("\n")
	}

	if fd, ok := layoutDiff(r); ok {
		printed, err := godiff.PrintFileDiff(fd)
		if err != nil {
			return fmt.Errorf("print layout diff: %w", err)
		}
		b.WriteString("<details>\n<summary>Storage layout diff</summary>\n\n")
		b.WriteString("```diff\n")
		b.Write(printed)
		if !strings.HasSuffix(string(printed), "\n") {
			b.WriteString("\n")
		}
		b.WriteString("```\n\n</details>\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// LayoutListing renders a layout one line per variable, aligned so that
// line diffs between two listings stay readable.
func LayoutListing(l *layout.StorageLayout) []string {
	lines := make([]string, 0, len(l.Variables))
	for _, v := range l.Variables {
		lines = append(lines, fmt.Sprintf("slot %3d offset %2d %-24s %s",
			v.Slot, v.Offset, v.TypeSignature, v.Name))
	}
	return lines
}

func summaryLine(r *upgrade.Report) string {
	base := ""
	if r.BaseRef != "" {
		base = fmt.Sprintf(" against base `%s`", r.BaseRef)
	}
	switch {
	case r.Clean():
		return fmt.Sprintf("**PASS**: no storage layout changes%s.", base)
	case r.Passed:
		return fmt.Sprintf("**PASS**: %s%s.", plural(r.Warnings, "warning"), base)
	default:
		return fmt.Sprintf("**FAIL**: %s, %s%s.", plural(r.Errors, "error"), plural(r.Warnings, "warning"), base)
	}
}

func severityMark(s diff.Severity) string {
	if s == diff.SeverityError {
		return string(ux.IconError)
	}
	return string(ux.IconWarning)
}

func tableCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}

// layoutDiff builds a single full-context hunk covering both listings.
// Returns false when there is nothing to show: a layout is missing or the
// listings are identical.
func layoutDiff(r *upgrade.Report) (*godiff.FileDiff, bool) {
	if r.Base == nil || r.Head == nil {
		return nil, false
	}
	base := LayoutListing(r.Base)
	head := LayoutListing(r.Head)
	if slices.Equal(base, head) {
		return nil, false
	}
	body := unifiedBody(base, head)
	hunk := &godiff.Hunk{
		OrigStartLine: hunkStart(len(base)),
		OrigLines:     int32(len(base)),
		NewStartLine:  hunkStart(len(head)),
		NewLines:      int32(len(head)),
		Body:          []byte(strings.Join(body, "\n") + "\n"),
	}
	return &godiff.FileDiff{
		OrigName: "layout/base",
		NewName:  "layout/head",
		Hunks:    []*godiff.Hunk{hunk},
	}, true
}

// hunkStart follows the unified-diff convention that an empty side is
// written as line 0.
func hunkStart(n int) int32 {
	if n == 0 {
		return 0
	}
	return 1
}

// unifiedBody interleaves the two listings into prefixed hunk body lines,
// keeping common lines (by longest common subsequence) as context.
func unifiedBody(base, head []string) []string {
	n, m := len(base), len(head)
	lcs := make([][]int, n+1)
	for i := range lcs {
		lcs[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			switch {
			case base[i] == head[j]:
				lcs[i][j] = lcs[i+1][j+1] + 1
			case lcs[i+1][j] >= lcs[i][j+1]:
				lcs[i][j] = lcs[i+1][j]
			default:
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	body := make([]string, 0, n+m)
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case base[i] == head[j]:
			body = append(body, " "+base[i])
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			body = append(body, "-"+base[i])
			i++
		default:
			body = append(body, "+"+head[j])
			j++
		}
	}
	for ; i < n; i++ {
		body = append(body, "-"+base[i])
	}
	for ; j < m; j++ {
		body = append(body, "+"+head[j])
	}
	return body
}
