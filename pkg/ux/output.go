// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides terminal output styling for the SlotGuard CLI.
//
// Renderers take a Styles value instead of reaching for a global, so the
// same code path serves colored terminals, plain pipes, and tests. Pick
// DefaultStyles or PlainStyles at the edge, typically with ColorEnabled.
package ux

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// The palette keeps the Aleutian house teals so slotguard output sits
// next to the org's other tools. Verdict colors stay conventional; red
// always means the upgrade is unsafe.
var (
	colorBrand      = lipgloss.Color("#20B9B4") // house teal
	colorBrandLight = lipgloss.Color("#2CD7C7")
	colorBrandDark  = lipgloss.Color("#16858E")
	colorSlate      = lipgloss.Color("#2C4A54")

	colorPass = colorBrandLight
	colorWarn = lipgloss.Color("#F4D03F")
	colorFail = lipgloss.Color("#E74C3C")
)

// Styles is the set of lipgloss styles report renderers draw with.
type Styles struct {
	Title   lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style

	// Verdict banners
	Box      lipgloss.Style
	ErrorBox lipgloss.Style
}

// DefaultStyles returns the colored palette.
func DefaultStyles() Styles {
	return Styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(colorBrand),
		Bold:    lipgloss.NewStyle().Bold(true),
		Muted:   lipgloss.NewStyle().Foreground(colorSlate),
		Success: lipgloss.NewStyle().Foreground(colorPass),
		Warning: lipgloss.NewStyle().Foreground(colorWarn),
		Error:   lipgloss.NewStyle().Foreground(colorFail),

		Box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBrandDark).
			Padding(0, 1),
		ErrorBox: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorFail).
			Padding(0, 1),
	}
}

// PlainStyles returns styles that render text verbatim, for pipes,
// redirects and CI logs.
func PlainStyles() Styles {
	plain := lipgloss.NewStyle()
	return Styles{
		Title:    plain,
		Bold:     plain,
		Muted:    plain,
		Success:  plain,
		Warning:  plain,
		Error:    plain,
		Box:      plain,
		ErrorBox: plain,
	}
}

// ColorEnabled reports whether f is an interactive terminal worth
// coloring. NO_COLOR wins over detection.
func ColorEnabled(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// AutoStyles picks DefaultStyles or PlainStyles for the given file.
func AutoStyles(f *os.File) Styles {
	if ColorEnabled(f) {
		return DefaultStyles()
	}
	return PlainStyles()
}

// Icon is a status glyph renderers prefix to lines.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconArrow   Icon = "→"
)

// Render colors the icon to match its meaning.
func (i Icon) Render(s Styles) string {
	switch i {
	case IconSuccess:
		return s.Success.Render(string(i))
	case IconWarning:
		return s.Warning.Render(string(i))
	case IconError:
		return s.Error.Render(string(i))
	case IconPending:
		return s.Muted.Render(string(i))
	default:
		return string(i)
	}
}
