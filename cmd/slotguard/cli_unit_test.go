// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/AleutianAI/SlotGuard/cmd/slotguard/config"
	"github.com/AleutianAI/SlotGuard/services/upgrade"
	"github.com/AleutianAI/SlotGuard/services/upgrade/diff"
	"github.com/AleutianAI/SlotGuard/services/upgrade/resolve"
)

// TestResolveContract tests contract selection from flag and config.
func TestResolveContract(t *testing.T) {
	tests := []struct {
		name      string
		flag      string
		contracts []string
		want      string
		wantErr   bool
	}{
		{name: "flag wins", flag: "src/Vault.sol:Vault", contracts: []string{"Other"}, want: "src/Vault.sol:Vault"},
		{name: "sole configured contract", contracts: []string{"Vault"}, want: "Vault"},
		{name: "nothing configured", wantErr: true},
		{name: "ambiguous config", contracts: []string{"Vault", "Token"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Project.Contracts = tt.contracts

			got, err := resolveContract(cfg, tt.flag)
			if (err != nil) != tt.wantErr {
				t.Fatalf("resolveContract() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("resolveContract() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestResolveSource tests source derivation from qualified specs.
func TestResolveSource(t *testing.T) {
	tests := []struct {
		name     string
		contract string
		flag     string
		want     string
		wantErr  bool
	}{
		{name: "flag wins", contract: "src/Vault.sol:Vault", flag: "lib/V.sol", want: "lib/V.sol"},
		{name: "derived from qualified spec", contract: "src/Vault.sol:Vault", want: "src/Vault.sol"},
		{name: "bare name has no path", contract: "Vault", wantErr: true},
		{name: "leading colon is not a path", contract: ":Vault", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveSource(tt.contract, tt.flag)
			if (err != nil) != tt.wantErr {
				t.Fatalf("resolveSource() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("resolveSource() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestValidateFormat tests report format validation.
func TestValidateFormat(t *testing.T) {
	for _, format := range []string{FormatText, FormatJSON, FormatMarkdown, FormatAnnotations} {
		if err := validateFormat(format); err != nil {
			t.Errorf("validateFormat(%q) failed: %v", format, err)
		}
	}
	if err := validateFormat("xml"); err == nil {
		t.Error("validateFormat(\"xml\") succeeded, want error")
	}
	if err := validateFormat(""); err == nil {
		t.Error("validateFormat(\"\") succeeded, want error")
	}
}

// TestWriteReport_File tests file output for machine formats.
func TestWriteReport_File(t *testing.T) {
	rep := &upgrade.Report{
		Contract:    "src/Vault.sol:Vault",
		BaseRef:     "v1.4.0",
		GeneratedAt: time.Now().UTC(),
		Diffs: []resolve.FormattedDiff{
			{
				Kind:     diff.KindSlotChanged,
				Severity: diff.SeverityError,
				Title:    "Slot changed",
				Message:  "variable totalSupply moved from slot 1 to slot 2",
				Name:     "totalSupply",
				File:     "src/Vault.sol",
			},
		},
	}
	rep.Tally()

	t.Run("json", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "report.json")
		if err := writeReport(rep, FormatJSON, path); err != nil {
			t.Fatalf("writeReport() failed: %v", err)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read report: %v", err)
		}
		var decoded upgrade.Report
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("report is not valid JSON: %v", err)
		}
		if decoded.Passed {
			t.Error("decoded report passed, want failed")
		}
		if len(decoded.Diffs) != 1 {
			t.Errorf("decoded %d diffs, want 1", len(decoded.Diffs))
		}
	})

	t.Run("markdown", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "report.md")
		if err := writeReport(rep, FormatMarkdown, path); err != nil {
			t.Fatalf("writeReport() failed: %v", err)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read report: %v", err)
		}
		if !strings.Contains(string(data), "totalSupply") {
			t.Error("markdown report does not mention the changed variable")
		}
	})

	t.Run("annotations", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "report.txt")
		if err := writeReport(rep, FormatAnnotations, path); err != nil {
			t.Fatalf("writeReport() failed: %v", err)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read report: %v", err)
		}
		if !strings.Contains(string(data), "::error") {
			t.Error("annotations report carries no ::error line")
		}
	})
}

// TestRelevantSourceEvent tests the watch loop's event filter.
func TestRelevantSourceEvent(t *testing.T) {
	tests := []struct {
		name  string
		event fsnotify.Event
		want  bool
	}{
		{name: "sol write", event: fsnotify.Event{Name: "src/Vault.sol", Op: fsnotify.Write}, want: true},
		{name: "sol create", event: fsnotify.Event{Name: "src/Vault.sol", Op: fsnotify.Create}, want: true},
		{name: "atomic save rename", event: fsnotify.Event{Name: "src/Vault.sol", Op: fsnotify.Rename}, want: true},
		{name: "uppercase extension", event: fsnotify.Event{Name: "src/Vault.SOL", Op: fsnotify.Write}, want: true},
		{name: "chmod only", event: fsnotify.Event{Name: "src/Vault.sol", Op: fsnotify.Chmod}, want: false},
		{name: "editor swap file", event: fsnotify.Event{Name: "src/.Vault.sol.swp", Op: fsnotify.Write}, want: false},
		{name: "unrelated file", event: fsnotify.Event{Name: "README.md", Op: fsnotify.Write}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := relevantSourceEvent(tt.event); got != tt.want {
				t.Errorf("relevantSourceEvent(%v %s) = %v, want %v",
					tt.event.Op, tt.event.Name, got, tt.want)
			}
		})
	}
}

// TestPlural tests the listing header helper.
func TestPlural(t *testing.T) {
	if got := plural(1, "variable"); got != "1 variable" {
		t.Errorf("plural(1) = %q, want %q", got, "1 variable")
	}
	if got := plural(3, "slot"); got != "3 slots" {
		t.Errorf("plural(3) = %q, want %q", got, "3 slots")
	}
	if got := plural(0, "slot"); got != "0 slots" {
		t.Errorf("plural(0) = %q, want %q", got, "0 slots")
	}
}
