// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package config contains unit tests for configuration types.

# Testing Strategy

These tests verify:
  - Duration decodes strings, integer seconds, and fractional seconds
  - Default values are correctly applied
  - Struct tag validation and cross-field rules fire as expected
*/
package config

import (
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

// -----------------------------------------------------------------------------
// Duration Tests
// -----------------------------------------------------------------------------

// TestDuration_UnmarshalYAML verifies the accepted duration spellings.
func TestDuration_UnmarshalYAML(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{name: "duration string", input: "90s", expected: 90 * time.Second},
		{name: "minutes", input: "5m", expected: 5 * time.Minute},
		{name: "compound", input: "1h30m", expected: 90 * time.Minute},
		{name: "bare int is seconds", input: "45", expected: 45 * time.Second},
		{name: "float is seconds", input: "1.5", expected: 1500 * time.Millisecond},
		{name: "negative", input: "-10s", expected: -10 * time.Second},
		{name: "garbage", input: "soon", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration
			err := yaml.Unmarshal([]byte(tt.input), &d)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Unmarshal(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && d.Duration() != tt.expected {
				t.Errorf("Unmarshal(%q) = %v, want %v", tt.input, d.Duration(), tt.expected)
			}
		})
	}
}

// TestDuration_MarshalYAML verifies round-tripping through the string form.
func TestDuration_MarshalYAML(t *testing.T) {
	out, err := yaml.Marshal(Duration(90 * time.Second))
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}
	if got := strings.TrimSpace(string(out)); got != "1m30s" {
		t.Errorf("Marshal() = %q, want %q", got, "1m30s")
	}
}

// -----------------------------------------------------------------------------
// DefaultConfig Tests
// -----------------------------------------------------------------------------

// TestDefaultConfig verifies the fallback values.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Forge.Bin != "forge" {
		t.Errorf("Forge.Bin = %q, want %q", cfg.Forge.Bin, "forge")
	}
	if cfg.Forge.Timeout.Duration() != 2*time.Minute {
		t.Errorf("Forge.Timeout = %v, want %v", cfg.Forge.Timeout.Duration(), 2*time.Minute)
	}
	if cfg.Artifacts.Prefix != "snapshots" {
		t.Errorf("Artifacts.Prefix = %q, want %q", cfg.Artifacts.Prefix, "snapshots")
	}
	if cfg.Artifacts.PollInterval.Duration() != 10*time.Second {
		t.Errorf("Artifacts.PollInterval = %v, want 10s", cfg.Artifacts.PollInterval.Duration())
	}
	if cfg.Artifacts.MaxWait.Duration() != 5*time.Minute {
		t.Errorf("Artifacts.MaxWait = %v, want 5m", cfg.Artifacts.MaxWait.Duration())
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if cfg.Serve.Addr != ":8799" {
		t.Errorf("Serve.Addr = %q, want %q", cfg.Serve.Addr, ":8799")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() failed: %v", err)
	}
}

// -----------------------------------------------------------------------------
// Validate Tests
// -----------------------------------------------------------------------------

// TestConfig_Validate verifies struct tag and cross-field rules.
func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		cfg := DefaultConfig()
		cfg.Project.Contracts = []string{"src/Vault.sol:Vault"}
		cfg.Check.RPCURL = "https://rpc.example.org"
		cfg.Check.Address = "0x1234567890abcdef1234567890abcdef12345678"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "bad contract spec",
			mutate:  func(c *Config) { c.Project.Contracts = []string{"src/Vault.sol:"} },
			wantErr: true,
		},
		{
			name:   "bare contract name is fine",
			mutate: func(c *Config) { c.Project.Contracts = []string{"Vault"} },
		},
		{
			name:    "bad address",
			mutate:  func(c *Config) { c.Check.Address = "0x1234" },
			wantErr: true,
		},
		{
			name:    "bad endpoint scheme",
			mutate:  func(c *Config) { c.Check.RPCURL = "ftp://rpc.example.org" },
			wantErr: true,
		},
		{
			name:   "websocket endpoint",
			mutate: func(c *Config) { c.Check.RPCURL = "wss://rpc.example.org" },
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Log.Level = "verbose" },
			wantErr: true,
		},
		{
			name: "address without endpoint",
			mutate: func(c *Config) {
				c.Check.RPCURL = ""
			},
			wantErr: true,
		},
		{
			name: "endpoint without address is fine",
			mutate: func(c *Config) {
				c.Check.Address = ""
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
