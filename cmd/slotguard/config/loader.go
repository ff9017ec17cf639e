// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Loader
// =============================================================================

// Load reads and validates a slotguard.yaml.
//
// # Description
//
//	Decodes the file strictly: unknown keys are an error, so a typoed
//	key fails loudly instead of silently falling back to a default.
//	Fields the file omits keep their DefaultConfig values.
//
// # Inputs
//
//   - path: config file path.
//
// # Outputs
//
//   - Config: the decoded, validated value.
//   - error: read, decode, or validation failure.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return parse(data, path)
}

// LoadOrDefault loads path when it exists and returns DefaultConfig when
// it does not. Any other failure (unreadable file, bad YAML, invalid
// values) is still an error.
func LoadOrDefault(path string) (Config, error) {
	cfg, err := Load(path)
	if err != nil && errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	return cfg, err
}

func parse(data []byte, path string) (Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}
