// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package forge runs the Foundry build tool and captures its layout
// output. The tool owns the layout wire schema; this package only shells
// out, bounds the run, and hands bytes to the layout decoder.
package forge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/mod/semver"
)

// =============================================================================
// CONSTANTS AND ERRORS
// =============================================================================

const (
	// DefaultBin is the binary probed on PATH when none is configured.
	DefaultBin = "forge"

	// DefaultTimeout bounds one tool invocation. Inspect triggers a full
	// build on a cold cache, so this is generous.
	DefaultTimeout = 2 * time.Minute
)

var (
	// ErrForgeNotFound means the binary is not installed or not on PATH.
	ErrForgeNotFound = errors.New("forge binary not found")

	// ErrInspectFailed means the tool ran and exited non-zero.
	ErrInspectFailed = errors.New("forge inspect failed")

	// ErrInspectTimeout means the tool exceeded the configured timeout.
	ErrInspectTimeout = errors.New("forge inspect timed out")

	// ErrVersionTooOld means the installed tool predates the minimum the
	// layout schema requires.
	ErrVersionTooOld = errors.New("forge version below minimum")
)

// =============================================================================
// RUNNER
// =============================================================================

// Runner executes forge in a project root.
//
// Thread Safety: Safe for concurrent use; every call spawns its own
// process.
type Runner struct {
	bin     string
	root    string
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures the Runner.
type Option func(*Runner)

// WithBin overrides the forge binary path.
func WithBin(bin string) Option {
	return func(r *Runner) {
		if bin != "" {
			r.bin = bin
		}
	}
}

// WithRoot sets the project root the tool runs in.
func WithRoot(dir string) Option {
	return func(r *Runner) {
		r.root = dir
	}
}

// WithTimeout bounds each invocation.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRunner creates a runner with the given options.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		bin:     DefaultBin,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Available probes PATH for the configured binary.
func (r *Runner) Available() error {
	if _, err := exec.LookPath(r.bin); err != nil {
		return fmt.Errorf("%w: %q", ErrForgeNotFound, r.bin)
	}
	return nil
}

// InspectLayout produces the storage layout JSON for one contract.
//
// Description:
//
//	Runs `forge inspect <contract> storage-layout --json` in the project
//	root and returns raw stdout. The contract may be a bare name or the
//	fully qualified src/File.sol:Name form. A non-zero exit wraps the
//	tool's stderr; the caller decodes stdout with the layout package.
//
// Inputs:
//
//	ctx - Context for cancellation; the configured timeout also applies
//	contract - Contract identifier as the tool expects it
//
// Outputs:
//
//	[]byte - Raw layout JSON
//	error - ErrForgeNotFound, ErrInspectTimeout, or ErrInspectFailed
func (r *Runner) InspectLayout(ctx context.Context, contract string) ([]byte, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(cmdCtx, r.bin, "inspect", contract, "storage-layout", "--json")
	cmd.Dir = r.root

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: %q", ErrForgeNotFound, r.bin)
		}
		if cmdCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: %s after %s", ErrInspectTimeout, contract, r.timeout)
		}
		return nil, fmt.Errorf("%w: %s: %s", ErrInspectFailed, contract, firstLine(stderr.String()))
	}

	r.logger.Debug("forge inspect completed",
		slog.String("contract", contract),
		slog.Duration("duration", time.Since(start)),
		slog.Int("bytes", stdout.Len()),
	)
	return stdout.Bytes(), nil
}

// Version reports the installed tool version as a bare semver string.
func (r *Runner) Version(ctx context.Context) (string, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, r.bin, "--version")
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", fmt.Errorf("%w: %q", ErrForgeNotFound, r.bin)
		}
		return "", fmt.Errorf("forge --version: %w", err)
	}
	v, err := parseVersionOutput(stdout.String())
	if err != nil {
		return "", err
	}
	return v, nil
}

// RequireVersion fails when the installed tool is older than min.
//
// Older releases emit a different layout schema, so the gate is hard:
// a too-old tool aborts the check instead of producing a wrong diff.
func (r *Runner) RequireVersion(ctx context.Context, min string) error {
	if min == "" {
		return nil
	}
	got, err := r.Version(ctx)
	if err != nil {
		return err
	}
	if semver.Compare("v"+got, "v"+min) < 0 {
		return fmt.Errorf("%w: have %s, need >= %s", ErrVersionTooOld, got, min)
	}
	return nil
}

// parseVersionOutput digs the semver out of `forge --version` text, which
// has changed shape across releases ("forge 0.2.0 (commit ts)" vs
// "forge Version: 1.0.0-stable").
func parseVersionOutput(out string) (string, error) {
	for _, field := range strings.Fields(out) {
		field = strings.TrimSuffix(field, ",")
		if semver.IsValid("v" + field) {
			return field, nil
		}
	}
	return "", fmt.Errorf("cannot find a version in forge output %q", firstLine(out))
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
