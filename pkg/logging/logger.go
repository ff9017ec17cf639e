// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging provides structured logging for SlotGuard commands and
// services.
//
// Everything SlotGuard prints on stdout is report output (text, JSON,
// markdown, or workflow annotations), so logs always go to stderr. A
// one-shot check in CI needs nothing more; the longer-lived modes layer
// destinations on top:
//
//   - serve switches stderr to JSON for log collectors
//   - watch sessions can add a dated log file under log.dir
//   - an optional LogExporter ships entries to an external sink
//
// # Architecture
//
// Logger wraps log/slog. One slog.Handler is built per destination and a
// fan-out handler drives them all:
//
//	Logger ── multiHandler ─┬─ stderr    text or JSON, dropped by Quiet
//	                        ├─ log file  always JSON, when LogDir is set
//	                        └─ exporter  async, when configured
//
// # Usage
//
//	logger := logging.New(logging.Config{
//	    Level:   logging.ParseLevel(cfg.Log.Level),
//	    LogDir:  cfg.Log.Dir,
//	    Service: "check",
//	    JSON:    cfg.Log.JSON,
//	    Quiet:   cfg.Log.Quiet,
//	})
//	defer logger.Close()
//
//	logger.Info("baseline fetched", "key", key, "ref", ref)
//
// Service packages take *slog.Logger; Slog is the bridge:
//
//	checker := upgrade.NewChecker(upgrade.WithLogger(logger.Slog()))
//
// # Levels
//
//   - Debug: per-variable alignment detail, cache probes, RPC frames
//   - Info: run milestones (layout built, snapshot published, verdict)
//   - Warn: degraded but continuing (evidence read failed, cache corrupt)
//   - Error: an operation failed and the caller will surface it
//
// # Sensitive values
//
// Nothing in this package redacts. RPC URLs routinely embed provider
// keys, so log whether an endpoint is configured, never the endpoint:
//
//	logger.Info("verifier enabled", "rpc_configured", cfg.RPCURL != "")
package logging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Timeouts for exporter calls. Export runs on every log line and must
// stay short; Flush runs once at shutdown and may push a batch.
const (
	exportTimeout = time.Second
	flushTimeout  = 5 * time.Second
)

// =============================================================================
// Levels
// =============================================================================

// Level is the minimum-severity filter applied to every destination.
// Ordered: Debug < Info < Warn < Error.
type Level int

const (
	// LevelDebug is alignment and transport detail, off in CI.
	LevelDebug Level = iota

	// LevelInfo marks run milestones. The default.
	LevelInfo

	// LevelWarn is for conditions the run survives.
	LevelWarn

	// LevelError is for failed operations.
	LevelError
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

// String returns the upper-case level name, or "UNKNOWN" for a value
// outside the defined range.
func (l Level) String() string {
	if l < LevelDebug || l > LevelError {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// toSlogLevel maps onto the slog constants. Out-of-range values read as
// Info so a corrupted config cannot silence the log.
func (l Level) toSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel reads a level name from config or a flag, any case,
// "warning" included. Unrecognized input falls back to Info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// =============================================================================
// Configuration
// =============================================================================

// Config selects the destinations and the minimum level. The zero value
// logs to stderr as text at Debug and above (LevelDebug is the zero
// Level); Default supplies the Info-level setup a bare CLI run wants.
type Config struct {
	// Level is the minimum level; records below it are dropped at the
	// handler, before any destination sees them.
	Level Level

	// LogDir enables file logging. The file is
	// "{Service}_{YYYY-MM-DD}.log" inside the directory, JSON lines,
	// created along with the directory on first use. A leading ~ expands
	// to the home directory. When the directory cannot be created or the
	// file cannot be opened, the run continues without file logging.
	LogDir string

	// Service tags every record with a "service" attribute and names the
	// log file. The commands use their own names: "check", "snapshot",
	// "watch", "serve".
	Service string

	// JSON switches the stderr handler from text to JSON. File output is
	// JSON regardless; collectors should not have to parse the text form.
	JSON bool

	// Quiet drops the stderr handler. File and exporter destinations are
	// unaffected, so a quiet check with LogDir set still keeps its trail.
	Quiet bool

	// Exporter, when non-nil, receives every record at or above Level as
	// a LogEntry, asynchronously. Export failures are dropped; logging
	// never fails a check.
	Exporter LogExporter
}

// =============================================================================
// Logger
// =============================================================================

// Logger is a multi-destination structured logger.
//
// # Thread Safety
//
// Safe for concurrent use. The underlying slog handlers serialize their
// own writes; mutable state here is guarded by mu.
//
// # Resource Management
//
// Close flushes the exporter and the log file. Callers that configure
// either must defer it:
//
//	logger := logging.New(cfg)
//	defer logger.Close()
type Logger struct {
	slog     *slog.Logger
	config   Config
	file     *os.File
	exporter LogExporter
	mu       sync.Mutex
}

// New builds a Logger from config. Construction never fails: an
// unusable LogDir downgrades to the remaining destinations, and a config
// with every destination disabled still logs to stderr rather than into
// the void.
func New(config Config) *Logger {
	opts := &slog.HandlerOptions{Level: config.Level.toSlogLevel()}

	l := &Logger{
		config:   config,
		exporter: config.Exporter,
	}

	var handlers []slog.Handler
	if !config.Quiet {
		handlers = append(handlers, stderrHandler(config.JSON, opts))
	}
	if config.LogDir != "" {
		if fh, file := fileHandler(config, opts); fh != nil {
			l.file = file
			handlers = append(handlers, fh)
		}
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		handler = slog.NewTextHandler(os.Stderr, opts)
	case 1:
		handler = handlers[0]
	default:
		handler = &multiHandler{handlers: handlers}
	}

	if config.Service != "" {
		handler = handler.WithAttrs([]slog.Attr{
			slog.String("service", config.Service),
		})
	}

	l.slog = slog.New(handler)
	return l
}

func stderrHandler(json bool, opts *slog.HandlerOptions) slog.Handler {
	if json {
		return slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.NewTextHandler(os.Stderr, opts)
}

// fileHandler opens today's log file under the configured directory.
// Returns nil handlers when the directory or file is unusable; the
// logger then runs without a file destination.
func fileHandler(config Config, opts *slog.HandlerOptions) (slog.Handler, *os.File) {
	dir := expandPath(config.LogDir)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, nil
	}

	service := config.Service
	if service == "" {
		service = "slotguard"
	}
	name := fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02"))

	file, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil, nil
	}
	return slog.NewJSONHandler(file, opts), file
}

// Default returns the logger a bare CLI run uses: Info and above, text
// on stderr, service "slotguard".
func Default() *Logger {
	return New(Config{
		Level:   LevelInfo,
		Service: "slotguard",
	})
}

// Debug logs at Debug level.
func (l *Logger) Debug(msg string, args ...any) {
	l.log(LevelDebug, msg, args...)
}

// Info logs at Info level.
//
//	logger.Info("check finished", "contract", name, "errors", tally.Errors)
func (l *Logger) Info(msg string, args ...any) {
	l.log(LevelInfo, msg, args...)
}

// Warn logs at Warn level.
func (l *Logger) Warn(msg string, args ...any) {
	l.log(LevelWarn, msg, args...)
}

// Error logs at Error level. It does not terminate anything; commands
// decide their own exits.
func (l *Logger) Error(msg string, args ...any) {
	l.log(LevelError, msg, args...)
}

// With returns a child logger carrying extra attributes on every record.
// The child shares the parent's file handle and exporter, so Close is
// still the parent's job:
//
//	runLog := logger.With("contract", contract, "base", baseRef)
//	runLog.Info("comparing layouts")
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		slog:     l.slog.With(args...),
		config:   l.config,
		file:     l.file,
		exporter: l.exporter,
	}
}

// Slog returns the underlying slog.Logger for packages that take one.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// Close flushes and closes the exporter, then syncs and closes the log
// file. Every step runs even when an earlier one fails; the returned
// error joins whatever went wrong.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error

	if l.exporter != nil {
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		if err := l.exporter.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush exporter: %w", err))
		}
		cancel()
		if err := l.exporter.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close exporter: %w", err))
		}
	}

	if l.file != nil {
		if err := l.file.Sync(); err != nil {
			errs = append(errs, fmt.Errorf("sync log file: %w", err))
		}
		if err := l.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close log file: %w", err))
		}
	}

	return errors.Join(errs...)
}

// log hands the record to slog and, independently, to the exporter. The
// export happens on its own goroutine with a short deadline so a slow
// sink cannot stall the caller.
func (l *Logger) log(level Level, msg string, args ...any) {
	l.slog.Log(context.Background(), level.toSlogLevel(), msg, args...)

	if l.exporter != nil && level >= l.config.Level {
		entry := LogEntry{
			Timestamp: time.Now(),
			Level:     level,
			Message:   msg,
			Service:   l.config.Service,
			Attrs:     argsToMap(args),
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), exportTimeout)
			defer cancel()
			_ = l.exporter.Export(ctx, entry)
		}()
	}
}

// =============================================================================
// Fan-out handler
// =============================================================================

// multiHandler drives several slog handlers as one, letting stderr stay
// text while the file stays JSON.
type multiHandler struct {
	handlers []slog.Handler
}

// Enabled reports whether any destination wants the level.
func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle delivers the record to every enabled destination. A failing
// destination does not starve the others; errors are joined.
func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, r.Level) {
			continue
		}
		if err := handler.Handle(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}

// =============================================================================
// Helpers
// =============================================================================

// expandPath resolves a leading ~ or ~/ against the home directory.
// Anything else, including ~user forms, passes through untouched.
func expandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// argsToMap converts slog-style alternating key-value args into the
// Attrs map exporters receive. Non-string keys and a trailing odd value
// are dropped, matching slog's own tolerance for malformed pairs.
func argsToMap(args []any) map[string]any {
	attrs := make(map[string]any, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		attrs[key] = args[i+1]
	}
	return attrs
}
