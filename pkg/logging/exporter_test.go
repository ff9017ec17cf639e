// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// NopExporter Tests
// =============================================================================

func TestNopExporter(t *testing.T) {
	e := &NopExporter{}
	ctx := context.Background()

	if err := e.Export(ctx, LogEntry{Message: "dropped"}); err != nil {
		t.Errorf("Export() = %v, want nil", err)
	}
	if err := e.Flush(ctx); err != nil {
		t.Errorf("Flush() = %v, want nil", err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("Close() = %v, want nil", err)
	}
}

// =============================================================================
// BufferedExporter Tests
// =============================================================================

func TestBufferedExporter_New(t *testing.T) {
	e := NewBufferedExporter()
	if e == nil {
		t.Fatal("NewBufferedExporter() returned nil")
	}
	entries := e.Entries()
	if entries == nil {
		t.Error("Entries() = nil, want empty slice")
	}
	if len(entries) != 0 {
		t.Errorf("fresh buffer holds %d entries", len(entries))
	}
}

func TestBufferedExporter_Export(t *testing.T) {
	e := NewBufferedExporter()
	ctx := context.Background()

	first := LogEntry{
		Timestamp: time.Now(),
		Level:     LevelInfo,
		Message:   "snapshot published",
		Service:   "snapshot",
		Attrs:     map[string]any{"key": "Vault@v1.4.0"},
	}
	second := LogEntry{Level: LevelError, Message: "store unreachable"}

	if err := e.Export(ctx, first); err != nil {
		t.Fatalf("Export() = %v", err)
	}
	if err := e.Export(ctx, second); err != nil {
		t.Fatalf("Export() = %v", err)
	}

	entries := e.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Message != "snapshot published" {
		t.Errorf("entries[0].Message = %q", entries[0].Message)
	}
	if entries[0].Service != "snapshot" {
		t.Errorf("entries[0].Service = %q", entries[0].Service)
	}
	if entries[0].Attrs["key"] != "Vault@v1.4.0" {
		t.Errorf("entries[0].Attrs[key] = %v", entries[0].Attrs["key"])
	}
	if entries[1].Level != LevelError {
		t.Errorf("entries[1].Level = %v, want LevelError", entries[1].Level)
	}
}

func TestBufferedExporter_EntriesIsCopy(t *testing.T) {
	e := NewBufferedExporter()
	_ = e.Export(context.Background(), LogEntry{Message: "original"})

	got := e.Entries()
	got[0].Message = "tampered"

	if again := e.Entries(); again[0].Message != "original" {
		t.Errorf("buffer saw the caller's edit: %q", again[0].Message)
	}
}

func TestBufferedExporter_FlushClose(t *testing.T) {
	e := NewBufferedExporter()
	_ = e.Export(context.Background(), LogEntry{Message: "kept"})

	if err := e.Flush(context.Background()); err != nil {
		t.Errorf("Flush() = %v, want nil", err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("Close() = %v, want nil", err)
	}
	if len(e.Entries()) != 1 {
		t.Error("Flush or Close dropped buffered entries")
	}
}

func TestBufferedExporter_Concurrent(t *testing.T) {
	e := NewBufferedExporter()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = e.Export(context.Background(), LogEntry{
				Message: "probe",
				Attrs:   map[string]any{"n": n},
			})
		}(i)
	}
	wg.Wait()

	if entries := e.Entries(); len(entries) != 100 {
		t.Errorf("expected 100 entries, got %d", len(entries))
	}
}

// =============================================================================
// WriterExporter Tests
// =============================================================================

func TestWriterExporter_Format(t *testing.T) {
	stamp := time.Date(2026, time.March, 5, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		entry LogEntry
		want  string
	}{
		{
			name: "plain message",
			entry: LogEntry{
				Timestamp: stamp,
				Level:     LevelInfo,
				Message:   "test message",
				Attrs:     map[string]any{"contract": "Vault"},
			},
			want: "time=2026-03-05T12:00:00Z level=INFO msg=\"test message\" attrs=map[contract:Vault]\n",
		},
		{
			name: "message needing quoting",
			entry: LogEntry{
				Timestamp: stamp,
				Level:     LevelWarn,
				Message:   `contract "Vault" not in layout`,
			},
			want: "time=2026-03-05T12:00:00Z level=WARN msg=\"contract \\\"Vault\\\" not in layout\" attrs=map[]\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			e := NewWriterExporter(&buf)
			if err := e.Export(context.Background(), tt.entry); err != nil {
				t.Fatalf("Export() = %v", err)
			}
			if got := buf.String(); got != tt.want {
				t.Errorf("Export() wrote %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWriterExporter_PropagatesWriteError(t *testing.T) {
	e := NewWriterExporter(failingWriter{})
	err := e.Export(context.Background(), LogEntry{Message: "lost"})
	if err == nil {
		t.Error("Export() = nil, want the writer's error")
	}
}

func TestWriterExporter_FlushClose(t *testing.T) {
	var buf bytes.Buffer
	e := NewWriterExporter(&buf)

	if err := e.Flush(context.Background()); err != nil {
		t.Errorf("Flush() = %v, want nil", err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("Close() = %v, want nil", err)
	}

	// Close does not own the writer; exports still land.
	if err := e.Export(context.Background(), LogEntry{Message: "after close"}); err != nil {
		t.Errorf("Export() after Close = %v", err)
	}
	if buf.Len() == 0 {
		t.Error("nothing written after Close")
	}
}

func TestWriterExporter_ConcurrentLines(t *testing.T) {
	var buf bytes.Buffer
	e := NewWriterExporter(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = e.Export(context.Background(), LogEntry{
				Timestamp: time.Now(),
				Level:     LevelInfo,
				Message:   "probe",
			})
		}()
	}
	wg.Wait()

	if n := strings.Count(buf.String(), "\n"); n != 100 {
		t.Errorf("expected 100 lines, got %d", n)
	}
}

// failingWriter rejects every write.
type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, errors.New("pipe closed")
}
