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
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Level Tests
// =============================================================================

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.level.String(); got != tt.want {
			t.Errorf("Level(%d).String() = %q, want %q", int(tt.level), got, tt.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{" error ", LevelError, false},
		{"trace", LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLevel_TextRoundTrip(t *testing.T) {
	var cfg struct {
		Level Level `json:"level"`
	}
	if err := json.Unmarshal([]byte(`{"level":"warn"}`), &cfg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if cfg.Level != LevelWarn {
		t.Errorf("Level = %v, want WARN", cfg.Level)
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"level":"warn"}` {
		t.Errorf("marshal = %s", b)
	}
}

// =============================================================================
// Logger Tests
// =============================================================================

func TestNew_WritesToOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, Service: "conformity", Output: &buf})
	defer logger.Close()

	logger.Debug("hidden")
	logger.Info("analysis finished", "score", 87)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("debug message written at info level")
	}
	if !strings.Contains(out, "analysis finished") || !strings.Contains(out, "score=87") {
		t.Errorf("unexpected output: %s", out)
	}
	if !strings.Contains(out, "service=conformity") {
		t.Errorf("service attribute missing: %s", out)
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{JSON: true, Output: &buf})
	logger.Warn("retrying", "attempt", 2)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if rec["msg"] != "retrying" || rec["level"] != "WARN" {
		t.Errorf("unexpected record: %v", rec)
	}
}

func TestNew_Quiet(t *testing.T) {
	var buf bytes.Buffer
	exporter := NewBufferedExporter()
	logger := New(Config{Quiet: true, Output: &buf, Exporter: exporter})
	logger.Info("only exported")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if buf.Len() != 0 {
		t.Errorf("quiet logger wrote to output: %s", buf.String())
	}
	if n := len(exporter.Entries()); n != 1 {
		t.Errorf("exported %d entries, want 1", n)
	}
}

func TestNew_LogDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	logger := New(Config{LogDir: dir, Service: "conformity", Quiet: true})
	logger.Info("to file", "document", "edital (120 chars)")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	name := "conformity_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"to file"`) {
		t.Errorf("file content = %s", data)
	}
}

func TestSlog_FeedsExporter(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{Level: LevelWarn, Service: "conformity", Quiet: true, Exporter: exporter})

	component := logger.Slog().With(slog.String("component", "fallback"))
	component.Info("below level")
	component.Warn("fallback exhausted", slog.String("operation", "legal"))
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	entries := exporter.Entries()
	if len(entries) != 1 {
		t.Fatalf("exported %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.Level != LevelWarn || e.Message != "fallback exhausted" || e.Service != "conformity" {
		t.Errorf("unexpected entry: %+v", e)
	}
	if e.Attrs["component"] != "fallback" || e.Attrs["operation"] != "legal" {
		t.Errorf("attrs = %v", e.Attrs)
	}
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf})
	logger.With("request_id", "abc").Info("handled")
	if !strings.Contains(buf.String(), "request_id=abc") {
		t.Errorf("output = %s", buf.String())
	}
}

type failingExporter struct{ BufferedExporter }

func (*failingExporter) Flush(context.Context) error { return errors.New("flush failed") }
func (*failingExporter) Close() error                { return errors.New("close failed") }

func TestLogger_Close(t *testing.T) {
	logger := New(Config{Quiet: true, Exporter: &failingExporter{}})
	err := logger.Close()
	if err == nil || !strings.Contains(err.Error(), "flush failed") || !strings.Contains(err.Error(), "close failed") {
		t.Errorf("Close() error = %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestLogger_ConcurrentUse(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{Quiet: true, Exporter: exporter})

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("tick", "i", i)
		}()
	}
	wg.Wait()
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if n := len(exporter.Entries()); n != 20 {
		t.Errorf("exported %d entries, want 20", n)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := ExpandPath("~/logs"); got != filepath.Join(home, "logs") {
		t.Errorf("ExpandPath(~/logs) = %q", got)
	}
	if got := ExpandPath("/var/log"); got != "/var/log" {
		t.Errorf("ExpandPath(/var/log) = %q", got)
	}
}
