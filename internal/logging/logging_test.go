package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

// captureLogOutput runs f with the global logger writing JSON to a buffer.
func captureLogOutput(level Level, f func()) string {
	var buf bytes.Buffer
	prev := GetLogger()
	InitLoggerTo(&buf, level, FormatJSON)
	f()
	SetLogger(prev)
	return buf.String()
}

func decode(t *testing.T, out string) map[string]any {
	t.Helper()
	line := strings.TrimSpace(out)
	if line == "" {
		t.Fatal("no log output")
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(line), &m); err != nil {
		t.Fatalf("invalid JSON log line %q: %v", line, err)
	}
	return m
}

func TestInitLogger(t *testing.T) {
	tests := []struct {
		name   string
		level  Level
		format Format
	}{
		{"Debug level JSON format", LevelDebug, FormatJSON},
		{"Info level Text format", LevelInfo, FormatText},
		{"Error level JSON format", LevelError, FormatJSON},
		{"Default level (invalid value)", Level(999), FormatJSON},
	}
	prev := GetLogger()
	defer SetLogger(prev)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			InitLogger(tt.level, tt.format)
			if GetLogger() == nil {
				t.Error("Expected logger to be initialized, got nil")
			}
		})
	}
}

func TestParseLevelAndFormat(t *testing.T) {
	levels := map[string]Level{"debug": LevelDebug, "": LevelInfo, "WARN": LevelWarn, "error": LevelError}
	for in, want := range levels {
		got, ok := ParseLevel(in)
		if !ok || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", in, got, ok, want)
		}
	}
	if _, ok := ParseLevel("loud"); ok {
		t.Error("ParseLevel accepted an unknown level")
	}
	if f, ok := ParseFormat("json"); !ok || f != FormatJSON {
		t.Errorf("ParseFormat(json) = %v, %v", f, ok)
	}
	if _, ok := ParseFormat("xml"); ok {
		t.Error("ParseFormat accepted an unknown format")
	}
}

func TestHandleContext(t *testing.T) {
	ctx := WithHandle(context.Background(), "h-1")
	if got := GetHandle(ctx); got != "h-1" {
		t.Errorf("Expected handle id h-1, got %s", got)
	}
	if got := GetHandle(context.Background()); got != "" {
		t.Errorf("Expected empty handle id, got %s", got)
	}

	out := captureLogOutput(LevelInfo, func() {
		InfoContext(ctx, "opened")
	})
	m := decode(t, out)
	if m["handle_id"] != "h-1" {
		t.Errorf("Expected handle_id attribute, got %v", m)
	}
}

func TestStatementLoggedAtDebug(t *testing.T) {
	out := captureLogOutput(LevelInfo, func() {
		Statement(context.Background(), "SELECT 1")
	})
	if out != "" {
		t.Errorf("Statement logged above debug level: %s", out)
	}

	out = captureLogOutput(LevelDebug, func() {
		Statement(context.Background(), "SELECT 1")
	})
	m := decode(t, out)
	if m["msg"] != "sql_statement" || m["sql"] != "SELECT 1" {
		t.Errorf("unexpected statement log: %v", m)
	}
}

func TestMigrationAndUpdateFailed(t *testing.T) {
	out := captureLogOutput(LevelInfo, func() {
		Migration(context.Background(), "library", 1, 2, "needs_upgrade")
	})
	m := decode(t, out)
	if m["database"] != "library" || m["to_version"] != float64(2) {
		t.Errorf("unexpected migration log: %v", m)
	}

	out = captureLogOutput(LevelInfo, func() {
		UpdateFailed(context.Background(), "book", errors.New("constraint failed"))
	})
	m = decode(t, out)
	if m["level"] != "ERROR" || m["table"] != "book" {
		t.Errorf("unexpected update log: %v", m)
	}
}
