package slogutil

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestTextHandler_Format(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, FormatHuman, slog.LevelInfo)

	logger.Info("Element tracked", "element", "class:Foo", "versions", 3, "detail", "moved from A.java")

	output := buf.String()
	for _, want := range []string{
		"[info] Element tracked | ",
		"element=class:Foo",
		"versions=3",
		`detail="moved from A.java"`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
	if !strings.HasSuffix(output, "\n") {
		t.Errorf("expected trailing newline, got: %q", output)
	}
}

func TestTextHandler_NoAttrs(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, FormatHuman, slog.LevelInfo).Info("plain")
	if strings.Contains(buf.String(), "|") {
		t.Errorf("unexpected separator without attributes: %s", buf.String())
	}
}

func TestTextHandler_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, FormatHuman, slog.LevelWarn)

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	output := buf.String()
	if strings.Contains(output, "debug message") || strings.Contains(output, "info message") {
		t.Errorf("low levels should be filtered: %s", output)
	}
	if !strings.Contains(output, "[warn] warn message") || !strings.Contains(output, "[error] error message") {
		t.Errorf("warn and error should be included: %s", output)
	}
}

func TestTextHandler_AttrsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, FormatHuman, slog.LevelInfo).
		With("request_id", "r1").
		WithGroup("cache").
		With("hits", 2)

	logger.Info("Stats", "misses", 1)

	output := buf.String()
	for _, want := range []string{"request_id=r1", "cache.hits=2", "cache.misses=1"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, FormatJSON, slog.LevelInfo).Info("Tracked", "versions", 2)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v: %s", err, buf.String())
	}
	if rec["msg"] != "Tracked" || rec["versions"] != float64(2) {
		t.Errorf("record = %v", rec)
	}
}

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := LevelFromString(tt.input); got != tt.expected {
				t.Errorf("LevelFromString(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestLevelFromVerbosity(t *testing.T) {
	tests := []struct {
		verbosity int
		quiet     bool
		expected  slog.Level
	}{
		{0, false, slog.LevelWarn},
		{1, false, slog.LevelInfo},
		{2, false, slog.LevelDebug},
		{3, false, slog.LevelDebug},
		{0, true, LevelSilent},
		{5, true, LevelSilent},
	}

	for _, tt := range tests {
		if got := LevelFromVerbosity(tt.verbosity, tt.quiet); got != tt.expected {
			t.Errorf("LevelFromVerbosity(%d, %v) = %v, want %v", tt.verbosity, tt.quiet, got, tt.expected)
		}
	}
}

func TestTeeHandler(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	h1 := NewTextHandler(&buf1, &slog.HandlerOptions{Level: slog.LevelInfo})
	h2 := NewTextHandler(&buf2, &slog.HandlerOptions{Level: slog.LevelWarn})

	logger := slog.New(NewTeeHandler(h1, h2)).With("repo", "demo")
	logger.Info("info message")
	logger.Warn("warn message")

	if !strings.Contains(buf1.String(), "info message") || !strings.Contains(buf1.String(), "warn message") {
		t.Errorf("buf1 = %s", buf1.String())
	}
	if strings.Contains(buf2.String(), "info message") || !strings.Contains(buf2.String(), "warn message") {
		t.Errorf("buf2 = %s", buf2.String())
	}
	if !strings.Contains(buf2.String(), "repo=demo") {
		t.Errorf("attrs not propagated: %s", buf2.String())
	}
}
