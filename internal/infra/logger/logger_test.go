package logger

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"voice2action/internal/infra/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestOpenOutputStreams(t *testing.T) {
	tests := []struct {
		output string
		want   io.Writer
	}{
		{"stdout", os.Stdout},
		{"stderr", os.Stderr},
		{"", os.Stderr},
		{"discard", io.Discard},
	}
	for _, tt := range tests {
		w, closer, err := openOutput(tt.output)
		if err != nil {
			t.Fatalf("openOutput(%q): %v", tt.output, err)
		}
		if w != tt.want {
			t.Errorf("openOutput(%q) returned unexpected writer", tt.output)
		}
		if err := closer(); err != nil {
			t.Errorf("closer: %v", err)
		}
	}
}

func TestNewJSONFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")

	log, closer, err := New(config.LoggerConfig{Level: "info", Format: "json", Output: path}, "voice2action")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Debug("filtered")
	log.Info("run finished", "run_id", "r1")
	if err := closer(); err != nil {
		t.Fatalf("closer: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line (debug filtered), got %d: %s", len(lines), data)
	}

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if entry["msg"] != "run finished" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["service"] != "voice2action" {
		t.Errorf("service = %v", entry["service"])
	}
	if entry["run_id"] != "r1" {
		t.Errorf("run_id = %v", entry["run_id"])
	}
}

func TestNewTextLoggerNoService(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	log, closer, err := New(config.LoggerConfig{Level: "debug", Output: path}, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Debug("text output test")
	_ = closer()

	data, _ := os.ReadFile(path)
	out := string(data)
	if !strings.Contains(out, "text output test") {
		t.Errorf("log file should contain the message, got %q", out)
	}
	if strings.Contains(out, "service=") {
		t.Errorf("no service attribute expected, got %q", out)
	}
}

func TestNewLoggerInvalidOutput(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0600); err != nil {
		t.Fatal(err)
	}
	_, _, err := New(config.LoggerConfig{Output: filepath.Join(blocker, "app.log")}, "x")
	if err == nil {
		t.Error("expected error when the parent path is a file")
	}
}
