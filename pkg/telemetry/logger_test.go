package telemetry

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLoggerWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pacrec.log")
	log, err := NewLogger(LoggingConfig{Level: "debug", Format: "json", Output: path})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	log.WithField("backend", "pacman").Info("run started")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	var event map[string]interface{}
	if err := json.Unmarshal(data, &event); err != nil {
		t.Fatalf("log line is not JSON: %v\n%s", err, data)
	}
	if event["message"] != "run started" {
		t.Errorf("message = %v, want run started", event["message"])
	}
	if event["backend"] != "pacman" {
		t.Errorf("backend field = %v, want pacman", event["backend"])
	}
	if event["level"] != "info" {
		t.Errorf("level = %v, want info", event["level"])
	}
}

func TestNewLoggerSuppressesBelowLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pacrec.log")
	log, err := NewLogger(LoggingConfig{Level: "warn", Format: "json", Output: path})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	log.Info("quiet")
	log.Warn("loud")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if strings.Contains(string(data), "quiet") {
		t.Error("info event logged at warn level")
	}
	if !strings.Contains(string(data), "loud") {
		t.Error("warn event missing")
	}
}

func TestNewLoggerBadFilePath(t *testing.T) {
	if _, err := NewLogger(LoggingConfig{Output: filepath.Join(t.TempDir(), "missing", "pacrec.log")}); err == nil {
		t.Fatal("no error for an uncreatable log file")
	}
}

func TestLoggerContextRoundTrip(t *testing.T) {
	log := NopLogger()
	ctx := log.WithContext(context.Background())
	if FromContext(ctx) != log {
		t.Error("logger not recovered from context")
	}
	if FromContext(context.Background()) == nil {
		t.Error("no fallback logger for a bare context")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"info", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLogLevel(tt.level); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.level, got, tt.want)
		}
	}
}
