package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadSettingsMissingFileYieldsDefaults(t *testing.T) {
	settings, err := LoadSettings(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if !settings.Journal.Enabled {
		t.Error("journal should default to enabled")
	}
	if settings.AUR.BaseURL != "https://aur.archlinux.org" {
		t.Errorf("AUR base URL = %q", settings.AUR.BaseURL)
	}
	if settings.Logging.Level != "info" {
		t.Errorf("log level = %q, want info", settings.Logging.Level)
	}
}

func TestLoadSettingsOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	content := `
journal:
  enabled: false
policy:
  enabled: true
  paths: [/etc/pacrec/policies]
  watch: true
logging:
  level: debug
  format: json
tracing:
  enabled: true
  exporter: stdout
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	settings, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if settings.Journal.Enabled {
		t.Error("journal should be disabled")
	}
	if !settings.Policy.Enabled || !settings.Policy.Watch {
		t.Errorf("policy = %+v", settings.Policy)
	}
	if settings.Logging.Level != "debug" || settings.Logging.Format != "json" {
		t.Errorf("logging = %+v", settings.Logging)
	}
	// untouched fields keep their defaults
	if settings.AUR.BaseURL != "https://aur.archlinux.org" {
		t.Errorf("AUR base URL = %q", settings.AUR.BaseURL)
	}
}

func TestLoadSettingsRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte("journal: [oops"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSettings(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestTelemetryConversion(t *testing.T) {
	settings := DefaultSettings()
	settings.Logging.Level = "warn"
	settings.Tracing.Enabled = true
	settings.Tracing.Exporter = "stdout"

	cfg := settings.Telemetry("1.2.3")
	if cfg.ServiceVersion != "1.2.3" {
		t.Errorf("ServiceVersion = %q", cfg.ServiceVersion)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
	if !cfg.Tracing.Enabled || cfg.Tracing.Exporter != "stdout" {
		t.Errorf("Tracing = %+v", cfg.Tracing)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("converted config should validate: %v", err)
	}
}
