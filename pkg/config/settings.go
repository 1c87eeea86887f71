package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/pacrec/pacrec/pkg/telemetry"
)

// Settings is the YAML tool configuration, as opposed to the manifest, which
// declares desired package states.
type Settings struct {
	// Journal configures run history persistence.
	Journal JournalSettings `yaml:"journal"`

	// Policy configures plan admission.
	Policy PolicySettings `yaml:"policy"`

	// AUR configures the community repository client.
	AUR AURSettings `yaml:"aur"`

	// Logging, Metrics and Tracing configure the telemetry stack.
	Logging LoggingSettings `yaml:"logging"`
	Metrics MetricsSettings `yaml:"metrics"`
	Tracing TracingSettings `yaml:"tracing"`
}

// JournalSettings configures the SQLite run journal.
type JournalSettings struct {
	// Enabled turns run recording on.
	Enabled bool `yaml:"enabled"`

	// Path is the database file. Defaults under the user state directory.
	Path string `yaml:"path"`
}

// PolicySettings configures plan admission policies.
type PolicySettings struct {
	// Enabled turns policy evaluation on. Builtin policies always load;
	// Paths adds rego files on top.
	Enabled bool `yaml:"enabled"`

	// Paths lists additional rego policy files or directories.
	Paths []string `yaml:"paths"`

	// Watch reloads policies when their files change.
	Watch bool `yaml:"watch"`
}

// AURSettings configures the community repository client.
type AURSettings struct {
	// BaseURL is the RPC and snapshot endpoint root.
	BaseURL string `yaml:"base_url"`
}

// LoggingSettings configures structured logging.
type LoggingSettings struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MetricsSettings configures the Prometheus endpoint.
type MetricsSettings struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// TracingSettings configures trace export.
type TracingSettings struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	Insecure     bool    `yaml:"insecure"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// DefaultSettings returns the settings used when no file exists.
func DefaultSettings() *Settings {
	return &Settings{
		Journal: JournalSettings{
			Enabled: true,
			Path:    defaultJournalPath(),
		},
		AUR: AURSettings{
			BaseURL: "https://aur.archlinux.org",
		},
		Logging: LoggingSettings{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
		Metrics: MetricsSettings{
			ListenAddr: ":9464",
		},
		Tracing: TracingSettings{
			Exporter:     "none",
			SamplingRate: 1.0,
		},
	}
}

// LoadSettings reads settings from path. A missing file yields defaults; a
// present but malformed file is an error.
func LoadSettings(path string) (*Settings, error) {
	settings := DefaultSettings()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return settings, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings %s: %w", path, err)
	}
	return settings, nil
}

// Telemetry converts the settings into the telemetry stack's configuration.
func (s *Settings) Telemetry(version string) *telemetry.Config {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = version
	if s.Logging.Level != "" {
		cfg.Logging.Level = s.Logging.Level
	}
	if s.Logging.Format != "" {
		cfg.Logging.Format = s.Logging.Format
	}
	if s.Logging.Output != "" {
		cfg.Logging.Output = s.Logging.Output
	}
	cfg.Metrics.Enabled = s.Metrics.Enabled
	if s.Metrics.ListenAddr != "" {
		cfg.Metrics.ListenAddr = s.Metrics.ListenAddr
	}
	cfg.Tracing.Enabled = s.Tracing.Enabled
	if s.Tracing.Exporter != "" {
		cfg.Tracing.Exporter = s.Tracing.Exporter
	}
	cfg.Tracing.Endpoint = s.Tracing.Endpoint
	cfg.Tracing.Insecure = s.Tracing.Insecure
	if s.Tracing.SamplingRate > 0 {
		cfg.Tracing.SamplingRate = s.Tracing.SamplingRate
	}
	return cfg
}

// DefaultSettingsPath is where LoadSettings looks when the caller gives no
// explicit path.
func DefaultSettingsPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "pacrec", "settings.yaml")
	}
	return "pacrec.yaml"
}

func defaultJournalPath() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "pacrec", "journal.db")
	}
	return "pacrec-journal.db"
}
