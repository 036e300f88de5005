package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Defaults applied by WithDefaults when the corresponding field is unset.
const (
	DefaultAddr               = ":8080"
	DefaultDataDir            = "~/enginectl"
	DefaultRecordPath         = "~/.enginerc"
	DefaultEngineHost         = "127.0.0.1"
	DefaultEnginePort         = 3929
	DefaultLogLevel           = "info"
	DefaultReleasesURL        = "https://api.github.com/repos/janhq"
	DefaultToolkitURLTemplate = "https://catalog.jan.ai/dist/cuda-dependencies/<version>/<platform>/cuda.tar.gz"
	DefaultInactivitySeconds  = 20
	DefaultHealthIntervalMS   = 1000
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and will be replaced by WithDefaults.
type Config struct {
	Addr               string   `json:"addr" yaml:"addr" toml:"addr"`
	DataDir            string   `json:"data_dir" yaml:"data_dir" toml:"data_dir"`
	RecordPath         string   `json:"record_path" yaml:"record_path" toml:"record_path"`
	EngineHost         string   `json:"engine_host" yaml:"engine_host" toml:"engine_host"`
	EnginePort         int      `json:"engine_port" yaml:"engine_port" toml:"engine_port"`
	LogLevel           string   `json:"log_level" yaml:"log_level" toml:"log_level"`
	ReleasesURL        string   `json:"releases_url" yaml:"releases_url" toml:"releases_url"`
	ToolkitURLTemplate string   `json:"toolkit_url_template" yaml:"toolkit_url_template" toml:"toolkit_url_template"`
	InactivitySeconds  int      `json:"download_inactivity_seconds" yaml:"download_inactivity_seconds" toml:"download_inactivity_seconds"`
	HealthIntervalMS   int      `json:"health_interval_ms" yaml:"health_interval_ms" toml:"health_interval_ms"`
	StartupTimeoutSec  int      `json:"startup_timeout_seconds" yaml:"startup_timeout_seconds" toml:"startup_timeout_seconds"`
	CORSEnabled        bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSOrigins        []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// WithDefaults returns a copy of c with every unset field defaulted.
func (c Config) WithDefaults() Config {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.RecordPath == "" {
		c.RecordPath = DefaultRecordPath
	}
	if c.EngineHost == "" {
		c.EngineHost = DefaultEngineHost
	}
	if c.EnginePort <= 0 {
		c.EnginePort = DefaultEnginePort
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.ReleasesURL == "" {
		c.ReleasesURL = DefaultReleasesURL
	}
	if c.ToolkitURLTemplate == "" {
		c.ToolkitURLTemplate = DefaultToolkitURLTemplate
	}
	if c.InactivitySeconds <= 0 {
		c.InactivitySeconds = DefaultInactivitySeconds
	}
	if c.HealthIntervalMS <= 0 {
		c.HealthIntervalMS = DefaultHealthIntervalMS
	}
	if c.StartupTimeoutSec < 0 {
		c.StartupTimeoutSec = 0
	}
	return c
}

// InactivityTimeout is the download watchdog period.
func (c Config) InactivityTimeout() time.Duration {
	return time.Duration(c.InactivitySeconds) * time.Second
}

// HealthInterval is the engine health poll period.
func (c Config) HealthInterval() time.Duration {
	return time.Duration(c.HealthIntervalMS) * time.Millisecond
}

// StartupTimeout bounds the health poll after spawn. Zero means no deadline.
func (c Config) StartupTimeout() time.Duration {
	return time.Duration(c.StartupTimeoutSec) * time.Second
}
