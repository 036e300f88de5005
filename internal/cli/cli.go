// Package cli implements the enginectl command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"enginectl/internal/app"
	"enginectl/internal/config"
	"enginectl/internal/download"
	"enginectl/internal/logging"
)

// Config carries the persistent flag values. Non-empty values override the
// config file.
type Config struct {
	ConfigPath  string
	LogLevel    string
	DataDir     string
	RecordPath  string
	ReleasesURL string

	Out io.Writer
	Err io.Writer
}

// DefaultConfig reads flag defaults from ENGINECTL_* environment variables.
func DefaultConfig() *Config {
	return &Config{
		ConfigPath:  envStr("ENGINECTL_CONFIG", ""),
		LogLevel:    envStr("ENGINECTL_LOG_LEVEL", ""),
		DataDir:     envStr("ENGINECTL_DATA_DIR", ""),
		RecordPath:  envStr("ENGINECTL_RECORD", ""),
		ReleasesURL: envStr("ENGINECTL_RELEASES_URL", ""),
		Out:         os.Stdout,
		Err:         os.Stderr,
	}
}

// resolve merges the config file with flag overrides and applies defaults.
func (c *Config) resolve() (config.Config, error) {
	var fc config.Config
	if c.ConfigPath != "" {
		loaded, err := config.Load(c.ConfigPath)
		if err != nil {
			return fc, fmt.Errorf("load config: %w", err)
		}
		fc = loaded
	}
	if c.LogLevel != "" {
		fc.LogLevel = c.LogLevel
	}
	if c.DataDir != "" {
		fc.DataDir = c.DataDir
	}
	if c.RecordPath != "" {
		fc.RecordPath = c.RecordPath
	}
	if c.ReleasesURL != "" {
		fc.ReleasesURL = c.ReleasesURL
	}
	return fc.WithDefaults(), nil
}

func (c *Config) logger(level string) zerolog.Logger {
	return logging.New(level, c.Err, true)
}

// newApp builds the component graph. pub, when non-nil, receives every
// download snapshot.
func (c *Config) newApp(pub download.Publisher) (*app.App, config.Config, error) {
	fc, err := c.resolve()
	if err != nil {
		return nil, fc, err
	}
	a, err := app.New(fc, app.Options{Logger: c.logger(fc.LogLevel), Publisher: pub})
	return a, fc, err
}

// MainWithArgs is a testable variant of Main that accepts args and a config.
// It returns an exit code (0 for success, non-zero on error).
func MainWithArgs(args []string, cfg *Config) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Err == nil {
		cfg.Err = os.Stderr
	}
	root := buildRootCmdWith(cfg)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(cfg.Err, "error:", err.Error())
		return 1
	}
	return 0
}

// Main returns an exit code for use by cmd/enginectl.
func Main() int { return MainWithArgs(os.Args[1:], DefaultConfig()) }

// Env helpers
func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	s := strings.ToLower(v)
	return s == "1" || s == "true" || s == "yes"
}

// splitCSV splits a comma separated list, dropping empty entries.
func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
