// Package config loads CLI settings from TOML files: ~/.wslb/config.toml
// overlaid by a project-local .wslb/config.toml.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	defaultUser     = "root"
	defaultLogLevel = "info"
)

// Config stores runtime settings loaded from TOML files.
type Config struct {
	// DefaultUser is the guest username used when a command does not
	// name one.
	DefaultUser string
	// DefaultDistribution optionally names the distribution to target
	// when a command does not; empty means the service default.
	DefaultDistribution string
	LogLevel            string
	TelemetryEnabled    bool
	TelemetryEndpoint   string
}

type fileConfig struct {
	DefaultUser         *string `toml:"default_user"`
	DefaultDistribution *string `toml:"default_distribution"`
	LogLevel            *string `toml:"log_level"`
	Telemetry           *struct {
		Enabled  *bool   `toml:"enabled"`
		Endpoint *string `toml:"endpoint"`
	} `toml:"telemetry"`
}

// Load reads config from ~/.wslb/config.toml and overlays a project-local
// .wslb/config.toml.
func Load(ctx context.Context) (*Config, error) {
	cfg := defaults()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}
	workingDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}

	paths := []string{
		filepath.Join(homeDir, ".wslb", "config.toml"),
		filepath.Join(workingDir, ".wslb", "config.toml"),
	}
	for _, path := range paths {
		if err := overlayFromFile(&cfg, path); err != nil {
			return nil, err
		}
	}

	_ = ctx
	return &cfg, nil
}

func defaults() Config {
	return Config{
		DefaultUser: defaultUser,
		LogLevel:    defaultLogLevel,
	}
}

func overlayFromFile(cfg *Config, path string) error {
	if cfg == nil {
		return errors.New("config must not be nil")
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat config file %q: %w", path, err)
	}

	var decoded fileConfig
	if _, err := toml.DecodeFile(path, &decoded); err != nil {
		return fmt.Errorf("decode config file %q: %w", path, err)
	}

	if decoded.DefaultUser != nil {
		cfg.DefaultUser = strings.TrimSpace(*decoded.DefaultUser)
	}
	if decoded.DefaultDistribution != nil {
		cfg.DefaultDistribution = strings.TrimSpace(*decoded.DefaultDistribution)
	}
	if decoded.LogLevel != nil {
		level := strings.ToLower(strings.TrimSpace(*decoded.LogLevel))
		switch level {
		case "debug", "info", "warn", "error":
			cfg.LogLevel = level
		default:
			return fmt.Errorf("parse log_level in %q: unsupported level %q", path, level)
		}
	}
	if decoded.Telemetry != nil {
		if decoded.Telemetry.Enabled != nil {
			cfg.TelemetryEnabled = *decoded.Telemetry.Enabled
		}
		if decoded.Telemetry.Endpoint != nil {
			cfg.TelemetryEndpoint = strings.TrimSpace(*decoded.Telemetry.Endpoint)
		}
	}

	return nil
}
