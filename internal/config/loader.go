// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hjson/hjson-go/v4"
)

// Loader handles configuration file loading.
type Loader struct{}

// NewLoader creates a new config loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load reads and parses the configuration from the given path.
func (l *Loader) Load(ctx context.Context, path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Parse HJSON to an intermediate map first so comments/relaxed
	// syntax never touch the strict struct decoder directly.
	var raw map[string]interface{}
	if err := hjson.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse hjson: %w", err)
	}

	jsonData, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("convert to json: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(jsonData, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// LoadWithDefaults loads config with default values applied.
func (l *Loader) LoadWithDefaults(ctx context.Context, path string) (*Config, error) {
	cfg, err := l.Load(ctx, path)
	if err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	return cfg, nil
}

// FindConfig searches for a config file in the current directory, looking
// for sessiongate.hjson first, then sessiongate.json.
func (l *Loader) FindConfig() (string, error) {
	candidates := []string{
		"sessiongate.hjson",
		"sessiongate.json",
	}

	for _, name := range candidates {
		path := filepath.Join(".", name)
		if _, err := os.Stat(path); err == nil {
			abs, err := filepath.Abs(path)
			if err != nil {
				return path, nil
			}
			return abs, nil
		}
	}

	return "", fmt.Errorf("config file not found (looked for sessiongate.hjson, sessiongate.json)")
}

// applyDefaults sets default values for missing config fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = "127.0.0.1:8787"
	}

	if cfg.CLI.Path == "" {
		cfg.CLI.Path = "claude"
	}
	if cfg.CLI.GracePeriod == "" {
		cfg.CLI.GracePeriod = "500ms"
	}

	if cfg.KeepAlive.Interval == "" {
		cfg.KeepAlive.Interval = "30s"
	}
	if cfg.KeepAlive.Timeout == "" {
		cfg.KeepAlive.Timeout = "90s"
	}

	if cfg.History.CacheTTL == "" {
		cfg.History.CacheTTL = "10s"
	}

	if cfg.ReverseCall.DefaultTimeout == "" {
		cfg.ReverseCall.DefaultTimeout = "35s"
	}
	if cfg.ReverseCall.MaxPendingPerSession == 0 {
		cfg.ReverseCall.MaxPendingPerSession = 10000
	}
	if cfg.ReverseCall.IssueRatePerSecond == 0 {
		cfg.ReverseCall.IssueRatePerSecond = 50
	}
	if cfg.ReverseCall.IssueRateBurst == 0 {
		cfg.ReverseCall.IssueRateBurst = 100
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}
