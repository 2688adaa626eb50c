// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config loads the gateway's HJSON configuration file.
package config

import "time"

// Config is the root configuration structure for the Agent Session Gateway.
type Config struct {
	Server      ServerConfig      `json:"server"`
	CLI         CLIConfig         `json:"cli"`
	KeepAlive   KeepAliveConfig   `json:"keepalive"`
	History     HistoryConfig     `json:"history"`
	ReverseCall ReverseCallConfig `json:"reversecall"`
	Logging     LoggingConfig     `json:"logging"`
}

// ServerConfig configures the transport's listening address.
type ServerConfig struct {
	Listen string `json:"listen"`
}

// CLIConfig configures how the gateway spawns the AI CLI child process.
type CLIConfig struct {
	// Path to the CLI binary. Empty means look up "claude" on PATH.
	Path string `json:"path"`
	// GracePeriod is how long a graceful terminate waits before the
	// supervisor escalates to a forceful kill.
	GracePeriod string `json:"grace_period"`
	// ExtraEnv is appended to the child's environment, on top of the
	// mandatory TERM/FORCE_COLOR/LANG/LC_ALL/CLAUDE_CODE_ENTRYPOINT set
	// and the inherited PATH (spec §4.1).
	ExtraEnv map[string]string `json:"extra_env"`
}

// KeepAliveConfig configures the transport's WebSocket keep-alive.
type KeepAliveConfig struct {
	Interval string `json:"interval"`
	Timeout  string `json:"timeout"`
}

// HistoryConfig configures the History Resolver's cache.
type HistoryConfig struct {
	CacheTTL string `json:"cache_ttl"`
	// Watch enables the fsnotify-based proactive cache invalidation.
	Watch bool `json:"watch"`
}

// ReverseCallConfig configures the Reverse-Call Dispatcher.
type ReverseCallConfig struct {
	DefaultTimeout        string  `json:"default_timeout"`
	MaxPendingPerSession  int     `json:"max_pending_per_session"`
	IssueRatePerSecond    float64 `json:"issue_rate_per_second"`
	IssueRateBurst        int     `json:"issue_rate_burst"`
}

// LoggingConfig configures zerolog output.
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"` // "json" or "console"
}

// Durations resolves the string duration fields into time.Duration,
// falling back to the defaults applyDefaults would have set so callers
// never need to re-check for zero values.
type Durations struct {
	CLIGracePeriod           time.Duration
	KeepAliveInterval        time.Duration
	KeepAliveTimeout         time.Duration
	HistoryCacheTTL          time.Duration
	ReverseCallDefaultTimeout time.Duration
}

// Resolve parses the configured duration strings. Invalid durations fall
// back to the documented default for that field.
func (c *Config) Resolve() Durations {
	return Durations{
		CLIGracePeriod:            parseDurationOr(c.CLI.GracePeriod, 500*time.Millisecond),
		KeepAliveInterval:         parseDurationOr(c.KeepAlive.Interval, 30*time.Second),
		KeepAliveTimeout:          parseDurationOr(c.KeepAlive.Timeout, 90*time.Second),
		HistoryCacheTTL:           parseDurationOr(c.History.CacheTTL, 10*time.Second),
		ReverseCallDefaultTimeout: parseDurationOr(c.ReverseCall.DefaultTimeout, 35*time.Second),
	}
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
