// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/wingedpig/sessiongate/internal/config"
	"github.com/wingedpig/sessiongate/internal/gateway"
)

var version = "0.1.0"

const (
	exitOK        = 0
	exitBindError = 1
	exitConfigErr = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("sessiongate", flag.ContinueOnError)

	var (
		configPath  string
		listen      string
		claudePath  string
		graceMs     int
		showVersion bool
	)
	fs.StringVar(&configPath, "config", "", "Path to config file (default: auto-detect)")
	fs.StringVar(&configPath, "c", "", "Path to config file (short)")
	fs.StringVar(&listen, "listen", "", "Listen address (overrides config)")
	fs.StringVar(&claudePath, "claude", "", "Path to the CLI binary (overrides config)")
	fs.IntVar(&graceMs, "grace-ms", 0, "Graceful terminate grace period in milliseconds (overrides config)")
	fs.BoolVar(&showVersion, "version", false, "Show version")
	fs.BoolVar(&showVersion, "v", false, "Show version (short)")

	if len(args) > 0 && args[0] == "serve" {
		args = args[1:]
	}
	if err := fs.Parse(args); err != nil {
		return exitConfigErr
	}

	if showVersion {
		fmt.Printf("sessiongate %s\n", version)
		return exitOK
	}

	if configPath == "" {
		found, err := config.NewLoader().FindConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			return exitConfigErr
		}
		configPath = found
	}

	cfg, err := config.NewLoader().LoadWithDefaults(context.Background(), configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return exitConfigErr
	}

	if listen != "" {
		cfg.Server.Listen = listen
	}
	if claudePath != "" {
		cfg.CLI.Path = claudePath
	}
	if graceMs > 0 {
		cfg.CLI.GracePeriod = fmt.Sprintf("%dms", graceMs)
	}

	log := newLogger(cfg.Logging)
	log.Info().Str("config", configPath).Str("version", version).Msg("starting sessiongate")

	gw := gateway.New(*cfg, log)
	if err := gw.Run(context.Background()); err != nil {
		log.Error().Err(err).Msg("server error")
		return exitBindError
	}

	return exitOK
}

func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = "2006-01-02T15:04:05.000Z07:00"

	var writer interface {
		Write(p []byte) (n int, err error)
	} = os.Stdout
	if cfg.Format == "console" {
		writer = zerolog.ConsoleWriter{Out: os.Stdout}
	}

	return zerolog.New(writer).With().Timestamp().Str("service", "sessiongate").Logger()
}
