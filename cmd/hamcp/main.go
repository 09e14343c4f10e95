// Copyright (C) 2025 Dyne.org foundation
// designed, written and maintained by Denis Roio <jaromil@dyne.org>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"hamcp/internal/config"
	"hamcp/internal/fileops"
	"hamcp/internal/hacli"
	"hamcp/internal/server"
	"hamcp/internal/supervisor"
	"hamcp/internal/tools"
)

var (
	debugMode  = flag.Bool("d", false, "Enable debug mode")
	logFile    = flag.String("log-file", "", "Log file path (logs to stderr by default)")
	configPath = flag.String("config", "/data/options.json", "Path to the options file")
	port       = flag.Int("port", 0, "Override the listen port")
)

func main() {
	flag.Parse()

	logger := initLogger(*debugMode, *logFile)
	logger.Info().Msg("MCP server starting")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if *port > 0 {
		cfg.Port = *port
	}
	for _, warning := range cfg.Validate() {
		logger.Warn().Str("field", warning.Field).Msg(warning.Message)
	}

	files, err := fileops.NewHandler(cfg.AllowedDirs, cfg.ReadOnly, cfg.MaxFileSizeBytes(), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize file handler")
	}

	deps := tools.Deps{
		Files: files,
		CLI:   hacli.NewService(cfg.EnableHACLI, cfg.CLITimeout(), cfg.CLIMaxOutputBytes, logger),
	}
	if cfg.SupervisorToken != "" {
		client, err := supervisor.NewClient(cfg.SupervisorURL, cfg.SupervisorToken, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize supervisor client")
		}
		deps.Supervisor = client
	} else {
		logger.Info().Msg("SUPERVISOR_TOKEN not set, supervisor tools disabled")
	}

	registry := tools.NewRegistry(deps, cfg, logger)
	logger.Info().
		Strs("tools", registry.Names()).
		Bool("read_only", cfg.ReadOnly).
		Int("allowed_dirs", len(cfg.AllowedDirs)).
		Msg("registry ready")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.New(cfg, registry, logger).Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server failed")
	}
	logger.Info().Msg("MCP server stopped")
}

func initLogger(debug bool, logFilePath string) zerolog.Logger {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	var output io.Writer = os.Stderr
	if logFilePath != "" {
		file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.Fatalf("Failed to open log file: %v", err)
		}
		output = file
	}

	return zerolog.New(output).With().Timestamp().Logger()
}
