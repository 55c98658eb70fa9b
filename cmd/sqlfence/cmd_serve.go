// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/guardrail-labs/sqlfence/services/api"
	"github.com/guardrail-labs/sqlfence/services/engine"
	"github.com/guardrail-labs/sqlfence/services/grammar"
	"github.com/guardrail-labs/sqlfence/services/store"
)

var (
	serveConfigPath string
	servePort       int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the query service",
	Long: `Starts the HTTP query service.

The service accepts natural language questions on POST /query,
generates SQL constrained to the whitelist grammar, validates the
result independently, and executes it against ClickHouse.

Requires OPENAI_API_KEY and CLICKHOUSE_* environment variables.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "Path to YAML config file")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := api.LoadConfig(serveConfigPath)
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Port = servePort
	}

	if os.Getenv("OPENAI_API_KEY") == "" {
		slog.Warn("OPENAI_API_KEY not set; generation requests will fail")
	}
	if cfg.ClickHouse.Host == "" {
		slog.Warn("CLICKHOUSE_HOST not set; execution requests will fail")
	}

	spec := grammar.DefaultSpec()
	validator, err := grammar.NewValidator(spec)
	if err != nil {
		return fmt.Errorf("building validator: %w", err)
	}

	generator, err := engine.NewGenerator(spec, engine.WithModel(cfg.Model))
	if err != nil {
		return fmt.Errorf("building generator: %w", err)
	}

	client := store.NewClient(cfg.ClickHouse)
	defer client.Close()

	handlers := api.NewHandlers(generator, validator, client, api.NewMetrics(prometheus.DefaultRegisterer))
	server := api.NewServer(cfg, handlers)

	// Serve until interrupted, then drain.
	errCh := make(chan error, 1)
	go func() { errCh <- server.Run() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		slog.Info("Shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(ctx)
	}
}
