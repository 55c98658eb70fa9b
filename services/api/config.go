// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package api exposes the query service over HTTP: natural language
// in, grammar-checked SQL plus ClickHouse results out.
package api

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/guardrail-labs/sqlfence/services/store"
)

// Config holds the query service configuration. Values load from an
// optional YAML file, then environment variables override. Secrets
// (API keys, database passwords) come only from the environment.
type Config struct {
	// Host is the listen address. Default binds all interfaces.
	Host string `yaml:"host"`

	// Port is the HTTP listen port.
	Port int `yaml:"port"`

	// Model is the default generation model.
	Model string `yaml:"model"`

	// ClickHouse is the data store connection settings. The password
	// is environment-only and never read from YAML.
	ClickHouse store.Config `yaml:"clickhouse"`
}

// DefaultConfig mirrors the service's conventional local setup.
func DefaultConfig() Config {
	return Config{
		Host:       "0.0.0.0",
		Port:       8000,
		Model:      "gpt-5",
		ClickHouse: store.ConfigFromEnv(),
	}
}

// LoadConfig reads the YAML file when path is non-empty, then applies
// environment overrides. A missing file at an explicit path is an
// error; an empty path means environment-only configuration.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return Config{}, fmt.Errorf("invalid port %d", cfg.Port)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("API_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("API_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		cfg.Model = v
	}
	// ClickHouse credentials always defer to the environment when set.
	env := store.ConfigFromEnv()
	if os.Getenv("CLICKHOUSE_HOST") != "" {
		cfg.ClickHouse.Host = env.Host
	}
	if os.Getenv("CLICKHOUSE_PORT") != "" {
		cfg.ClickHouse.Port = env.Port
	}
	if os.Getenv("CLICKHOUSE_USER") != "" {
		cfg.ClickHouse.Username = env.Username
	}
	if os.Getenv("CLICKHOUSE_PASSWORD") != "" {
		cfg.ClickHouse.Password = env.Password
	}
	if os.Getenv("CLICKHOUSE_DATABASE") != "" {
		cfg.ClickHouse.Database = env.Database
	}
}

// Addr returns the listen address in host:port form.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
