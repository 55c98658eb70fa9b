// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package store executes SQL against the ClickHouse data store.
//
// Execute never returns a Go error: every failure is folded into the
// QueryResult so callers can treat execution outcomes as data. The
// underlying connection is created lazily on first use and must be
// released with Close.
package store

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"math"
	"os"
	"reflect"
	"strconv"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// Row is one result row keyed by column name.
type Row = map[string]any

// QueryResult is the outcome of executing one SQL statement.
// Failures populate Success=false and Error; data fields are zero.
type QueryResult struct {
	Success   bool     `json:"success"`
	Data      []Row    `json:"data,omitempty"`
	Columns   []string `json:"columns,omitempty"`
	RowCount  int      `json:"row_count"`
	ElapsedMS float64  `json:"execution_time_ms,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// Executor is the data-store collaborator contract consumed by the
// evaluators and the HTTP shell. Implementations must not panic;
// internal failures populate the result's Error.
type Executor interface {
	Execute(ctx context.Context, sql string) QueryResult
}

// Config holds ClickHouse connection settings.
type Config struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	Secure   bool   `yaml:"secure"`
}

// ConfigFromEnv reads connection settings from CLICKHOUSE_* variables.
// Defaults target ClickHouse Cloud over the native secure port.
func ConfigFromEnv() Config {
	cfg := Config{
		Host:     os.Getenv("CLICKHOUSE_HOST"),
		Port:     9440,
		Username: "default",
		Database: "default",
		Secure:   true,
		Password: os.Getenv("CLICKHOUSE_PASSWORD"),
	}
	if v := os.Getenv("CLICKHOUSE_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v := os.Getenv("CLICKHOUSE_USER"); v != "" {
		cfg.Username = v
	}
	if v := os.Getenv("CLICKHOUSE_DATABASE"); v != "" {
		cfg.Database = v
	}
	if v := os.Getenv("CLICKHOUSE_SECURE"); v == "false" || v == "0" {
		cfg.Secure = false
	}
	return cfg
}

// Client executes queries against ClickHouse. The connection is
// created on first Execute or Ping; Close releases it.
//
// # Thread Safety
//
// Safe for concurrent use; the lazy connection is guarded by a mutex
// and the driver connection itself is a pool.
type Client struct {
	cfg Config

	mu   sync.Mutex
	conn driver.Conn
}

// NewClient creates a client without connecting.
func NewClient(cfg Config) *Client {
	return &Client{cfg: cfg}
}

func (c *Client) getConn() (driver.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn, nil
	}
	if c.cfg.Host == "" {
		return nil, fmt.Errorf("CLICKHOUSE_HOST not configured")
	}

	opts := &clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)},
		Auth: clickhouse.Auth{
			Database: c.cfg.Database,
			Username: c.cfg.Username,
			Password: c.cfg.Password,
		},
		DialTimeout: 10 * time.Second,
	}
	if c.cfg.Secure {
		opts.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse connection: %w", err)
	}
	slog.Info("Connected to ClickHouse", "host", c.cfg.Host, "database", c.cfg.Database)
	c.conn = conn
	return conn, nil
}

// Execute runs one SQL statement and shapes the rows into ordered
// column→value mappings. All failures, including connection setup,
// are captured in the result.
func (c *Client) Execute(ctx context.Context, sql string) QueryResult {
	conn, err := c.getConn()
	if err != nil {
		return QueryResult{Success: false, Error: err.Error()}
	}

	start := time.Now()
	rows, err := conn.Query(ctx, sql)
	if err != nil {
		return QueryResult{Success: false, Error: err.Error()}
	}
	defer rows.Close()

	columns := rows.Columns()
	types := rows.ColumnTypes()

	var data []Row
	for rows.Next() {
		scan := make([]any, len(types))
		for i, ct := range types {
			scan[i] = reflect.New(ct.ScanType()).Interface()
		}
		if err := rows.Scan(scan...); err != nil {
			return QueryResult{Success: false, Error: err.Error()}
		}
		row := make(Row, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(scan[i])
		}
		data = append(data, row)
	}
	if err := rows.Err(); err != nil {
		return QueryResult{Success: false, Error: err.Error()}
	}

	elapsed := math.Round(float64(time.Since(start).Microseconds())/10) / 100

	return QueryResult{
		Success:   true,
		Data:      data,
		Columns:   columns,
		RowCount:  len(data),
		ElapsedMS: elapsed,
	}
}

// Ping verifies the data store is reachable.
func (c *Client) Ping(ctx context.Context) error {
	conn, err := c.getConn()
	if err != nil {
		return err
	}
	return conn.Ping(ctx)
}

// Close releases the connection if one was created.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// normalizeValue flattens driver scan targets into JSON-friendly
// values: pointers are dereferenced (Nullable columns), byte slices
// become strings.
func normalizeValue(v any) any {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	val := rv.Interface()
	if b, ok := val.([]byte); ok {
		return string(b)
	}
	return val
}
