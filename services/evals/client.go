// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package evals

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// defaultQueryTimeout covers slow model turnaround on a single
// generation request.
const defaultQueryTimeout = 120 * time.Second

type queryRequest struct {
	Question string `json:"question"`
}

type queryResponse struct {
	Success      bool   `json:"success"`
	GeneratedSQL string `json:"generated_sql,omitempty"`
	Error        string `json:"error,omitempty"`
}

type healthResponse struct {
	Status string `json:"status"`
}

// APIClient drives the query service over HTTP and adapts it to the
// GeneratorFunc contract. A client-side rate limiter keeps eval runs
// from hammering the upstream model quota.
type APIClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// APIClientOption customizes an APIClient.
type APIClientOption func(*APIClient)

// WithHTTPClient substitutes the transport, primarily for tests.
func WithHTTPClient(c *http.Client) APIClientOption {
	return func(a *APIClient) { a.http = c }
}

// WithRateLimit bounds request frequency across the run.
func WithRateLimit(l *rate.Limiter) APIClientOption {
	return func(a *APIClient) { a.limiter = l }
}

// NewAPIClient points the client at the query service base URL.
func NewAPIClient(baseURL string, opts ...APIClientOption) *APIClient {
	a := &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultQueryTimeout},
		limiter: rate.NewLimiter(rate.Limit(2), 1),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Generator returns the GeneratorFunc the eval suite drives. Every
// failure mode, transport errors included, lands in the error return
// rather than a panic.
func (a *APIClient) Generator() GeneratorFunc {
	return func(ctx context.Context, question string) (string, error) {
		if err := a.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter: %w", err)
		}

		body, err := json.Marshal(queryRequest{Question: question})
		if err != nil {
			return "", fmt.Errorf("encoding request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/query", bytes.NewReader(body))
		if err != nil {
			return "", fmt.Errorf("building request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := a.http.Do(req)
		if err != nil {
			return "", fmt.Errorf("query request: %w", err)
		}
		defer resp.Body.Close()

		var qr queryResponse
		if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
			return "", fmt.Errorf("decoding response (status %d): %w", resp.StatusCode, err)
		}

		if !qr.Success {
			if qr.Error == "" {
				return "", fmt.Errorf("generation failed (status %d)", resp.StatusCode)
			}
			return "", fmt.Errorf("%s", qr.Error)
		}
		return qr.GeneratedSQL, nil
	}
}

// CheckHealth probes the query service before a run starts. An
// unreachable collaborator is the one failure allowed to abort a
// whole run, so it surfaces as ErrUnreachable.
func (a *APIClient) CheckHealth(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("building health request: %w", err)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	var hr healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&hr); err != nil {
		return fmt.Errorf("%w: bad health response: %v", ErrUnreachable, err)
	}
	if hr.Status != "healthy" {
		// Degraded is not fatal; individual cases will surface what
		// is actually broken.
		slog.Warn("Query service reports degraded health", "status", hr.Status)
	}
	return nil
}
