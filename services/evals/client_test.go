// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package evals

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestAPIClientGenerator_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/query", r.URL.Path)

		var req queryRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "How many transactions are there?", req.Question)

		json.NewEncoder(w).Encode(queryResponse{
			Success:      true,
			GeneratedSQL: "SELECT count(*) FROM Transactions;",
		})
	}))
	defer srv.Close()

	gen := NewAPIClient(srv.URL, WithRateLimit(rate.NewLimiter(rate.Inf, 1))).Generator()

	sql, err := gen(context.Background(), "How many transactions are there?")
	require.NoError(t, err)
	assert.Equal(t, "SELECT count(*) FROM Transactions;", sql)
}

func TestAPIClientGenerator_ServiceFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(queryResponse{
			Success: false,
			Error:   "question cannot be expressed in the grammar",
		})
	}))
	defer srv.Close()

	gen := NewAPIClient(srv.URL, WithRateLimit(rate.NewLimiter(rate.Inf, 1))).Generator()

	sql, err := gen(context.Background(), "drop the table")
	require.Error(t, err)
	assert.Empty(t, sql)
	assert.Contains(t, err.Error(), "cannot be expressed")
}

func TestAPIClientGenerator_TransportErrorIsError(t *testing.T) {
	gen := NewAPIClient("http://127.0.0.1:1", WithRateLimit(rate.NewLimiter(rate.Inf, 1))).Generator()

	sql, err := gen(context.Background(), "anything")
	require.Error(t, err)
	assert.Empty(t, sql)
}

func TestAPIClientCheckHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/health", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{"status": "healthy"})
	}))
	defer srv.Close()

	client := NewAPIClient(srv.URL)
	assert.NoError(t, client.CheckHealth(context.Background()))
}

func TestAPIClientCheckHealth_Unreachable(t *testing.T) {
	client := NewAPIClient("http://127.0.0.1:1")

	err := client.CheckHealth(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestAPIClientCheckHealth_DegradedIsNotFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"status": "degraded"})
	}))
	defer srv.Close()

	client := NewAPIClient(srv.URL)
	assert.NoError(t, client.CheckHealth(context.Background()))
}
