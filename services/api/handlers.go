// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package api

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/guardrail-labs/sqlfence/services/engine"
	"github.com/guardrail-labs/sqlfence/services/grammar"
	"github.com/guardrail-labs/sqlfence/services/store"
)

// QueryRequest is the /query request body. Question length is bounded
// to keep prompt sizes sane. Model, when set, overrides the configured
// generation model for this request only.
type QueryRequest struct {
	Question string `json:"question" binding:"required,min=3,max=500"`
	Model    string `json:"model"`
}

// QueryResponse is the /query response body. Failures are data, not
// HTTP errors: generation and execution problems return 200 with
// success=false so callers always get the same shape.
type QueryResponse struct {
	Success      bool           `json:"success"`
	Question     string         `json:"question"`
	GeneratedSQL string         `json:"generated_sql,omitempty"`
	Result       map[string]any `json:"result,omitempty"`
	Error        string         `json:"error,omitempty"`
}

// HealthResponse is the /health response body.
type HealthResponse struct {
	Status              string `json:"status"`
	OpenAIConfigured    bool   `json:"openai_configured"`
	ClickHouseConnected bool   `json:"clickhouse_connected"`
}

// SQLGenerator is the generation dependency. Satisfied by
// engine.Generator and faked in tests. An empty model means the
// generator's configured default.
type SQLGenerator interface {
	GenerateWithModel(ctx context.Context, question, model string) engine.GenerationResult
}

// DataStore is the execution dependency: query execution plus a
// liveness probe for /health.
type DataStore interface {
	store.Executor
	Ping(ctx context.Context) error
}

// Handlers carries the query service dependencies.
type Handlers struct {
	gen       SQLGenerator
	validator *grammar.Validator
	store     DataStore
	metrics   *Metrics
}

// NewHandlers wires the query pipeline dependencies.
func NewHandlers(gen SQLGenerator, validator *grammar.Validator, ds DataStore, metrics *Metrics) *Handlers {
	return &Handlers{
		gen:       gen,
		validator: validator,
		store:     ds,
		metrics:   metrics,
	}
}

// HandleRoot describes the service.
func (h *Handlers) HandleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "sqlfence query service",
		"endpoints": gin.H{
			"POST /query": "Submit a natural language question",
			"GET /health": "Check service health",
		},
	})
}

// HandleHealth reports configuration and connectivity. The service is
// healthy only when the model key is configured and ClickHouse
// answers a ping; anything less is degraded, never an HTTP error.
func (h *Handlers) HandleHealth(c *gin.Context) {
	openaiConfigured := os.Getenv("OPENAI_API_KEY") != ""

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	clickhouseConnected := h.store.Ping(ctx) == nil

	status := "degraded"
	if openaiConfigured && clickhouseConnected {
		status = "healthy"
	}

	c.JSON(http.StatusOK, HealthResponse{
		Status:              status,
		OpenAIConfigured:    openaiConfigured,
		ClickHouseConnected: clickhouseConnected,
	})
}

// HandleQuery runs the full pipeline: generate SQL from the question,
// re-check it against the grammar, execute it, and shape the results.
// The independent validation pass means no string reaches ClickHouse
// on the generator's word alone.
func (h *Handlers) HandleQuery(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()

	genStart := time.Now()
	genResult := h.gen.GenerateWithModel(ctx, req.Question, req.Model)
	h.metrics.GenerationSeconds.Observe(time.Since(genStart).Seconds())

	if !genResult.Success {
		h.metrics.QueriesTotal.WithLabelValues("generation_failed").Inc()
		c.JSON(http.StatusOK, QueryResponse{
			Success:  false,
			Question: req.Question,
			Error:    "SQL generation failed: " + genResult.Error,
		})
		return
	}

	if err := h.validator.Validate(genResult.SQL); err != nil {
		h.metrics.ValidationRejects.Inc()
		h.metrics.QueriesTotal.WithLabelValues("validation_rejected").Inc()
		slog.Warn("Generated SQL failed validation",
			"question", req.Question, "sql", genResult.SQL, "error", err)
		c.JSON(http.StatusOK, QueryResponse{
			Success:      false,
			Question:     req.Question,
			GeneratedSQL: genResult.SQL,
			Error:        "Generated SQL failed grammar validation: " + err.Error(),
		})
		return
	}

	execStart := time.Now()
	queryResult := h.store.Execute(ctx, genResult.SQL)
	h.metrics.ExecutionSeconds.Observe(time.Since(execStart).Seconds())

	if !queryResult.Success {
		h.metrics.QueriesTotal.WithLabelValues("execution_failed").Inc()
		c.JSON(http.StatusOK, QueryResponse{
			Success:      false,
			Question:     req.Question,
			GeneratedSQL: genResult.SQL,
			Error:        "Query execution failed: " + queryResult.Error,
		})
		return
	}

	h.metrics.QueriesTotal.WithLabelValues("success").Inc()
	c.JSON(http.StatusOK, QueryResponse{
		Success:      true,
		Question:     req.Question,
		GeneratedSQL: genResult.SQL,
		Result: map[string]any{
			"data":              queryResult.Data,
			"columns":           queryResult.Columns,
			"row_count":         queryResult.RowCount,
			"execution_time_ms": queryResult.ElapsedMS,
		},
	})
}
