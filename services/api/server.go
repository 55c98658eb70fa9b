// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server wraps the gin engine and its HTTP listener.
type Server struct {
	cfg      Config
	handlers *Handlers
	srv      *http.Server
}

// NewServer builds the router and wires routes and middleware.
func NewServer(cfg Config, handlers *Handlers) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	RegisterRoutes(router, handlers)

	return &Server{
		cfg:      cfg,
		handlers: handlers,
		srv: &http.Server{
			Addr:         cfg.Addr(),
			Handler:      router,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 180 * time.Second,
		},
	}
}

// RegisterRoutes attaches the query service endpoints to a router.
func RegisterRoutes(router *gin.Engine, handlers *Handlers) {
	router.GET("/", handlers.HandleRoot)
	router.GET("/health", handlers.HandleHealth)
	router.POST("/query", handlers.HandleQuery)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	slog.Info("Query service listening", "addr", s.cfg.Addr())
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// requestLogger emits one structured line per request.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Info("Request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start).Round(time.Millisecond))
	}
}
