// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package httpapi serves storage layout diffs over HTTP.
//
// # Description
//
// A stateless diff-as-a-service surface for teams that keep their layout
// snapshots elsewhere: POST both layouts, get the JSON report back. The
// server carries no snapshot store and no forge; it only compares what
// the request brings.
//
// # Endpoints
//
//   - POST /v1/diff - compare two layout JSON documents
//   - GET  /healthz - liveness probe
//   - GET  /metrics - Prometheus metrics
//
// # Thread Safety
//
// The server is safe for concurrent requests; handlers share no mutable
// state beyond the Prometheus instruments.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultShutdownTimeout bounds how long Run waits for in-flight
// requests after the context is cancelled.
const DefaultShutdownTimeout = 10 * time.Second

// Config carries the server's construction parameters.
type Config struct {
	// Addr is the listen address, for example ":8799".
	Addr string

	// Logger receives request and lifecycle logs. Defaults to
	// slog.Default().
	Logger *slog.Logger

	// Registry owns the Prometheus instruments and backs /metrics.
	// Defaults to a fresh private registry.
	Registry *prometheus.Registry

	// Debug switches gin out of release mode.
	Debug bool

	// ShutdownTimeout bounds the graceful drain. Defaults to
	// DefaultShutdownTimeout.
	ShutdownTimeout time.Duration
}

// Server is the HTTP diff service.
type Server struct {
	engine  *gin.Engine
	logger  *slog.Logger
	metrics *Metrics

	addr            string
	shutdownTimeout time.Duration
}

// NewServer builds the engine, middleware and routes. It does not
// listen; call Run.
func NewServer(cfg Config) *Server {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}

	s := &Server{
		logger:          logger,
		metrics:         NewMetrics(registry),
		addr:            cfg.Addr,
		shutdownTimeout: timeout,
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(s.requestLog())

	engine.GET("/healthz", s.handleHealth)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	v1 := engine.Group("/v1")
	{
		v1.POST("/diff", s.handleDiff)
	}

	s.engine = engine
	return s
}

// Handler exposes the engine for tests and custom mounting.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is cancelled, then drains in-flight requests for
// at most the configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("diff service listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down diff service", "timeout", s.shutdownTimeout.String())
	drainCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// requestLog logs every request and feeds the latency histogram. The
// route label uses the registered pattern, not the raw path, so metric
// cardinality stays bounded.
func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		s.metrics.ObserveRequest(route, strconv.Itoa(status), elapsed.Seconds())

		s.logger.Info("request",
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
			"client", c.ClientIP(),
		)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
