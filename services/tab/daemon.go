// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tab

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianTab/pkg/logging"
	"github.com/AleutianAI/AleutianTab/services/tab/telemetry"
	"github.com/AleutianAI/AleutianTab/services/tab/transport"
)

// Version is the daemon version reported by /health and get_stats.
const Version = "0.1.0"

// errStdioEOF marks a clean editor disconnect on stdin. It stops the
// remaining transports without being reported as a failure.
var errStdioEOF = errors.New("stdio closed")

var wsConnections = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "aleutian",
	Subsystem: "tab",
	Name:      "ws_connections",
	Help:      "Open WebSocket editor connections",
})

// Daemon wires a Service to its transports: the stdio JSON-RPC loop
// and an optional HTTP listener for WebSocket editors, stats, and
// Prometheus scrapes.
type Daemon struct {
	cfg    Config
	log    *logging.Logger
	svc    *Service
	server *transport.Server
	router *gin.Engine
}

// NewDaemon builds the service and both transports. Run starts them.
func NewDaemon(cfg Config, log *logging.Logger) (*Daemon, error) {
	if log == nil {
		log = logging.Default()
	}

	svc, err := NewService(cfg, log)
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		cfg:    cfg,
		log:    log.With("component", "tab.daemon"),
		svc:    svc,
		server: transport.NewServer(svc, log),
	}
	d.router = d.initRouter()
	return d, nil
}

// Service exposes the daemon core for in-process callers such as the
// CLI simulator.
func (d *Daemon) Service() *Service {
	return d.svc
}

// initRouter builds the gin engine for the HTTP listener.
//
// gin.Default is not usable here: its access log writes to stdout,
// which carries the stdio JSON-RPC stream.
func (d *Daemon) initRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("aleutian-tab"))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": Version})
	})

	// The Prometheus handler exists only after telemetry.Init has run,
	// so it is looked up per request rather than at route time.
	router.GET("/metrics", func(c *gin.Context) {
		h := telemetry.MetricsHandler()
		if h == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "metrics exporter not enabled"})
			return
		}
		h.ServeHTTP(c.Writer, c.Request)
	})

	v1 := router.Group("/v1")
	RegisterRoutes(v1, NewHandlers(d.svc, wsWithGauge(d.server.WSHandler())))
	return router
}

// wsWithGauge tracks open editor connections around the WebSocket
// handler.
func wsWithGauge(next gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		wsConnections.Inc()
		defer wsConnections.Dec()
		next(c)
	}
}

// Run serves until ctx is cancelled or, in stdio mode, until stdin
// closes. It owns the service lifecycle: the policy is saved and
// telemetry flushed on the way out.
//
// Inputs:
//
//	ctx - Cancelling it begins a graceful shutdown.
//	stdio - Serve JSON-RPC on stdin/stdout. The HTTP listener runs
//	        whenever cfg.HTTPAddr is set; at least one transport is
//	        required.
func (d *Daemon) Run(ctx context.Context, stdio bool) error {
	if !stdio && d.cfg.HTTPAddr == "" {
		return errors.New("no transport configured: enable stdio or set an HTTP address")
	}

	tcfg := telemetry.DefaultConfig()
	tcfg.ServiceVersion = Version
	shutdownTelemetry, err := telemetry.Init(ctx, tcfg)
	if err != nil {
		d.log.Warn("Telemetry init failed, continuing without exporters", "error", err)
		shutdownTelemetry = func(context.Context) error { return nil }
	}

	g, gCtx := errgroup.WithContext(ctx)

	if d.cfg.HTTPAddr != "" {
		srv := &http.Server{Addr: d.cfg.HTTPAddr, Handler: d.router}
		g.Go(func() error {
			d.log.Info("HTTP listener started", "addr", d.cfg.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http listener: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if stdio {
		g.Go(func() error {
			d.log.Info("Serving JSON-RPC on stdio", "model", d.cfg.Model)
			errc := make(chan error, 1)
			go func() {
				errc <- d.server.Serve(gCtx, os.Stdin, os.Stdout)
			}()
			select {
			case err := <-errc:
				if err != nil {
					return err
				}
				return errStdioEOF
			case <-gCtx.Done():
				// A blocked read on stdin cannot be interrupted; the
				// reader goroutine is abandoned and dies with the
				// process.
				return gCtx.Err()
			}
		})
	}

	err = g.Wait()
	if errors.Is(err, errStdioEOF) || errors.Is(err, context.Canceled) {
		err = nil
	}

	if cerr := d.svc.Close(); cerr != nil {
		d.log.Warn("Shutdown save failed", "error", cerr)
	}
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if terr := shutdownTelemetry(flushCtx); terr != nil {
		d.log.Warn("Telemetry shutdown failed", "error", terr)
	}

	d.log.Info("Daemon stopped")
	return err
}
