// Package server exposes booking and reply webhooks, a sweep trigger, and
// Prometheus metrics over HTTP.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/cadence/internal/executor"
	"github.com/zulandar/cadence/internal/intake"
	"github.com/zulandar/cadence/internal/reply"
	"github.com/zulandar/cadence/internal/telemetry"
)

// Opts holds the handlers the server routes to.
type Opts struct {
	Addr       string
	Intake     *intake.Service
	Replies    *reply.Handler
	Executor   *executor.Executor
	Metrics    *telemetry.Metrics
	SweepToken string
	Out        io.Writer
}

// NewRouter builds the gin engine. Routes whose handler is nil are not
// registered.
func NewRouter(opts Opts) (*gin.Engine, error) {
	if opts.Intake == nil && opts.Replies == nil && opts.Executor == nil {
		return nil, fmt.Errorf("server: at least one handler is required")
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	registerRoutes(router, opts)
	return router, nil
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func Start(ctx context.Context, opts Opts) error {
	router, err := NewRouter(opts)
	if err != nil {
		return err
	}
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Listening on %s\n", opts.Addr)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}
