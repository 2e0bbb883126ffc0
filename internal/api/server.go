// Package api serves the token views, view configuration and the change
// stream over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"token_sync/internal/domain"
	"token_sync/internal/engine"
	"token_sync/internal/query"
)

// Engine is the read side of the sequencer the API needs.
type Engine interface {
	State() engine.State
	NextSeq() uint64
	Counts() map[domain.Category]int
	Token(id string) (domain.Category, domain.Token, map[domain.Field]domain.Direction, error)
	Flashes() []domain.Flash
}

// Recorder receives API measurements. metrics.Collector implements it.
type Recorder interface {
	RecordHTTPRequest(method, route string, status int, d time.Duration)
	StreamClients(n int)
	RateLimited()
}

type nopRecorder struct{}

func (nopRecorder) RecordHTTPRequest(string, string, int, time.Duration) {}
func (nopRecorder) StreamClients(int)                                    {}
func (nopRecorder) RateLimited()                                         {}

// Deps wires the router. Stream, Limiter, Metrics and Recorder are optional.
type Deps struct {
	Engine   Engine
	Service  *query.Service
	Stream   *Stream
	Limiter  *RateLimiter
	Metrics  http.Handler
	Recorder Recorder
}

// NewRouter builds the gin engine with every route.
func NewRouter(d Deps) *gin.Engine {
	if d.Recorder == nil {
		d.Recorder = nopRecorder{}
	}
	h := &Handler{engine: d.Engine, svc: d.Service, stream: d.Stream, now: time.Now}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(d.Recorder))

	r.GET("/healthz", h.Health)
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics))
	}

	v1 := r.Group("/api/v1")
	if d.Limiter != nil {
		v1.Use(d.Limiter.Middleware(d.Recorder))
	}
	{
		v1.GET("/tokens", h.ListTokens)
		v1.GET("/tokens/:id", h.GetToken)
		v1.GET("/flashes", h.ListFlashes)

		v1.GET("/config/sort", h.GetSort)
		v1.PUT("/config/sort", h.PutSort)
		v1.POST("/config/sort/toggle", h.ToggleSort)

		v1.GET("/config/filter", h.GetFilter)
		v1.PATCH("/config/filter", h.PatchFilter)
		v1.DELETE("/config/filter", h.ResetFilter)

		v1.GET("/config/category", h.GetCategory)
		v1.PUT("/config/category", h.PutCategory)

		if d.Stream != nil {
			v1.GET("/stream", d.Stream.Handle)
		}
	}
	return r
}

// requestLogger records every request and logs failures.
func requestLogger(rec Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)
		rec.RecordHTTPRequest(c.Request.Method, route, status, elapsed)

		if status >= http.StatusInternalServerError {
			slog.Warn("HTTP request failed",
				slog.String("method", c.Request.Method),
				slog.String("path", c.Request.URL.Path),
				slog.Int("status", status),
				slog.Duration("elapsed", elapsed))
		} else {
			slog.Debug("HTTP request",
				slog.String("method", c.Request.Method),
				slog.String("path", c.Request.URL.Path),
				slog.Int("status", status),
				slog.Duration("elapsed", elapsed))
		}
	}
}

// Serve runs an HTTP server on addr until ctx is cancelled, then shuts it
// down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	<-errCh
	slog.Info("HTTP server stopped")
	return nil
}
