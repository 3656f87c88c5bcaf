// Package server exposes the controller over a JSON HTTP API.
package server

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"pharmacy-forecast/internal/engine"
)

// Options configure the HTTP server.
type Options struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// Gatherer backs /metrics; defaults to the global registry.
	Gatherer prometheus.Gatherer
}

// Server wraps a fiber app bound to one controller.
type Server struct {
	opts   Options
	app    *fiber.App
	ctl    *engine.Controller
	logger zerolog.Logger
}

// New builds the server and registers routes.
func New(opts Options, ctl *engine.Controller, logger zerolog.Logger) *Server {
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		opts:   opts,
		ctl:    ctl,
		logger: logger.With().Str("component", "http").Logger(),
	}
	s.app = fiber.New(fiber.Config{
		AppName:               "pharmaforecast",
		ReadTimeout:           opts.ReadTimeout,
		WriteTimeout:          opts.WriteTimeout,
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	s.app.Use(recover.New())
	s.app.Use(s.accessLog)
	s.routes()
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.opts.Addr).Msg("http server listening")
		errCh <- s.app.Listen(s.opts.Addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	if err := s.app.ShutdownWithTimeout(5 * time.Second); err != nil {
		return err
	}
	s.logger.Info().Msg("http server stopped")
	return nil
}

func (s *Server) routes() {
	s.app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})))

	api := s.app.Group("/api")
	api.Get("/targets", s.handleTargets)
	api.Get("/timeframes", s.handleTimeframes)
	api.Get("/view", s.handleView)
	api.Post("/target", s.handleSelectTarget)
	api.Post("/timeframe", s.handleTimeframe)
	api.Get("/chart", s.handleChart)
	api.Get("/metrics", s.handleMetrics)
	api.Post("/forecast/refresh", s.handleRefresh)
	api.Post("/retrain", s.handleRetrain)
	api.Post("/retrain/bulk", s.handleRetrainBulk)
	api.Get("/notices", s.handleNotices)
	api.Delete("/notices/:id", s.handleDismiss)
}

func (s *Server) accessLog(c *fiber.Ctx) error {
	started := time.Now()
	err := c.Next()
	s.logger.Debug().
		Str("method", c.Method()).
		Str("path", c.Path()).
		Int("status", c.Response().StatusCode()).
		Dur("elapsed", time.Since(started)).
		Msg("request")
	return err
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	}
	return c.Status(status).JSON(fiber.Map{"success": false, "message": err.Error()})
}

func ok(c *fiber.Ctx, data any) error {
	return c.JSON(fiber.Map{"success": true, "data": data})
}

func statusFor(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, engine.ErrNoTarget),
		errors.Is(err, engine.ErrInvalidTimeframe),
		errors.Is(err, engine.ErrInvalidRequest):
		return fiber.StatusBadRequest
	case errors.Is(err, engine.ErrUnknownTarget):
		return fiber.StatusNotFound
	case errors.Is(err, engine.ErrThrottled), errors.Is(err, engine.ErrInFlight):
		return fiber.StatusTooManyRequests
	case errors.Is(err, engine.ErrLocked):
		return fiber.StatusConflict
	case errors.Is(err, engine.ErrTraining):
		return fiber.StatusBadGateway
	case isUnavailable(err):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}
