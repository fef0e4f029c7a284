package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/lucaslui/hems/sensor-bridge/internal/config"
	"github.com/lucaslui/hems/sensor-bridge/internal/handler"
)

// Server holds the Echo app serving the query side.
type Server struct {
	Echo   *echo.Echo
	Config config.HTTPConfig
	logger zerolog.Logger
}

// New builds the Echo server and registers routes. gatherer may be nil to
// leave out /metrics.
func New(cfg config.HTTPConfig, latest handler.LatestReader, gatherer prometheus.Gatherer, logger zerolog.Logger) *Server {
	logger = logger.With().Str("component", "http").Logger()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:     true,
		LogStatus:  true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			logger.Debug().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	}))

	latestHandler := &handler.LatestHandler{Latest: latest}
	e.GET("/latest-data", latestHandler.GetLatest)
	e.GET("/health", handler.Health)
	if gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	return &Server{Echo: e, Config: cfg, logger: logger}
}

// Start serves until ctx is cancelled, then shuts down within
// Config.ShutdownTimeout.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.Config.Addr).Msg("http server listening")
		errCh <- s.Echo.Start(s.Config.Addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.Config.ShutdownTimeout)
	defer cancel()
	if err := s.Echo.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info().Msg("http server stopped")
	return nil
}
