package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/replbox/replbox/internal/auth"
	"github.com/replbox/replbox/internal/metrics"
	"github.com/replbox/replbox/internal/sandbox"
)

// Server holds the API server dependencies.
type Server struct {
	echo     *echo.Echo
	registry *sandbox.Registry
	logger   *zerolog.Logger
}

// NewServer creates a new API server with all routes configured.
func NewServer(reg *sandbox.Registry, apiKey string, logger *zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:     e,
		registry: reg,
		logger:   logger,
	}

	// Global middleware
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())
	e.Use(metrics.EchoMiddleware())
	e.Use(auth.APIKeyMiddleware(apiKey, "/health", "/metrics"))

	e.GET("/health", s.health)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	// Sandbox lifecycle
	e.POST("/sandbox/create", s.createSandbox)
	e.GET("/sandboxes", s.listSandboxes)
	e.POST("/sandbox/:id/close", s.closeSandbox)

	// Code execution
	e.POST("/sandbox/:id/execute", s.execute)
	e.GET("/sandbox/:id/execute/stream", s.executeStream)
	e.POST("/sandbox/:id/install", s.install)
	e.GET("/sandbox/:id/executions", s.executions)

	// Workspace files
	e.POST("/sandbox/:id/upload", s.upload)
	e.GET("/sandbox/:id/files", s.listFiles)
	e.GET("/sandbox/:id/files/archive", s.archive)
	e.GET("/sandbox/:id/download/*", s.download)

	return s
}

// Start begins listening on the given address.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown stops accepting new connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Close immediately closes the server.
func (s *Server) Close() error {
	return s.echo.Close()
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}

// httpStatus maps sandbox package errors onto HTTP response codes.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, sandbox.ErrUnknownSandbox), errors.Is(err, sandbox.ErrFileNotFound):
		return http.StatusNotFound
	case errors.Is(err, sandbox.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, sandbox.ErrSessionClosed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func jsonError(c echo.Context, err error) error {
	return c.JSON(httpStatus(err), map[string]string{"error": err.Error()})
}
