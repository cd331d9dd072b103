// Package api implements a local sandbox of the workflow API for offline
// development and integration tests.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"promethium-examples/runner/internal/auth"
)

const serviceName = "promethium-sandbox"

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// HealthStatus represents the health check response
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Workflows int       `json:"workflows"`
}

// Health returns basic health status (always returns 200 OK)
func (s *Server) Health(c echo.Context) error {
	s.mu.Lock()
	n := len(s.workflows)
	s.mu.Unlock()

	return c.JSON(http.StatusOK, HealthStatus{
		Status:    "ok",
		Timestamp: s.now(),
		Service:   serviceName,
		Workflows: n,
	})
}

// ProblemDetails represents an RFC 7807 Problem Details response
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

// ErrorHandler renders handler errors as RFC 7807 Problem Details.
func ErrorHandler(logger Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		detail := err.Error()
		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			if msg, ok := he.Message.(string); ok {
				detail = msg
			} else {
				detail = http.StatusText(status)
			}
		}
		if status >= http.StatusInternalServerError {
			logger.Error("request failed", "path", c.Request().URL.Path, "error", err)
		}

		problem := ProblemDetails{
			Type:     "about:blank",
			Title:    http.StatusText(status),
			Status:   status,
			Detail:   detail,
			Instance: c.Request().URL.Path,
		}
		c.Response().Header().Set(echo.HeaderContentType, "application/problem+json")
		if err := c.JSON(status, problem); err != nil {
			logger.Error("failed to write error response", "error", err)
		}
	}
}

// NewRouter builds the sandbox HTTP handler. Workflow routes require the
// bearer apiKey unless it is empty; /health and /openapi.yaml are open.
func NewRouter(s *Server, apiKey string, logger Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = ErrorHandler(logger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(otelecho.Middleware(serviceName))

	e.GET("/health", s.Health)
	e.GET("/openapi.yaml", SpecHandler)

	g := e.Group("/v0")
	g.Use(auth.RequireAPIKey(apiKey, logger))
	RegisterHandlers(g, s)
	return e
}
