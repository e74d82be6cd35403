// Package server provides the HTTP server and Echo setup for the assistant API.
package server

import (
	"context"
	"log/slog"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/donnahq/donna/internal/auth"
)

// Handler registers routes on the Echo instance.
type Handler interface {
	Register(e *echo.Echo)
}

// Server wraps Echo with JWT auth and the registered handlers.
type Server struct {
	echo   *echo.Echo
	addr   string
	logger *slog.Logger
}

// Routes reachable without a JWT. OAuth callbacks arrive from the provider
// redirect, so the signed state token authenticates them instead.
var publicPaths = map[string]struct{}{
	"/ping":             {},
	"/health":           {},
	"/auth/login":       {},
	"/auth/register":    {},
	"/api/swagger.json": {},
}

func skipAuth(c echo.Context) bool {
	path := c.Request().URL.Path
	if _, ok := publicPaths[path]; ok {
		return true
	}
	if strings.HasPrefix(path, "/api/docs") {
		return true
	}
	return strings.HasPrefix(path, "/auth/") && strings.HasSuffix(path, "/callback")
}

// NewServer builds the Echo server with recovery, request logging, JWT auth,
// and the given handlers.
func NewServer(log *slog.Logger, addr, jwtSecret string, handlers ...Handler) *Server {
	if addr == "" {
		addr = ":8080"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger(log))
	e.Use(auth.JWTMiddleware(jwtSecret, skipAuth))

	for _, h := range handlers {
		if h != nil {
			h.Register(e)
		}
	}

	return &Server{
		echo:   e,
		addr:   addr,
		logger: log.With(slog.String("component", "server")),
	}
}

func requestLogger(log *slog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info("request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("remote_ip", c.RealIP()),
			)
			return nil
		},
	})
}

// Start serves HTTP and blocks until shutdown.
func (s *Server) Start() error {
	s.logger.Info("listening", slog.String("addr", s.addr))
	return s.echo.Start(s.addr)
}

// Stop drains in-flight requests and shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
