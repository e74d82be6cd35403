// Package handlers provides HTTP API handlers for the assistant server.
package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/donnahq/donna/internal/version"
)

// PingHandler serves liveness endpoints.
type PingHandler struct{}

func NewPingHandler() *PingHandler {
	return &PingHandler{}
}

// Register mounts GET /ping and HEAD /health on the Echo instance.
func (h *PingHandler) Register(e *echo.Echo) {
	e.GET("/ping", h.Ping)
	e.HEAD("/health", h.Health)
}

func (h *PingHandler) Ping(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.String(),
	})
}

func (h *PingHandler) Health(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}
