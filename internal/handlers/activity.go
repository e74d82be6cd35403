package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/donnahq/donna/internal/activity"
	"github.com/donnahq/donna/internal/auth"
)

// ActivityHandler exposes the authenticated user's recent activity trail.
type ActivityHandler struct {
	service *activity.Service
	logger  *slog.Logger
}

// NewActivityHandler creates the activity handler.
func NewActivityHandler(log *slog.Logger, service *activity.Service) *ActivityHandler {
	return &ActivityHandler{
		service: service,
		logger:  log.With(slog.String("handler", "activity")),
	}
}

// Register mounts GET /activity on the Echo instance.
func (h *ActivityHandler) Register(e *echo.Echo) {
	e.GET("/activity", h.Recent)
}

// Recent returns the newest activity entries for the caller.
func (h *ActivityHandler) Recent(c echo.Context) error {
	if h.service == nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "activity service not configured")
	}
	userID, err := auth.UserID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	items, err := h.service.Recent(c.Request().Context(), userID, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{
		"items": items,
	})
}
