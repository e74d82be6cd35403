package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/donnahq/donna/internal/tools"
)

// ToolsHandler exposes the wrapped service tools to the agent runner. The
// runner passes user_id in the call arguments; the per-user wrapper resolves
// the credential before the tool runs.
type ToolsHandler struct {
	tools  map[string]tools.Tool
	logger *slog.Logger
}

// NewToolsHandler creates the tool invocation handler.
func NewToolsHandler(log *slog.Logger, toolset []tools.Tool) *ToolsHandler {
	byName := make(map[string]tools.Tool, len(toolset))
	for _, t := range toolset {
		byName[t.Name()] = t
	}
	return &ToolsHandler{
		tools:  byName,
		logger: log.With(slog.String("handler", "tools")),
	}
}

// Register mounts the tool routes on the Echo instance.
func (h *ToolsHandler) Register(e *echo.Echo) {
	e.GET("/tools", h.List)
	e.POST("/tools/:name", h.Invoke)
}

// List returns the available tool names.
func (h *ToolsHandler) List(c echo.Context) error {
	names := make([]string, 0, len(h.tools))
	for name := range h.tools {
		names = append(names, name)
	}
	return c.JSON(http.StatusOK, map[string]any{"tools": names})
}

// Invoke runs one tool call. Tool-level failures come back as an error
// Result with status 200; only transport and lookup problems map to HTTP
// errors.
func (h *ToolsHandler) Invoke(c echo.Context) error {
	name := strings.TrimSpace(c.Param("name"))
	tool, ok := h.tools[name]
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown tool")
	}

	var args map[string]any
	if err := c.Bind(&args); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := tool.Call(c.Request().Context(), args)
	if err != nil {
		h.logger.Error("tool call failed",
			slog.String("tool", name),
			slog.Any("error", err),
		)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}
