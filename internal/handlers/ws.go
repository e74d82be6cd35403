package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/labstack/echo/v4"

	"github.com/donnahq/donna/internal/auth"
	"github.com/donnahq/donna/internal/channel"
	"github.com/donnahq/donna/internal/router"
)

// WSHandler serves the web chat channel over a websocket: one connection per
// authenticated user, text frames in, routed replies out.
type WSHandler struct {
	router *router.Router
	logger *slog.Logger
}

// NewWSHandler creates the websocket channel handler.
func NewWSHandler(log *slog.Logger, r *router.Router) *WSHandler {
	return &WSHandler{
		router: r,
		logger: log.With(slog.String("handler", "ws")),
	}
}

// Register mounts GET /ws on the Echo instance.
func (h *WSHandler) Register(e *echo.Echo) {
	e.GET("/ws", h.Serve)
}

// wsInbound is one frame from the client.
type wsInbound struct {
	Type string `json:"type"` // "message" | "reset"
	Text string `json:"text,omitempty"`
}

// wsOutbound is one frame to the client.
type wsOutbound struct {
	Type string `json:"type"` // "reply" | "reset" | "error"
	Text string `json:"text,omitempty"`
}

// Serve upgrades the connection and pumps messages through the router until
// the client goes away.
func (h *WSHandler) Serve(c echo.Context) error {
	if h.router == nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "router not configured")
	}
	userID, err := auth.UserID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}

	conn, err := websocket.Accept(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusInternalError, "closing")

	ctx := c.Request().Context()
	h.logger.Info("web channel connected", slog.String("user_id", userID))

	for {
		var in wsInbound
		if err := wsjson.Read(ctx, conn, &in); err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || ctx.Err() != nil {
				conn.Close(websocket.StatusNormalClosure, "")
				return nil
			}
			h.logger.Debug("web channel read ended",
				slog.String("user_id", userID),
				slog.Any("error", err),
			)
			return nil
		}

		switch in.Type {
		case "reset":
			h.router.ClearUserSession(userID)
			if err := wsjson.Write(ctx, conn, wsOutbound{Type: "reset"}); err != nil {
				return nil
			}
		case "message", "":
			text := strings.TrimSpace(in.Text)
			if text == "" {
				continue
			}
			reply := h.router.Route(ctx, channel.InboundMessage{
				Channel:       channel.ChannelWeb,
				UserID:        userID,
				ChannelUserID: userID,
				ContentType:   channel.ContentText,
				Text:          text,
				ReceivedAt:    time.Now(),
			})
			if err := wsjson.Write(ctx, conn, wsOutbound{Type: "reply", Text: reply}); err != nil {
				return nil
			}
		default:
			if err := wsjson.Write(ctx, conn, wsOutbound{Type: "error", Text: "unsupported frame type"}); err != nil {
				return nil
			}
		}
	}
}
