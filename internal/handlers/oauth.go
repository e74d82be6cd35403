package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"golang.org/x/oauth2"

	"github.com/donnahq/donna/internal/auth"
	"github.com/donnahq/donna/internal/authsvc"
	"github.com/donnahq/donna/internal/tokenstore"
)

// OAuthHandler drives the authorization-code flow that seeds the token
// store: connect issues the consent redirect, callback exchanges the code,
// delete de-authorizes a service.
type OAuthHandler struct {
	authService *authsvc.Service
	store       *tokenstore.Store
	jwtSecret   string
	logger      *slog.Logger
}

// NewOAuthHandler creates the OAuth connect-flow handler.
func NewOAuthHandler(log *slog.Logger, authService *authsvc.Service, store *tokenstore.Store, jwtSecret string) *OAuthHandler {
	return &OAuthHandler{
		authService: authService,
		store:       store,
		jwtSecret:   jwtSecret,
		logger:      log.With(slog.String("handler", "oauth")),
	}
}

// Register mounts the OAuth routes on the Echo instance. The callback is
// exempt from JWT middleware; the signed state parameter carries the user.
func (h *OAuthHandler) Register(e *echo.Echo) {
	e.GET("/auth/:service/connect", h.Connect)
	e.GET("/auth/:service/callback", h.Callback)
	e.DELETE("/auth/:service", h.Disconnect)
}

type connectResponse struct {
	AuthURL string `json:"auth_url"`
}

// Connect returns the provider consent URL for the authenticated user.
func (h *OAuthHandler) Connect(c echo.Context) error {
	if h.authService == nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "auth service not configured")
	}
	userID, err := auth.UserID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}
	service := strings.TrimSpace(c.Param("service"))
	conf, ok := h.authService.ProviderFor(service)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown service")
	}

	state, err := auth.SignState(userID, service, h.jwtSecret)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	// offline access so the provider hands back a refresh token.
	url := conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	return c.JSON(http.StatusOK, connectResponse{AuthURL: url})
}

// Callback exchanges the authorization code and persists the credential.
func (h *OAuthHandler) Callback(c echo.Context) error {
	if h.authService == nil || h.store == nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "auth services not configured")
	}
	if errMsg := c.QueryParam("error"); errMsg != "" {
		return echo.NewHTTPError(http.StatusBadRequest, "authorization denied: "+errMsg)
	}
	code := strings.TrimSpace(c.QueryParam("code"))
	state := strings.TrimSpace(c.QueryParam("state"))
	if code == "" || state == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "code and state are required")
	}

	userID, service, err := auth.ParseState(state, h.jwtSecret)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid state")
	}
	conf, ok := h.authService.ProviderFor(service)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown service")
	}

	token, err := conf.Exchange(c.Request().Context(), code)
	if err != nil {
		h.logger.Error("code exchange failed",
			slog.String("service", service),
			slog.Any("error", err),
		)
		return echo.NewHTTPError(http.StatusBadGateway, "code exchange failed")
	}

	_, err = h.store.Put(c.Request().Context(), userID, service, tokenstore.PutParams{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	h.logger.Info("service connected",
		slog.String("user_id", userID),
		slog.String("service", service),
	)
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "connected",
		"service": service,
	})
}

// Disconnect removes the stored credential for a service.
func (h *OAuthHandler) Disconnect(c echo.Context) error {
	if h.store == nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "token store not configured")
	}
	userID, err := auth.UserID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}
	service := strings.TrimSpace(c.Param("service"))
	if service == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "service is required")
	}

	if err := h.store.Delete(c.Request().Context(), userID, service); err != nil {
		if errors.Is(err, tokenstore.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "service not connected")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "disconnected",
		"service": service,
	})
}
