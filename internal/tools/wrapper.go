package tools

import (
	"context"
	"errors"
	"log/slog"

	"github.com/donnahq/donna/internal/authsvc"
	"github.com/donnahq/donna/internal/toolauth"
)

// TokenSource resolves an access token for (user, service).
type TokenSource interface {
	Token(ctx context.Context, userID, service string) (string, error)
}

// AuthWrapper binds the caller's credential around one tool invocation.
// It resolves the acting user, fetches that user's token, binds it into the
// context slot for the inner call only, and hands back the inner result
// unchanged. The binding cannot outlive the call: it exists solely on the
// derived context passed to the inner tool.
type AuthWrapper struct {
	inner   Tool
	service string
	tokens  TokenSource
	logger  *slog.Logger
}

// WrapWithAuth wraps a tool so each call runs under its caller's credential
// for the named external service.
func WrapWithAuth(log *slog.Logger, inner Tool, service string, tokens TokenSource) *AuthWrapper {
	if log == nil {
		log = slog.Default()
	}
	return &AuthWrapper{
		inner:   inner,
		service: service,
		tokens:  tokens,
		logger:  log.With(slog.String("component", "tool_auth"), slog.String("tool", inner.Name())),
	}
}

func (w *AuthWrapper) Name() string {
	return w.inner.Name()
}

// Service returns the external service this wrapper authenticates against.
func (w *AuthWrapper) Service() string {
	return w.service
}

func (w *AuthWrapper) Call(ctx context.Context, args map[string]any) (Result, error) {
	userID := argString(args, UserIDArg)
	if userID == "" {
		userID = toolauth.User(ctx)
	}
	if userID == "" {
		return Errorf("user not identified for this request"), nil
	}

	token, err := w.tokens.Token(ctx, userID, w.service)
	if err != nil {
		if !errors.Is(err, authsvc.ErrUnavailable) {
			// Persistence failures collapse into the same user-facing shape
			// as a missing credential; the detail stays server-side.
			w.logger.Error("token lookup failed",
				slog.String("user_id", userID),
				slog.String("external_service", w.service),
				slog.Any("error", err),
			)
		}
		return Errorf("authentication missing; please authorize %s access first", w.service), nil
	}

	return w.inner.Call(toolauth.WithToken(ctx, token), args)
}
