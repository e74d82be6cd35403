// Package router dispatches normalized channel messages to the agent
// runner, owning the user-to-agent-session binding and the reply shape.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/donnahq/donna/internal/agent"
	"github.com/donnahq/donna/internal/channel"
	"github.com/donnahq/donna/internal/session"
)

// Fixed user-facing strings. Channels relay these verbatim.
const (
	FallbackReply    = "I don't have a response for that."
	ErrorReply       = "Sorry, something went wrong while handling your message. Please try again."
	RateLimitedReply = "You're sending messages a bit too fast. Give me a moment and try again."
)

// ActivityLogger records routing activity. Failures must never affect the
// reply, so the router treats all logging as best-effort.
type ActivityLogger interface {
	Log(ctx context.Context, userID, source, action string, extra map[string]any)
}

type binding struct {
	contextID      string
	agentSessionID string
}

// Router is the single entry point for inbound messages from every channel.
type Router struct {
	runner   agent.Runner
	sessions *session.Manager
	activity ActivityLogger
	logger   *slog.Logger

	mu       sync.Mutex
	bindings map[string]binding
	limiters map[string]*rate.Limiter
	perMin   int
}

// New creates a router. perMinute bounds how many messages a single user
// may route per minute; non-positive disables the limit.
func New(log *slog.Logger, runner agent.Runner, sessions *session.Manager, activity ActivityLogger, perMinute int) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		runner:   runner,
		sessions: sessions,
		activity: activity,
		logger:   log.With(slog.String("service", "router")),
		bindings: map[string]binding{},
		limiters: map[string]*rate.Limiter{},
		perMin:   perMinute,
	}
}

// Route handles one inbound message end to end and always returns a reply
// string suitable for sending back on the originating channel. It never
// returns an error: failures collapse to a fixed apology so channel
// adapters stay dumb.
func (r *Router) Route(ctx context.Context, msg channel.InboundMessage) string {
	if msg.UserID == "" {
		r.logger.Warn("dropping message with empty user id", slog.String("channel", string(msg.Channel)))
		return ErrorReply
	}
	if !r.allow(msg.UserID) {
		r.logger.Debug("rate limited", slog.String("user_id", msg.UserID))
		return RateLimitedReply
	}

	r.logActivity(ctx, msg.UserID, string(msg.Channel), "message_received", map[string]any{
		"content_type": string(msg.ContentType),
		"preview":      msg.Preview(80),
	})

	cctx := r.sessions.Append(msg.UserID, msg)
	content, err := translate(msg)
	if err != nil {
		r.logger.Warn("untranslatable message",
			slog.String("user_id", msg.UserID),
			slog.String("content_type", string(msg.ContentType)),
			slog.Any("error", err),
		)
		return ErrorReply
	}

	reply, err := r.run(ctx, msg.UserID, cctx.SessionID, content)
	if err != nil {
		r.logger.Error("routing failed",
			slog.String("user_id", msg.UserID),
			slog.String("channel", string(msg.Channel)),
			slog.Any("error", err),
		)
		r.logActivity(ctx, msg.UserID, string(msg.Channel), "message_failed", map[string]any{
			"error": err.Error(),
		})
		return ErrorReply
	}

	r.logActivity(ctx, msg.UserID, string(msg.Channel), "reply_sent", map[string]any{
		"length": len(reply),
	})
	return reply
}

// run executes one agent turn against the bound session, rebinding and
// retrying exactly once when the runner no longer knows the session.
func (r *Router) run(ctx context.Context, userID, contextID string, content agent.Content) (string, error) {
	sessionID, err := r.sessionFor(ctx, userID, contextID)
	if err != nil {
		return "", err
	}

	reply, err := r.collect(ctx, userID, sessionID, content)
	if errors.Is(err, agent.ErrSessionNotFound) {
		r.dropBinding(userID)
		sessionID, err = r.sessionFor(ctx, userID, contextID)
		if err != nil {
			return "", err
		}
		reply, err = r.collect(ctx, userID, sessionID, content)
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(reply) == "" {
		return FallbackReply, nil
	}
	return reply, nil
}

// sessionFor returns the agent session bound to the user's current
// conversation context, creating one when the context is new or the old
// binding belongs to an expired context.
func (r *Router) sessionFor(ctx context.Context, userID, contextID string) (string, error) {
	r.mu.Lock()
	b, ok := r.bindings[userID]
	r.mu.Unlock()

	if ok && b.contextID == contextID {
		err := r.runner.GetSession(ctx, b.agentSessionID)
		if err == nil {
			return b.agentSessionID, nil
		}
		if !errors.Is(err, agent.ErrSessionNotFound) {
			return "", fmt.Errorf("verify session: %w", err)
		}
		r.logger.Info("bound session vanished, rebinding",
			slog.String("user_id", userID),
			slog.String("session_id", b.agentSessionID),
		)
	}

	sessionID, err := r.runner.CreateSession(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	r.mu.Lock()
	r.bindings[userID] = binding{contextID: contextID, agentSessionID: sessionID}
	r.mu.Unlock()
	r.logger.Debug("session bound",
		slog.String("user_id", userID),
		slog.String("session_id", sessionID),
	)
	return sessionID, nil
}

// collect drains one run stream, concatenating text from final events.
func (r *Router) collect(ctx context.Context, userID, sessionID string, content agent.Content) (string, error) {
	events, errCh := r.runner.Run(ctx, userID, sessionID, content)

	var sb strings.Builder
	for ev := range events {
		if !ev.Final {
			continue
		}
		for _, part := range ev.TextParts {
			sb.WriteString(part)
		}
	}
	if err := <-errCh; err != nil {
		return "", err
	}
	return sb.String(), nil
}

// ClearUserSession forgets the user's conversation context and agent
// binding; the next message starts from scratch.
func (r *Router) ClearUserSession(userID string) {
	r.sessions.Clear(userID)
	r.dropBinding(userID)
	r.logger.Debug("session cleared", slog.String("user_id", userID))
}

func (r *Router) dropBinding(userID string) {
	r.mu.Lock()
	delete(r.bindings, userID)
	r.mu.Unlock()
}

func (r *Router) allow(userID string) bool {
	if r.perMin <= 0 {
		return true
	}
	r.mu.Lock()
	lim, ok := r.limiters[userID]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(r.perMin)/60.0), r.perMin)
		r.limiters[userID] = lim
	}
	r.mu.Unlock()
	return lim.Allow()
}

func (r *Router) logActivity(ctx context.Context, userID, source, action string, extra map[string]any) {
	if r.activity == nil {
		return
	}
	r.activity.Log(ctx, userID, source, action, extra)
}

// translate maps a normalized channel message onto runner content parts.
func translate(msg channel.InboundMessage) (agent.Content, error) {
	var parts []agent.Part
	if msg.Text != "" {
		parts = append(parts, agent.Part{Text: msg.Text})
	}
	for _, att := range msg.Attachments {
		mime := att.Mime
		if mime == "" {
			switch msg.ContentType {
			case channel.ContentImage:
				mime = "image/jpeg"
			case channel.ContentVoice, channel.ContentAudio:
				mime = "audio/ogg"
			default:
				mime = "application/octet-stream"
			}
		}
		parts = append(parts, agent.Part{
			Inline: &agent.Blob{Mime: mime, Data: att.Data},
		})
	}
	if len(parts) == 0 {
		return agent.Content{}, fmt.Errorf("message %s carries no routable content", msg.ContentType)
	}
	return agent.Content{Parts: parts}, nil
}
