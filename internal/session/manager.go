// Package session tracks per-user conversation contexts with a keep-alive
// window: consecutive messages inside the window share one logical session,
// and inactivity past the window silently starts a fresh one.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/donnahq/donna/internal/channel"
)

// DefaultKeepAlive is used when the manager is built with a non-positive window.
const DefaultKeepAlive = 5 * time.Minute

// Context is one user's live conversation window.
type Context struct {
	SessionID    string
	LastActivity time.Time
	Messages     []channel.InboundMessage
}

// Manager owns the in-memory context map. All methods are safe for
// concurrent use; expiry is detected lazily on access, with a periodic
// sweep bounding memory for users who never come back.
type Manager struct {
	mu        sync.Mutex
	contexts  map[string]*Context
	keepAlive time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewManager creates a context manager with the given keep-alive window.
func NewManager(log *slog.Logger, keepAlive time.Duration) *Manager {
	if log == nil {
		log = slog.Default()
	}
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}
	return &Manager{
		contexts:  map[string]*Context{},
		keepAlive: keepAlive,
		logger:    log.With(slog.String("service", "session")),
		now:       time.Now,
	}
}

// GetOrCreate returns the user's live context, touching it; an expired or
// missing context is atomically replaced with a fresh one under a new
// session id. There is no expired-but-retained state.
func (m *Manager) GetOrCreate(userID string) *Context {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cctx, ok := m.contexts[userID]
	if !ok || m.expired(cctx, now) {
		cctx = &Context{
			SessionID:    uuid.NewString(),
			LastActivity: now,
		}
		m.contexts[userID] = cctx
		m.logger.Debug("conversation context created",
			slog.String("user_id", userID),
			slog.String("session_id", cctx.SessionID),
		)
		return snapshot(cctx)
	}
	cctx.LastActivity = now
	m.pruneLocked(cctx, now)
	return snapshot(cctx)
}

// Append records a message on the user's live context (creating one if
// needed) and returns the context after the touch.
func (m *Manager) Append(userID string, msg channel.InboundMessage) *Context {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cctx, ok := m.contexts[userID]
	if !ok || m.expired(cctx, now) {
		cctx = &Context{
			SessionID:    uuid.NewString(),
			LastActivity: now,
		}
		m.contexts[userID] = cctx
	}
	cctx.Messages = append(cctx.Messages, msg)
	cctx.LastActivity = now
	m.pruneLocked(cctx, now)
	return snapshot(cctx)
}

// Clear unconditionally removes the user's context ("new conversation").
func (m *Manager) Clear(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.contexts, userID)
}

// CleanupExpired removes every expired context and returns how many went.
// Intended to run on a schedule; correctness does not depend on it.
func (m *Manager) CleanupExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for userID, cctx := range m.contexts {
		if m.expired(cctx, now) {
			delete(m.contexts, userID)
			removed++
		}
	}
	if removed > 0 {
		m.logger.Debug("expired contexts swept", slog.Int("count", removed))
	}
	return removed
}

func (m *Manager) expired(cctx *Context, now time.Time) bool {
	return now.Sub(cctx.LastActivity) >= m.keepAlive
}

// pruneLocked drops messages that fell out of the keep-alive window. The
// history is bounded by time, not by count.
func (m *Manager) pruneLocked(cctx *Context, now time.Time) {
	cutoff := now.Add(-m.keepAlive)
	idx := 0
	for idx < len(cctx.Messages) && cctx.Messages[idx].ReceivedAt.Before(cutoff) {
		idx++
	}
	if idx > 0 {
		cctx.Messages = append([]channel.InboundMessage(nil), cctx.Messages[idx:]...)
	}
}

func snapshot(cctx *Context) *Context {
	out := &Context{
		SessionID:    cctx.SessionID,
		LastActivity: cctx.LastActivity,
	}
	if len(cctx.Messages) > 0 {
		out.Messages = append([]channel.InboundMessage(nil), cctx.Messages...)
	}
	return out
}
