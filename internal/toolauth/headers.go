package toolauth

import (
	"context"
	"net/http"
	"sort"
)

// HeaderSet materializes outbound headers for a shared tool client. The
// Authorization value is computed from the context at read time, not stored,
// because the client itself is built once at startup and reused across users.
// All other entries behave as ordinary static values.
type HeaderSet struct {
	static map[string]string
}

// NewHeaderSet creates a HeaderSet with optional static entries.
func NewHeaderSet(static map[string]string) *HeaderSet {
	s := make(map[string]string, len(static))
	for k, v := range static {
		if http.CanonicalHeaderKey(k) == "Authorization" {
			// Authorization is always computed; a static value would leak
			// one user's token into another user's call.
			continue
		}
		s[k] = v
	}
	return &HeaderSet{static: s}
}

// Get returns the header value for key. "Authorization" resolves to
// "Bearer <token>" from the context's slot; "" when no token is bound.
func (h *HeaderSet) Get(ctx context.Context, key string) string {
	if http.CanonicalHeaderKey(key) == "Authorization" {
		return bearer(Token(ctx))
	}
	return h.static[key]
}

// Set stores a static header value. Authorization writes are ignored.
func (h *HeaderSet) Set(key, value string) {
	if http.CanonicalHeaderKey(key) == "Authorization" {
		return
	}
	h.static[key] = value
}

// Keys lists all header names. "Authorization" is always present, bound or not.
func (h *HeaderSet) Keys() []string {
	keys := make([]string, 0, len(h.static)+1)
	keys = append(keys, "Authorization")
	for k := range h.static {
		keys = append(keys, k)
	}
	sort.Strings(keys[1:])
	return keys
}

// Apply copies all entries onto an http.Header for one outbound call.
// Empty values are skipped so an unbound call never sends a bare
// "Authorization:" line on the wire.
func (h *HeaderSet) Apply(ctx context.Context, dst http.Header) {
	for _, key := range h.Keys() {
		if value := h.Get(ctx, key); value != "" {
			dst.Set(key, value)
		}
	}
}

func bearer(token string) string {
	if token == "" {
		return ""
	}
	return "Bearer " + token
}
