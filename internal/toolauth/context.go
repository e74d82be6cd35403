// Package toolauth carries per-call authentication through the tool
// invocation path. One shared HTTP client serves every user; the token for
// the in-flight call travels in the request context, never in shared state,
// so concurrent calls from different users cannot observe each other's token.
package toolauth

import "context"

type tokenKey struct{}

type userKey struct{}

// WithToken binds an access token to the returned context. The binding is
// scoped to the derived context: callers holding the parent never see it,
// and it vanishes when the call that created it returns.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// Token returns the token bound to ctx, or "" when unbound.
func Token(ctx context.Context) string {
	if tok, ok := ctx.Value(tokenKey{}).(string); ok {
		return tok
	}
	return ""
}

// WithUser records the acting user's identity in ctx for call sites that
// cannot pass it explicitly.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// User returns the ambient user identity from ctx, or "" when absent.
func User(ctx context.Context) string {
	if id, ok := ctx.Value(userKey{}).(string); ok {
		return id
	}
	return ""
}
