package tools

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/donnahq/donna/internal/authsvc"
	"github.com/donnahq/donna/internal/toolauth"
)

type recordingTool struct {
	calls     int
	lastToken string
	result    Result
	err       error
}

func (r *recordingTool) Name() string { return "recording" }

func (r *recordingTool) Call(ctx context.Context, args map[string]any) (Result, error) {
	r.calls++
	r.lastToken = toolauth.Token(ctx)
	return r.result, r.err
}

type mapTokens map[string]string

func (m mapTokens) Token(ctx context.Context, userID, service string) (string, error) {
	tok, ok := m[userID+"/"+service]
	if !ok {
		return "", authsvc.ErrUnavailable
	}
	return tok, nil
}

type failingTokens struct{ err error }

func (f failingTokens) Token(ctx context.Context, userID, service string) (string, error) {
	return "", f.err
}

func TestWrapperNoUserIdentified(t *testing.T) {
	inner := &recordingTool{result: OK(nil)}
	w := WrapWithAuth(nil, inner, authsvc.ServiceCalendar, mapTokens{})

	res, err := w.Call(context.Background(), map[string]any{})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !res.IsError() || !strings.Contains(res.Message, "not identified") {
		t.Fatalf("result = %+v, want user-not-identified error", res)
	}
	if inner.calls != 0 {
		t.Fatal("inner tool must not run without a user")
	}
}

func TestWrapperMissingCredential(t *testing.T) {
	inner := &recordingTool{result: OK(nil)}
	w := WrapWithAuth(nil, inner, authsvc.ServiceCalendar, mapTokens{})

	res, err := w.Call(context.Background(), map[string]any{UserIDArg: "u1"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !res.IsError() || !strings.Contains(res.Message, "authoriz") {
		t.Fatalf("result = %+v, want authorization-missing error", res)
	}
	if inner.calls != 0 {
		t.Fatal("inner tool must not run without a credential")
	}
}

func TestWrapperBindsAndUnbindsToken(t *testing.T) {
	inner := &recordingTool{result: OK("events")}
	tokens := mapTokens{"u1/" + authsvc.ServiceCalendar: "T"}
	w := WrapWithAuth(nil, inner, authsvc.ServiceCalendar, tokens)

	outer := context.Background()
	res, err := w.Call(outer, map[string]any{UserIDArg: "u1"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if res.IsError() {
		t.Fatalf("result = %+v, want ok", res)
	}
	if inner.lastToken != "T" {
		t.Fatalf("inner saw token %q, want %q", inner.lastToken, "T")
	}
	// The slot is bound only on the derived context; the caller's stays clean.
	if toolauth.Token(outer) != "" {
		t.Fatal("token escaped the call scope")
	}
}

func TestWrapperUnbindsOnInnerError(t *testing.T) {
	innerErr := errors.New("provider exploded")
	inner := &recordingTool{err: innerErr}
	tokens := mapTokens{"u1/" + authsvc.ServiceTasks: "T"}
	w := WrapWithAuth(nil, inner, authsvc.ServiceTasks, tokens)

	outer := context.Background()
	_, err := w.Call(outer, map[string]any{UserIDArg: "u1"})
	if !errors.Is(err, innerErr) {
		t.Fatalf("inner error must propagate unchanged, got %v", err)
	}
	if toolauth.Token(outer) != "" {
		t.Fatal("token escaped the call scope after error")
	}
}

func TestWrapperAmbientUserFallback(t *testing.T) {
	inner := &recordingTool{result: OK(nil)}
	tokens := mapTokens{"u9/" + authsvc.ServiceEmail: "T"}
	w := WrapWithAuth(nil, inner, authsvc.ServiceEmail, tokens)

	ctx := toolauth.WithUser(context.Background(), "u9")
	res, err := w.Call(ctx, nil)
	if err != nil || res.IsError() {
		t.Fatalf("Call = %+v, %v; want ok via ambient identity", res, err)
	}
	if inner.calls != 1 {
		t.Fatalf("inner calls = %d, want 1", inner.calls)
	}
}

func TestWrapperPersistenceFailureIsUniform(t *testing.T) {
	inner := &recordingTool{result: OK(nil)}
	w := WrapWithAuth(nil, inner, authsvc.ServiceTasks, failingTokens{err: errors.New("db down")})

	res, err := w.Call(context.Background(), map[string]any{UserIDArg: "u1"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !res.IsError() || !strings.Contains(res.Message, "authoriz") {
		t.Fatalf("result = %+v, want the uniform unavailable shape", res)
	}
	if inner.calls != 0 {
		t.Fatal("inner tool must not run when the store is down")
	}
}

func TestCalendarScenarioNoHTTPWithoutCredential(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer srv.Close()

	client := toolauth.NewClient(toolauth.NewHeaderSet(nil))
	inner := NewHTTPTool(nil, "calendar_list_events", http.MethodGet, srv.URL, client)
	w := WrapWithAuth(nil, inner, authsvc.ServiceCalendar, mapTokens{})

	res, err := w.Call(context.Background(), map[string]any{UserIDArg: "u1"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if res.Status != StatusError || !strings.Contains(res.Message, "authoriz") {
		t.Fatalf("result = %+v, want authorization error", res)
	}
	if hits != 0 {
		t.Fatalf("calendar API hits = %d, want 0", hits)
	}
}

func TestHTTPToolSendsBearer(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		w.Write([]byte(`{"items":[]}`))
	}))
	defer srv.Close()

	client := toolauth.NewClient(toolauth.NewHeaderSet(nil))
	inner := NewHTTPTool(nil, "tasks_list", http.MethodGet, srv.URL, client)
	tokens := mapTokens{"u2/" + authsvc.ServiceTasks: "tok-123"}
	w := WrapWithAuth(nil, inner, authsvc.ServiceTasks, tokens)

	res, err := w.Call(context.Background(), map[string]any{UserIDArg: "u2"})
	if err != nil || res.IsError() {
		t.Fatalf("Call = %+v, %v", res, err)
	}
	if got != "Bearer tok-123" {
		t.Fatalf("API saw Authorization %q, want %q", got, "Bearer tok-123")
	}
}
