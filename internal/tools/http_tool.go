package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/donnahq/donna/internal/authsvc"
	"github.com/donnahq/donna/internal/toolauth"
)

// HTTPTool calls one external REST endpoint through the shared authenticated
// client. The client is constructed once; the bearer token for the in-flight
// call arrives via the request context (see toolauth.Transport).
type HTTPTool struct {
	name    string
	method  string
	url     string
	client  *http.Client
	logger  *slog.Logger
	maxBody int64
}

// NewHTTPTool creates a tool bound to a fixed endpoint on the shared client.
func NewHTTPTool(log *slog.Logger, name, method, url string, client *http.Client) *HTTPTool {
	if log == nil {
		log = slog.Default()
	}
	if client == nil {
		client = toolauth.NewClient(nil)
	}
	return &HTTPTool{
		name:    name,
		method:  method,
		url:     url,
		client:  client,
		logger:  log.With(slog.String("tool", name)),
		maxBody: 1 << 20,
	}
}

func (t *HTTPTool) Name() string {
	return t.name
}

func (t *HTTPTool) Call(ctx context.Context, args map[string]any) (Result, error) {
	var body io.Reader
	if payload, ok := args["payload"]; ok && payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Errorf("invalid payload"), nil
		}
		body = strings.NewReader(string(raw))
	}

	req, err := http.NewRequestWithContext(ctx, t.method, t.url, body)
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		t.logger.Error("tool request failed", slog.String("url", t.url), slog.Any("error", err))
		return Result{}, fmt.Errorf("call %s: %w", t.name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBody))
	if err != nil {
		return Result{}, fmt.Errorf("read %s response: %w", t.name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		t.logger.Warn("tool request rejected",
			slog.String("url", t.url),
			slog.Int("status", resp.StatusCode),
		)
		return Errorf("%s returned status %d", t.name, resp.StatusCode), nil
	}

	var data any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			data = string(raw)
		}
	}
	return OK(data), nil
}

// ServiceTools builds the assistant's external-service tool set, each wrapped
// with per-user credential binding against its own service name.
func ServiceTools(log *slog.Logger, tokens TokenSource, client *http.Client, endpoints map[string]string) []Tool {
	defs := []struct {
		name    string
		service string
		method  string
	}{
		{"calendar_list_events", authsvc.ServiceCalendar, http.MethodGet},
		{"email_list_messages", authsvc.ServiceEmail, http.MethodGet},
		{"tasks_list", authsvc.ServiceTasks, http.MethodGet},
	}
	out := make([]Tool, 0, len(defs))
	for _, def := range defs {
		url := endpoints[def.service]
		if url == "" {
			continue
		}
		inner := NewHTTPTool(log, def.name, def.method, url, client)
		out = append(out, WrapWithAuth(log, inner, def.service, tokens))
	}
	return out
}
