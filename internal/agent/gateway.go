package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Gateway talks to the agent runner over its HTTP API, consuming run
// responses as an SSE stream.
type Gateway struct {
	baseURL         string
	client          *http.Client
	streamingClient *http.Client
	logger          *slog.Logger
}

// NewGateway creates a runner gateway. timeout bounds non-streaming calls;
// the streaming client deliberately carries no timeout so long turns can
// finish, relying on ctx for cancellation.
func NewGateway(log *slog.Logger, baseURL string, timeout time.Duration) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Gateway{
		baseURL:         strings.TrimRight(baseURL, "/"),
		client:          &http.Client{Timeout: timeout},
		streamingClient: &http.Client{},
		logger:          log.With(slog.String("component", "agent_gateway")),
	}
}

type createSessionRequest struct {
	UserID string `json:"user_id"`
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
}

func (g *Gateway) CreateSession(ctx context.Context, userID string) (string, error) {
	body, err := json.Marshal(createSessionRequest{UserID: userID})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/sessions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("create session: status %d: %s", resp.StatusCode, strings.TrimSpace(string(errBody)))
	}

	var out createSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode session response: %w", err)
	}
	if strings.TrimSpace(out.SessionID) == "" {
		return "", fmt.Errorf("runner returned empty session id")
	}
	return out.SessionID, nil
}

func (g *Gateway) GetSession(ctx context.Context, sessionID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/sessions/"+sessionID, nil)
	if err != nil {
		return err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrSessionNotFound
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("get session: status %d", resp.StatusCode)
	}
	return nil
}

type runRequest struct {
	UserID    string  `json:"user_id"`
	SessionID string  `json:"session_id"`
	Content   Content `json:"content"`
}

func (g *Gateway) Run(ctx context.Context, userID, sessionID string, content Content) (<-chan Event, <-chan error) {
	events := make(chan Event, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errCh)
		if err := g.stream(ctx, userID, sessionID, content, events); err != nil {
			errCh <- err
		}
	}()
	return events, errCh
}

func (g *Gateway) stream(ctx context.Context, userID, sessionID string, content Content, events chan<- Event) error {
	body, err := json.Marshal(runRequest{UserID: userID, SessionID: sessionID, Content: content})
	if err != nil {
		return err
	}
	url := g.baseURL + "/run"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := g.streamingClient.Do(req)
	if err != nil {
		g.logger.Error("runner stream connect failed", slog.String("url", url), slog.Any("error", err))
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return ErrSessionNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		g.logger.Error("runner stream error", slog.String("url", url), slog.Int("status", resp.StatusCode))
		return fmt.Errorf("agent runner error: %s", strings.TrimSpace(string(errBody)))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "event:") {
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			g.logger.Warn("skip malformed runner event", slog.Any("error", err))
			continue
		}
		select {
		case events <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return scanner.Err()
}
