package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	donnadb "github.com/donnahq/donna/db"
	"github.com/donnahq/donna/internal/config"
	"github.com/donnahq/donna/internal/db"
	"github.com/donnahq/donna/internal/logger"
	"github.com/donnahq/donna/internal/version"
)

type cliOptions struct {
	configPath  string
	username    string
	password    string
	jwtToken    string
	apiBaseURL  string
	timeout     time.Duration
	migrate     string
	showVersion bool
}

func main() {
	opts := parseFlags()
	if opts.showVersion {
		fmt.Printf("Donna CLI %s\n", version.String())
		return
	}
	ctx := context.Background()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)

	if opts.migrate != "" {
		if err := db.RunMigrate(logger.L, cfg.Postgres, donnadb.Migrations(), opts.migrate, flag.Args()); err != nil {
			logger.Error("migrate failed", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	if strings.TrimSpace(opts.apiBaseURL) == "" {
		opts.apiBaseURL = defaultAPIBaseURL(cfg.Server.Addr)
	}
	if strings.TrimSpace(opts.apiBaseURL) == "" {
		logger.Error("api url is required")
		os.Exit(1)
	}
	opts.apiBaseURL = normalizeBaseURL(opts.apiBaseURL)

	jwtToken := strings.TrimSpace(opts.jwtToken)
	client := &http.Client{Timeout: opts.timeout}
	if jwtToken == "" {
		username, password, err := resolveLoginCredentials(opts)
		if err != nil {
			logger.Error("resolve login", slog.Any("error", err))
			os.Exit(1)
		}
		jwtToken, err = loginForToken(ctx, client, opts.apiBaseURL, username, password)
		if err != nil {
			logger.Error("login failed", slog.Any("error", err))
			os.Exit(1)
		}
	}

	if err := runChat(ctx, opts.apiBaseURL, jwtToken, strings.TrimSpace(strings.Join(flag.Args(), " "))); err != nil {
		logger.Error("chat failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func parseFlags() cliOptions {
	var opts cliOptions
	defaultConfig := os.Getenv("CONFIG_PATH")
	if strings.TrimSpace(defaultConfig) == "" {
		defaultConfig = config.DefaultConfigPath
	}

	flag.StringVar(&opts.configPath, "config", defaultConfig, "Path to config.toml")
	flag.StringVar(&opts.username, "username", "", "Username for login")
	flag.StringVar(&opts.password, "password", "", "Password for login (or set DONNA_PASSWORD)")
	flag.StringVar(&opts.jwtToken, "jwt", "", "JWT token (optional)")
	flag.StringVar(&opts.apiBaseURL, "api-url", "", "API server base URL (e.g. http://127.0.0.1:8080)")
	flag.StringVar(&opts.migrate, "migrate", "", "Run database migrations (up|down|version|force) and exit")
	flag.DurationVar(&opts.timeout, "timeout", 30*time.Second, "Request timeout")
	flag.BoolVar(&opts.showVersion, "version", false, "Show version information")
	flag.Parse()

	return opts
}

func normalizeBaseURL(value string) string {
	return strings.TrimRight(strings.TrimSpace(value), "/")
}

func defaultAPIBaseURL(addr string) string {
	trimmed := strings.TrimSpace(addr)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://") {
		return normalizeBaseURL(trimmed)
	}
	if strings.HasPrefix(trimmed, ":") {
		return "http://127.0.0.1" + trimmed
	}
	return "http://" + trimmed
}

func resolveLoginCredentials(opts cliOptions) (string, string, error) {
	username := strings.TrimSpace(opts.username)
	if username == "" {
		return "", "", fmt.Errorf("username is required for login")
	}
	password := strings.TrimSpace(opts.password)
	if password == "" {
		password = strings.TrimSpace(os.Getenv("DONNA_PASSWORD"))
	}
	if password == "" {
		return "", "", fmt.Errorf("password is required; pass --password or set DONNA_PASSWORD")
	}
	return username, password, nil
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
}

func loginForToken(ctx context.Context, client *http.Client, baseURL, username, password string) (string, error) {
	body, err := json.Marshal(loginRequest{Username: username, Password: password})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/auth/login", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("login failed: %s", strings.TrimSpace(string(payload)))
	}
	var parsed loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	if strings.TrimSpace(parsed.AccessToken) == "" {
		return "", fmt.Errorf("login succeeded but token missing")
	}
	return parsed.AccessToken, nil
}

type wsFrame struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// runChat opens the websocket channel and either sends a single query or
// drops into an interactive loop.
func runChat(ctx context.Context, baseURL, jwtToken, query string) error {
	wsURL := strings.Replace(baseURL, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + jwtToken}},
	})
	if err != nil {
		return fmt.Errorf("connect %s: %w", wsURL, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	exchange := func(text string) error {
		if err := wsjson.Write(ctx, conn, wsFrame{Type: "message", Text: text}); err != nil {
			return err
		}
		var reply wsFrame
		if err := wsjson.Read(ctx, conn, &reply); err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, reply.Text)
		return nil
	}

	if query != "" {
		return exchange(query)
	}

	reader := bufio.NewScanner(os.Stdin)
	reader.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)

	fmt.Fprint(os.Stdout, "You: ")
	for reader.Scan() {
		line := strings.TrimSpace(reader.Text())
		if line == "" {
			fmt.Fprint(os.Stdout, "You: ")
			continue
		}
		lower := strings.ToLower(line)
		if lower == "exit" || lower == "quit" {
			return nil
		}
		if lower == "/new" {
			if err := wsjson.Write(ctx, conn, wsFrame{Type: "reset"}); err != nil {
				return err
			}
			var ack wsFrame
			if err := wsjson.Read(ctx, conn, &ack); err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, "Conversation cleared.")
			fmt.Fprint(os.Stdout, "You: ")
			continue
		}
		if err := exchange(line); err != nil {
			return err
		}
		fmt.Fprint(os.Stdout, "You: ")
	}
	return reader.Err()
}
