// Package config loads and exposes application configuration (TOML).
package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

// Default configuration values used when a field is missing in TOML.
const (
	DefaultConfigPath       = "config.toml"
	DefaultHTTPAddr         = ":8080"
	DefaultJWTExpiresIn     = "24h"
	DefaultPGHost           = "127.0.0.1"
	DefaultPGPort           = 5432
	DefaultPGUser           = "postgres"
	DefaultPGDatabase       = "donna"
	DefaultPGSSLMode        = "disable"
	DefaultKeepAliveSeconds = 300
	DefaultSweepSchedule    = "@every 1m"
	DefaultRunnerTimeout    = 120
	DefaultRatePerMinute    = 20
)

// Config is the root application configuration loaded from TOML.
type Config struct {
	Log      LogConfig              `toml:"log"`
	Server   ServerConfig           `toml:"server"`
	Auth     AuthConfig             `toml:"auth"`
	Postgres PostgresConfig         `toml:"postgres"`
	Crypto   CryptoConfig           `toml:"crypto"`
	Session  SessionConfig          `toml:"session"`
	Runner   RunnerConfig           `toml:"runner"`
	Telegram TelegramConfig         `toml:"telegram"`
	Limits   LimitsConfig           `toml:"limits"`
	Tools    ToolsConfig            `toml:"tools"`
	OAuth    map[string]OAuthConfig `toml:"oauth"`
}

// LogConfig holds logging level and format (e.g. level=info, format=text).
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// ServerConfig holds the HTTP server listen address.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// AuthConfig holds JWT secret and token expiry (e.g. 24h).
type AuthConfig struct {
	JWTSecret    string `toml:"jwt_secret"`
	JWTExpiresIn string `toml:"jwt_expires_in"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// CryptoConfig holds the key used to seal stored credential secrets.
// SecretKey is base64; it must decode to 32 bytes.
type CryptoConfig struct {
	SecretKey string `toml:"secret_key"`
}

// SessionConfig holds the conversation keep-alive window and sweep schedule.
type SessionConfig struct {
	KeepAliveSeconds int    `toml:"keep_alive_seconds"`
	SweepSchedule    string `toml:"sweep_schedule"`
}

// RunnerConfig holds the agent runner gateway address and request timeout.
type RunnerConfig struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// TelegramConfig holds the Telegram bot token and polling timeout.
type TelegramConfig struct {
	BotToken       string `toml:"bot_token"`
	PollTimeout    int    `toml:"poll_timeout"`
	AllowedUpdates int    `toml:"allowed_updates"`
}

// LimitsConfig holds per-user inbound message limits.
type LimitsConfig struct {
	MessagesPerMinute int `toml:"messages_per_minute"`
	Burst             int `toml:"burst"`
}

// ToolsConfig maps tool service names to their HTTP endpoints.
type ToolsConfig struct {
	Endpoints map[string]string `toml:"endpoints"`
}

// OAuthConfig describes one OAuth provider's token endpoints and client.
type OAuthConfig struct {
	ClientID     string   `toml:"client_id"`
	ClientSecret string   `toml:"client_secret"`
	AuthURL      string   `toml:"auth_url"`
	TokenURL     string   `toml:"token_url"`
	RedirectURL  string   `toml:"redirect_url"`
	Scopes       []string `toml:"scopes"`
}

// Load reads and parses the TOML config file at path and applies default values for missing fields.
func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Auth: AuthConfig{
			JWTExpiresIn: DefaultJWTExpiresIn,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Session: SessionConfig{
			KeepAliveSeconds: DefaultKeepAliveSeconds,
			SweepSchedule:    DefaultSweepSchedule,
		},
		Runner: RunnerConfig{
			TimeoutSeconds: DefaultRunnerTimeout,
		},
		Telegram: TelegramConfig{
			PollTimeout: 30,
		},
		Limits: LimitsConfig{
			MessagesPerMinute: DefaultRatePerMinute,
			Burst:             5,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
