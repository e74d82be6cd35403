// Package boot provides runtime configuration derived from the loaded config.
package boot

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/donnahq/donna/internal/config"
)

// RuntimeConfig holds parsed runtime settings (JWT, server address, crypto key,
// keep-alive window). Values may be overridden by environment variables
// (e.g. HTTP_ADDR, TELEGRAM_BOT_TOKEN).
type RuntimeConfig struct {
	JwtSecret    string
	JwtExpiresIn time.Duration
	ServerAddr   string
	SecretKey    []byte
	KeepAlive    time.Duration
	TelegramBot  string
}

// ProvideRuntimeConfig builds RuntimeConfig from the given config and applies env overrides.
func ProvideRuntimeConfig(cfg config.Config) (*RuntimeConfig, error) {
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return nil, errors.New("jwt secret is required")
	}

	jwtExpiresIn, err := time.ParseDuration(cfg.Auth.JWTExpiresIn)
	if err != nil {
		return nil, fmt.Errorf("invalid jwt expires in: %w", err)
	}

	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(cfg.Crypto.SecretKey))
	if err != nil {
		return nil, fmt.Errorf("invalid crypto secret key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("crypto secret key must decode to 32 bytes, got %d", len(key))
	}

	keepAlive := time.Duration(cfg.Session.KeepAliveSeconds) * time.Second
	if keepAlive <= 0 {
		keepAlive = config.DefaultKeepAliveSeconds * time.Second
	}

	ret := &RuntimeConfig{
		JwtSecret:    cfg.Auth.JWTSecret,
		JwtExpiresIn: jwtExpiresIn,
		ServerAddr:   cfg.Server.Addr,
		SecretKey:    key,
		KeepAlive:    keepAlive,
		TelegramBot:  cfg.Telegram.BotToken,
	}

	if value := os.Getenv("HTTP_ADDR"); value != "" {
		ret.ServerAddr = value
	}

	if value := os.Getenv("TELEGRAM_BOT_TOKEN"); value != "" {
		ret.TelegramBot = value
	}
	return ret, nil
}
