package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultHTTPAddr, cfg.Server.Addr)
	assert.Equal(t, DefaultPGDatabase, cfg.Postgres.Database)
	assert.Equal(t, DefaultKeepAliveSeconds, cfg.Session.KeepAliveSeconds)
	assert.Equal(t, DefaultSweepSchedule, cfg.Session.SweepSchedule)
	assert.Equal(t, DefaultRatePerMinute, cfg.Limits.MessagesPerMinute)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[server]
addr = ":9090"

[auth]
jwt_secret = "test-secret"

[session]
keep_alive_seconds = 60

[tools]
[tools.endpoints]
google_calendar = "https://www.googleapis.com/calendar/v3/calendars/primary/events"

[oauth]
[oauth.google]
client_id = "cid"
client_secret = "cs"
token_url = "https://oauth2.googleapis.com/token"
scopes = ["https://www.googleapis.com/auth/calendar"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "test-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, 60, cfg.Session.KeepAliveSeconds)
	assert.Equal(t, DefaultPGHost, cfg.Postgres.Host, "untouched sections keep defaults")

	require.Contains(t, cfg.OAuth, "google")
	assert.Equal(t, "cid", cfg.OAuth["google"].ClientID)
	assert.Equal(t, []string{"https://www.googleapis.com/auth/calendar"}, cfg.OAuth["google"].Scopes)
	assert.Contains(t, cfg.Tools.Endpoints, "google_calendar")
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server\naddr=1"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}
