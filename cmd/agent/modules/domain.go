package modules

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/fx"

	"github.com/donnahq/donna/internal/activity"
	"github.com/donnahq/donna/internal/agent"
	"github.com/donnahq/donna/internal/authsvc"
	"github.com/donnahq/donna/internal/boot"
	"github.com/donnahq/donna/internal/config"
	"github.com/donnahq/donna/internal/router"
	"github.com/donnahq/donna/internal/session"
	"github.com/donnahq/donna/internal/tokenstore"
	"github.com/donnahq/donna/internal/toolauth"
	"github.com/donnahq/donna/internal/tools"
	"github.com/donnahq/donna/internal/users"
)

var DomainModule = fx.Module(
	"domain",
	fx.Provide(
		provideSecretBox,
		tokenstore.NewStore,
		provideAuthService,
		provideHeaderSet,
		provideToolset,
		provideSessionManager,
		provideRunner,
		users.NewService,
		activity.NewService,
		provideRouter,
	),
	fx.Invoke(startSessionSweep),
)

// ---------------------------------------------------------------------------
// domain providers
// ---------------------------------------------------------------------------

func provideSecretBox(rc *boot.RuntimeConfig) (*tokenstore.SecretBox, error) {
	return tokenstore.NewSecretBox(rc.SecretKey)
}

func provideAuthService(log *slog.Logger, store *tokenstore.Store, cfg config.Config) *authsvc.Service {
	return authsvc.NewService(log, store, cfg.OAuth)
}

func provideHeaderSet() *toolauth.HeaderSet {
	return toolauth.NewHeaderSet(nil)
}

func provideToolset(log *slog.Logger, authService *authsvc.Service, headers *toolauth.HeaderSet, cfg config.Config) []tools.Tool {
	client := toolauth.NewClient(headers)
	return tools.ServiceTools(log, authService, client, cfg.Tools.Endpoints)
}

func provideSessionManager(log *slog.Logger, rc *boot.RuntimeConfig) *session.Manager {
	return session.NewManager(log, rc.KeepAlive)
}

func provideRunner(log *slog.Logger, cfg config.Config) (agent.Runner, error) {
	if cfg.Runner.BaseURL == "" {
		return nil, fmt.Errorf("runner base_url is required in config.toml")
	}
	timeout := time.Duration(cfg.Runner.TimeoutSeconds) * time.Second
	return agent.NewGateway(log, cfg.Runner.BaseURL, timeout), nil
}

func provideRouter(log *slog.Logger, runner agent.Runner, sessions *session.Manager, activityService *activity.Service, cfg config.Config) *router.Router {
	return router.New(log, runner, sessions, activityService, cfg.Limits.MessagesPerMinute)
}

// startSessionSweep schedules the expired-context sweep. Expiry is also
// detected lazily on access; the sweep only bounds memory.
func startSessionSweep(lc fx.Lifecycle, sessions *session.Manager, cfg config.Config) error {
	schedule := cfg.Session.SweepSchedule
	if schedule == "" {
		schedule = config.DefaultSweepSchedule
	}
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		sessions.CleanupExpired()
	}); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			c.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			<-c.Stop().Done()
			return nil
		},
	})
	return nil
}
