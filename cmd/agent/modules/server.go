package modules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"

	donnadb "github.com/donnahq/donna/db"
	"github.com/donnahq/donna/internal/authsvc"
	"github.com/donnahq/donna/internal/boot"
	"github.com/donnahq/donna/internal/config"
	"github.com/donnahq/donna/internal/db"
	"github.com/donnahq/donna/internal/handlers"
	"github.com/donnahq/donna/internal/server"
	"github.com/donnahq/donna/internal/tokenstore"
	"github.com/donnahq/donna/internal/tools"
	"github.com/donnahq/donna/internal/users"
	"github.com/donnahq/donna/internal/version"
)

var ServerModule = fx.Module(
	"server",
	fx.Provide(
		provideServerHandler(handlers.NewPingHandler),
		provideServerHandler(handlers.NewSwaggerHandler),
		provideServerHandler(provideAuthHandler),
		provideServerHandler(provideOAuthHandler),
		provideServerHandler(handlers.NewWSHandler),
		provideServerHandler(handlers.NewActivityHandler),
		provideServerHandler(provideToolsHandler),
		provideServer,
	),
	fx.Invoke(startServer),
)

// ---------------------------------------------------------------------------
// server
// ---------------------------------------------------------------------------

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideAuthHandler(log *slog.Logger, userService *users.Service, rc *boot.RuntimeConfig) *handlers.AuthHandler {
	return handlers.NewAuthHandler(log, userService, rc.JwtSecret, rc.JwtExpiresIn)
}

func provideOAuthHandler(log *slog.Logger, authService *authsvc.Service, store *tokenstore.Store, rc *boot.RuntimeConfig) *handlers.OAuthHandler {
	return handlers.NewOAuthHandler(log, authService, store, rc.JwtSecret)
}

func provideToolsHandler(log *slog.Logger, toolset []tools.Tool) *handlers.ToolsHandler {
	return handlers.NewToolsHandler(log, toolset)
}

type serverParams struct {
	fx.In

	Logger         *slog.Logger
	RuntimeConfig  *boot.RuntimeConfig
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.RuntimeConfig.ServerAddr, params.RuntimeConfig.JwtSecret, params.ServerHandlers...)
}

func startServer(
	lc fx.Lifecycle,
	logger *slog.Logger,
	srv *server.Server,
	shutdowner fx.Shutdowner,
	cfg config.Config,
	pool *pgxpool.Pool,
) {
	fmt.Printf("Starting Donna Agent %s\n", version.String())

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := db.RunMigrate(logger, cfg.Postgres, donnadb.Migrations(), "up", nil); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}

			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
