package modules

import (
	"context"
	"log/slog"
	"strings"

	"go.uber.org/fx"

	"github.com/donnahq/donna/internal/boot"
	"github.com/donnahq/donna/internal/channel/adapters/telegram"
	"github.com/donnahq/donna/internal/router"
	"github.com/donnahq/donna/internal/users"
)

var ChannelModule = fx.Module(
	"channel",
	fx.Invoke(startTelegram),
)

// startTelegram connects the Telegram adapter when a bot token is
// configured; without one the web channel is the only way in.
func startTelegram(lc fx.Lifecycle, log *slog.Logger, rc *boot.RuntimeConfig, r *router.Router, userService *users.Service) {
	if strings.TrimSpace(rc.TelegramBot) == "" {
		log.Info("telegram bot token not configured, channel disabled")
		return
	}

	var adapter *telegram.Adapter
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			a, err := telegram.New(log, rc.TelegramBot, r, userService)
			if err != nil {
				return err
			}
			adapter = a
			return adapter.Start(context.Background())
		},
		OnStop: func(ctx context.Context) error {
			if adapter != nil {
				adapter.Stop()
			}
			return nil
		},
	})
}
