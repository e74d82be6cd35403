package main

import (
	"log/slog"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/donnahq/donna/cmd/agent/modules"
)

func main() {
	fx.New(
		modules.InfraModule,
		modules.DomainModule,
		modules.ChannelModule,
		modules.ServerModule,
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}
