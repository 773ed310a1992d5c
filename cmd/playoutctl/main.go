package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/playout/internal/app"
	"github.com/Nixie-Tech-LLC/playout/internal/cli"
	"github.com/Nixie-Tech-LLC/playout/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loadConfig := func() (*config.Config, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		app.SetupLogging(cfg)
		return cfg, nil
	}

	root := cli.BuildCLI(cli.Env{
		Open: func(ctx context.Context) (*app.App, error) {
			cfg, err := loadConfig()
			if err != nil {
				return nil, err
			}
			return app.Open(ctx, cfg)
		},
		Migrate: func(ctx context.Context) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return app.Migrate(ctx, cfg)
		},
	})

	if err := root.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("playoutctl")
		stop()
		os.Exit(1)
	}
}
