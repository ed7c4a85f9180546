// Command muziqua runs the listening history mirror: it syncs Spotify
// playback history into Postgres on a schedule and serves it over HTTP.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/justestif/muziqua/internal/badge"
	"github.com/justestif/muziqua/internal/config"
	"github.com/justestif/muziqua/internal/db"
	"github.com/justestif/muziqua/internal/ingest"
	"github.com/justestif/muziqua/internal/logging"
	"github.com/justestif/muziqua/internal/nowplaying"
	"github.com/justestif/muziqua/internal/poller"
	"github.com/justestif/muziqua/internal/presence"
	"github.com/justestif/muziqua/internal/spotify"
	"github.com/justestif/muziqua/internal/web"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logging.New(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	database, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}

	tokens := spotify.NewTokenManager(spotify.Credentials{
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
		RefreshToken: cfg.Spotify.RefreshToken,
	})

	pipeline := ingest.New(
		database.History(),
		database.Cursor(),
		ingest.ConnectorFunc(func(ctx context.Context) (ingest.Player, error) {
			return tokens.Client(ctx)
		}),
		ingest.WithCooldown(cfg.Sync.Cooldown),
		ingest.WithLogger(log),
	)

	resolver := nowplaying.New(
		nowplaying.ConnectorFunc(func(ctx context.Context) (nowplaying.Client, error) {
			return tokens.Client(ctx)
		}),
		log,
	)

	slack := presence.NewSlack(cfg.Slack.Token, cfg.SiteURL)

	handlers := web.NewHandlers(pipeline, resolver, database.History(), slack, badge.Render, log)
	server := web.NewServer(web.ServerConfig{
		Addr:     cfg.Addr,
		Handlers: handlers,
		Logger:   log,
	})

	go poller.New(pipeline, cfg.Sync.Interval, log).Run(ctx)

	return server.Run(ctx)
}
