// Package config loads muziqua configuration from defaults and environment
// variables using koanf.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ErrMissingDatabaseURL is returned when DATABASE_URL is not set.
var ErrMissingDatabaseURL = errors.New("missing DATABASE_URL environment variable")

// Config holds the full service configuration.
type Config struct {
	Addr        string        `koanf:"addr"`
	DatabaseURL string        `koanf:"database_url"`
	SiteURL     string        `koanf:"site_url"`
	Spotify     SpotifyConfig `koanf:"spotify"`
	Slack       SlackConfig   `koanf:"slack"`
	Sync        SyncConfig    `koanf:"sync"`
	Log         LogConfig     `koanf:"log"`
}

// SpotifyConfig holds the upstream API credentials.
//
// These are deliberately not validated at load time: the sync pipeline
// reports missing credentials as a structured outcome instead of the
// process refusing to start.
type SpotifyConfig struct {
	ClientID     string `koanf:"client_id"`
	ClientSecret string `koanf:"client_secret"`
	RefreshToken string `koanf:"refresh_token"`
}

// SlackConfig holds the optional Slack presence integration settings.
type SlackConfig struct {
	Token string `koanf:"token"`
}

// SyncConfig holds ingestion pipeline timing settings.
type SyncConfig struct {
	// Cooldown is the minimum time between pipeline runs (the throttle window).
	Cooldown time.Duration `koanf:"cooldown"`
	// Interval is how often the background poller triggers a run.
	// Zero disables the poller.
	Interval time.Duration `koanf:"interval"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json or console
}

// envKeys maps recognized environment variables to config keys. The Spotify,
// Slack and database variables keep their historical unprefixed names; service
// tunables use the MUZIQUA_ prefix.
var envKeys = map[string]string{
	"MUZIQUA_ADDR":          "addr",
	"MUZIQUA_SITE_URL":      "site_url",
	"MUZIQUA_SYNC_COOLDOWN": "sync.cooldown",
	"MUZIQUA_SYNC_INTERVAL": "sync.interval",
	"MUZIQUA_LOG_LEVEL":     "log.level",
	"MUZIQUA_LOG_FORMAT":    "log.format",
	"DATABASE_URL":          "database_url",
	"SPOTIFY_CLIENT_ID":     "spotify.client_id",
	"SPOTIFY_CLIENT_SECRET": "spotify.client_secret",
	"SPOTIFY_REFRESH_TOKEN": "spotify.refresh_token",
	"SLACK_TOKEN":           "slack.token",
}

// defaultConfig returns the built-in defaults, applied before env overrides.
func defaultConfig() *Config {
	return &Config{
		Addr:    "127.0.0.1:8080",
		SiteURL: "https://muziqua.base44.app/",
		Sync: SyncConfig{
			Cooldown: 3 * time.Minute,
			Interval: 5 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from defaults and environment variables.
// Returns ErrMissingDatabaseURL if no database URL is configured.
func Load() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, ErrMissingDatabaseURL
	}
	return cfg, nil
}

// load parses defaults and environment without validation. Split out so tests
// can exercise layering without a database URL.
func load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	// Unrecognized variables map to "" and are dropped by the provider.
	if err := k.Load(env.Provider("", ".", func(s string) string {
		return envKeys[s]
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}
