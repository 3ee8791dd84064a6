package main

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/zulandar/semaphore/internal/config"
	"github.com/zulandar/semaphore/internal/db"
	"github.com/zulandar/semaphore/internal/notify"
	"github.com/zulandar/semaphore/internal/notify/discord"
	"github.com/zulandar/semaphore/internal/notify/slack"
	"github.com/zulandar/semaphore/internal/sourcectl"
	"github.com/zulandar/semaphore/internal/store"
	"github.com/zulandar/semaphore/internal/syncer"
	"github.com/zulandar/semaphore/internal/tracker"
)

const defaultConfigPath = "semaphore.yaml"

// noopRouter satisfies the syncer's notifier for commands that never
// send notifications (watch registration, listings).
type noopRouter struct{}

func (noopRouter) BeginCycle() {}

func (noopRouter) Dispatch(ctx context.Context, ev notify.Event) error { return nil }

// openDB loads the storage backend and runs migrations. A database that
// cannot be reached is a startup-fatal error.
func openDB(cfg *config.Config) (*gorm.DB, error) {
	gormDB, err := db.Open(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return gormDB, nil
}

// buildSender creates the platform adapter named by the config.
func buildSender(cfg *config.Config) (notify.Sender, error) {
	switch cfg.Notify.Platform {
	case "slack":
		return slack.New(slack.Opts{BotToken: cfg.Notify.Slack.BotToken})
	case "discord":
		return discord.New(discord.Opts{BotToken: cfg.Notify.Discord.BotToken})
	default:
		return nil, fmt.Errorf("unsupported platform %q", cfg.Notify.Platform)
	}
}

// buildSyncer assembles the full pipeline: tracker, source control,
// store, and notification router.
func buildSyncer(ctx context.Context, cfg *config.Config, st *store.Store, router *notify.Router) (*syncer.Syncer, error) {
	tr, err := tracker.New(cfg.Tracker)
	if err != nil {
		return nil, err
	}

	var dev syncer.DevStates
	if cfg.SourceControl.Owner != "" {
		dev = sourcectl.New(ctx, cfg.SourceControl)
	}

	return syncer.New(syncer.Opts{
		Store:   st,
		Tracker: tr,
		Dev:     dev,
		Router:  router,
		Users:   cfg.Users,
		Loc:     cfg.Location(),
	})
}
