package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/zulandar/semaphore/internal/config"
	"github.com/zulandar/semaphore/internal/dashboard"
	"github.com/zulandar/semaphore/internal/db"
	"github.com/zulandar/semaphore/internal/notify"
	"github.com/zulandar/semaphore/internal/scheduler"
	"github.com/zulandar/semaphore/internal/store"
)

func newStartCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run the sync daemon",
		Long:  "Starts the scheduler with the status sync, watch poll, due-date check, and backup jobs. Runs until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	return cmd
}

func runStart(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gormDB, err := openDB(cfg)
	if err != nil {
		return err
	}
	st := store.New(gormDB)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sender, err := buildSender(cfg)
	if err != nil {
		return err
	}
	defer sender.Close()

	router := notify.NewRouter(cfg.Notify, sender, cfg.Location())

	s, err := buildSyncer(ctx, cfg, st, router)
	if err != nil {
		return err
	}

	sched := scheduler.New(cfg.Location())
	sched.OnError = func(job string, err error) {
		log.Printf("job %s: %v", job, err)
		ev := notify.Event{
			Kind:      notify.KindSystemLog,
			SubjectID: job,
			Message:   err.Error(),
			Severity:  "error",
		}
		if derr := router.Dispatch(ctx, ev); derr != nil {
			log.Printf("dispatch system log: %v", derr)
		}
	}

	if cfg.SourceControl.Owner != "" {
		if err := sched.Add(scheduler.Job{
			Name:         "status-sync",
			Interval:     time.Duration(cfg.Jobs.StatusSyncIntervalMin) * time.Minute,
			RunAtStartup: true,
			Run:          s.StatusSync,
		}); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(out, "Source control not configured; status sync disabled.")
	}

	if err := sched.Add(scheduler.Job{
		Name:     "watch-poll",
		Interval: time.Duration(cfg.Jobs.WatchPollIntervalMin) * time.Minute,
		Run:      s.WatchPoll,
	}); err != nil {
		return err
	}

	if err := sched.Add(scheduler.Job{
		Name:         "due-check",
		At:           cfg.Jobs.DueCheckTimes,
		RunAtStartup: cfg.Jobs.DueCheckAtStartup,
		Run:          s.DueDateCheck,
	}); err != nil {
		return err
	}

	if cfg.Storage.Driver == "sqlite" {
		if err := sched.Add(scheduler.Job{
			Name:     "backup",
			Interval: time.Duration(cfg.Jobs.BackupIntervalHours) * time.Hour,
			Run: func(ctx context.Context) error {
				return runBackupJob(gormDB, cfg)
			},
		}); err != nil {
			return err
		}
	}

	if cfg.Dashboard.Enabled {
		go func() {
			err := dashboard.Start(ctx, dashboard.StartOpts{
				Store:   st,
				Addr:    cfg.Dashboard.Addr,
				Jobs:    sched.Statuses,
				Dropped: router.Dropped,
			})
			if err != nil {
				log.Printf("dashboard: %v", err)
			}
		}()
		fmt.Fprintf(out, "Dashboard listening on http://%s\n", cfg.Dashboard.Addr)
	}

	fmt.Fprintf(out, "Semaphore daemon starting (%d user(s), platform %s)...\n",
		len(cfg.Users), cfg.Notify.Platform)

	if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	fmt.Fprintln(out, "Semaphore stopped.")
	return nil
}

// runBackupJob takes a backup and sweeps expired ones.
func runBackupJob(gormDB *gorm.DB, cfg *config.Config) error {
	now := time.Now()
	path, err := db.Backup(gormDB, cfg.Jobs.BackupDir, now)
	if err != nil {
		return err
	}
	log.Printf("backup written: %s", path)

	retention := time.Duration(cfg.Jobs.BackupRetentionDays) * 24 * time.Hour
	removed, err := db.SweepBackups(cfg.Jobs.BackupDir, retention, now)
	if err != nil {
		return err
	}
	if removed > 0 {
		log.Printf("backup sweep: removed %d old file(s)", removed)
	}
	return nil
}
