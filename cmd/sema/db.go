package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zulandar/semaphore/internal/config"
	"github.com/zulandar/semaphore/internal/db"
	"github.com/zulandar/semaphore/internal/store"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBInitCmd())
	cmd.AddCommand(newDBBackupCmd())
	cmd.AddCommand(newDBStatsCmd())
	return cmd
}

func newDBInitCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create and migrate the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if _, err := openDB(cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Migrated %d tables (%s).\n", len(db.AllModels()), cfg.Storage.Driver)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	return cmd
}

func newDBBackupCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Take a database backup and sweep expired ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			gormDB, err := openDB(cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			now := time.Now()
			path, err := db.Backup(gormDB, cfg.Jobs.BackupDir, now)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Backup written: %s\n", path)

			retention := time.Duration(cfg.Jobs.BackupRetentionDays) * 24 * time.Hour
			removed, err := db.SweepBackups(cfg.Jobs.BackupDir, retention, now)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Swept %d expired backup(s).\n", removed)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	return cmd
}

func newDBStatsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show store counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			gormDB, err := openDB(cfg)
			if err != nil {
				return err
			}

			stats, err := store.New(gormDB).Stats()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Registrations:   %d\n", stats.Registrations)
			fmt.Fprintf(out, "Subscribers:     %d\n", stats.Subscribers)
			fmt.Fprintf(out, "Watched tickets: %d\n", stats.WatchedTickets)
			fmt.Fprintf(out, "Snapshots:       %d\n", stats.Snapshots)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	return cmd
}
