package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zulandar/semaphore/internal/config"
	"github.com/zulandar/semaphore/internal/notify"
	"github.com/zulandar/semaphore/internal/store"
)

func newSyncCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one status sync pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd, configPath, "status-sync")
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	return cmd
}

func newDueCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "due",
		Short: "Run one due-date check and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd, configPath, "due-check")
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	return cmd
}

// runOnce executes a single named pass with the full pipeline wired up.
func runOnce(cmd *cobra.Command, configPath, pass string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gormDB, err := openDB(cfg)
	if err != nil {
		return err
	}
	st := store.New(gormDB)

	sender, err := buildSender(cfg)
	if err != nil {
		return err
	}
	defer sender.Close()

	ctx := cmd.Context()
	router := notify.NewRouter(cfg.Notify, sender, cfg.Location())
	s, err := buildSyncer(ctx, cfg, st, router)
	if err != nil {
		return err
	}

	switch pass {
	case "status-sync":
		err = s.StatusSync(ctx)
	case "due-check":
		err = s.DueDateCheck(ctx)
	default:
		err = fmt.Errorf("unknown pass %q", pass)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s completed.\n", pass)
	return nil
}
