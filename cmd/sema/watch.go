package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zulandar/semaphore/internal/config"
	"github.com/zulandar/semaphore/internal/store"
	"github.com/zulandar/semaphore/internal/syncer"
	"github.com/zulandar/semaphore/internal/tracker"
)

// buildWatchSyncer wires only what the watch commands need: tracker and
// store, no notification platform.
func buildWatchSyncer(cmd *cobra.Command, configPath string) (*syncer.Syncer, *store.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	gormDB, err := openDB(cfg)
	if err != nil {
		return nil, nil, err
	}
	st := store.New(gormDB)

	tr, err := tracker.New(cfg.Tracker)
	if err != nil {
		return nil, nil, err
	}

	s, err := syncer.New(syncer.Opts{
		Store:   st,
		Tracker: tr,
		Router:  noopRouter{},
		Users:   cfg.Users,
		Loc:     cfg.Location(),
	})
	if err != nil {
		return nil, nil, err
	}
	return s, st, nil
}

func newWatchCmd() *cobra.Command {
	var (
		configPath string
		userID     string
		userName   string
	)

	cmd := &cobra.Command{
		Use:   "watch TICKET",
		Short: "Register a subscriber on a ticket",
		Long:  "Validates the ticket against the tracker, records the baseline snapshot, and registers the subscriber for change notifications.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user is required")
			}
			s, _, err := buildWatchSyncer(cmd, configPath)
			if err != nil {
				return err
			}
			if err := s.Watch(cmd.Context(), args[0], userID, userName); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Watching %s for %s\n", args[0], userID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	cmd.Flags().StringVar(&userID, "user", "", "chat user ID of the subscriber")
	cmd.Flags().StringVar(&userName, "name", "", "display name of the subscriber")
	return cmd
}

func newUnwatchCmd() *cobra.Command {
	var (
		configPath string
		userID     string
	)

	cmd := &cobra.Command{
		Use:   "unwatch TICKET",
		Short: "Remove a subscriber from a ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user is required")
			}
			s, _, err := buildWatchSyncer(cmd, configPath)
			if err != nil {
				return err
			}
			removed, err := s.Unwatch(args[0], userID)
			if err != nil {
				return err
			}
			if !removed {
				fmt.Fprintf(cmd.OutOrStdout(), "%s was not watching %s\n", userID, args[0])
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stopped watching %s for %s\n", args[0], userID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	cmd.Flags().StringVar(&userID, "user", "", "chat user ID of the subscriber")
	return cmd
}

func newWatchingCmd() *cobra.Command {
	var (
		configPath string
		userID     string
	)

	cmd := &cobra.Command{
		Use:   "watching",
		Short: "List watched tickets",
		Long:  "Lists every watched ticket, or just one subscriber's with --user.",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, err := buildWatchSyncer(cmd, configPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			var ids []string
			if userID != "" {
				ids, err = st.WatchedTicketsFor(userID)
			} else {
				ids, err = st.AllWatchedTickets()
			}
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				fmt.Fprintln(out, "No watched tickets.")
				return nil
			}
			for _, id := range ids {
				fmt.Fprintln(out, id)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	cmd.Flags().StringVar(&userID, "user", "", "filter by chat user ID")
	return cmd
}
