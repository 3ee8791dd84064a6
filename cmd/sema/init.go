package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const configTemplate = `timezone: %s

tracker:
  url: %s
  email: %s
  token: %s
  # due_date_jql: '"end date[date]"'

source_control:
  owner: ""
  token: ""
  repos: []

notify:
  platform: slack
  slack:
    bot_token: ""
  discord:
    bot_token: ""
  channels:
    status_change: ""
    due_date: ""
    watched: ""
    system_log: ""
  direct_messages: true

jobs:
  status_sync_interval_min: 60
  watch_poll_interval_min: 5
  due_check_times: ["0905"]
  due_check_at_startup: false
  backup_interval_hours: 24
  backup_dir: backups
  backup_retention_days: 7

storage:
  driver: sqlite
  path: semaphore.db

dashboard:
  enabled: false
  addr: 127.0.0.1:8035

users: []
`

func newInitCmd() *cobra.Command {
	var (
		configPath string
		force      bool
		trackerURL string
		email      string
		timezone   string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		Long:  "Scaffolds a semaphore.yaml. The tracker API token is prompted for with input hidden; leave it empty to fill in later.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, configPath, force, trackerURL, email, timezone)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to write the config file")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	cmd.Flags().StringVar(&trackerURL, "url", "https://example.atlassian.net", "tracker base URL")
	cmd.Flags().StringVar(&email, "email", "", "tracker account email")
	cmd.Flags().StringVar(&timezone, "timezone", "UTC", "IANA timezone for schedules")
	return cmd
}

func runInit(cmd *cobra.Command, configPath string, force bool, trackerURL, email, timezone string) error {
	out := cmd.OutOrStdout()

	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
	}

	token, err := promptToken(cmd)
	if err != nil {
		return err
	}

	content := fmt.Sprintf(configTemplate, timezone, trackerURL, email, token)
	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", configPath, err)
	}

	fmt.Fprintf(out, "Wrote %s\n", configPath)
	fmt.Fprintln(out, "Fill in the notify and source_control sections, then run: sema start")
	return nil
}

// promptToken reads the tracker API token without echoing. Falls back to
// a plain read when stdin is not a terminal (pipes, tests).
func promptToken(cmd *cobra.Command) (string, error) {
	fmt.Fprint(cmd.OutOrStdout(), "Tracker API token (input hidden, enter to skip): ")

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(cmd.OutOrStdout())
		if err != nil {
			return "", fmt.Errorf("read token: %w", err)
		}
		return strings.TrimSpace(string(raw)), nil
	}

	var token string
	fmt.Fscanln(cmd.InOrStdin(), &token)
	return strings.TrimSpace(token), nil
}
