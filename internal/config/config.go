// Package config provides YAML-based configuration loading for Semaphore.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Semaphore configuration, loaded from semaphore.yaml.
// It is validated once at load and treated as immutable for the process
// lifetime.
type Config struct {
	Timezone      string              `yaml:"timezone"`
	Tracker       TrackerConfig       `yaml:"tracker"`
	SourceControl SourceControlConfig `yaml:"source_control"`
	Notify        NotifyConfig        `yaml:"notify"`
	Jobs          JobsConfig          `yaml:"jobs"`
	Storage       StorageConfig       `yaml:"storage"`
	Dashboard     DashboardConfig     `yaml:"dashboard"`
	Users         []UserConfig        `yaml:"users"`
}

// TrackerConfig holds issue-tracker (Jira) connection settings.
type TrackerConfig struct {
	URL   string `yaml:"url"`
	Email string `yaml:"email"`
	Token string `yaml:"token"`
	// DueDateJQL overrides the JQL fragment used for due-date range
	// queries, for sites that track due dates in a custom field.
	DueDateJQL string `yaml:"due_date_jql"`
}

// SourceControlConfig holds GitHub connection settings and the repositories
// scanned for ticket branches and pull requests.
type SourceControlConfig struct {
	Owner string   `yaml:"owner"`
	Token string   `yaml:"token"`
	Repos []string `yaml:"repos"`
}

// NotifyConfig selects the chat platform and maps notification kinds to
// channel identifiers.
type NotifyConfig struct {
	Platform       string         `yaml:"platform"` // "slack" or "discord"
	Slack          SlackConfig    `yaml:"slack"`
	Discord        DiscordConfig  `yaml:"discord"`
	Channels       ChannelsConfig `yaml:"channels"`
	DirectMessages bool           `yaml:"direct_messages"`
}

// SlackConfig holds Slack API credentials.
type SlackConfig struct {
	BotToken string `yaml:"bot_token"`
}

// DiscordConfig holds Discord API credentials.
type DiscordConfig struct {
	BotToken string `yaml:"bot_token"`
}

// ChannelsConfig maps each notification kind to a destination channel.
type ChannelsConfig struct {
	StatusChange string `yaml:"status_change"`
	DueDate      string `yaml:"due_date"`
	Watched      string `yaml:"watched"`
	SystemLog    string `yaml:"system_log"`
}

// JobsConfig holds the cadences for the scheduled jobs. Intervals are in
// minutes; fixed times are HHMM strings in the configured timezone.
type JobsConfig struct {
	StatusSyncIntervalMin int      `yaml:"status_sync_interval_min"`
	WatchPollIntervalMin  int      `yaml:"watch_poll_interval_min"`
	DueCheckTimes         []string `yaml:"due_check_times"`
	DueCheckAtStartup     bool     `yaml:"due_check_at_startup"`
	BackupIntervalHours   int      `yaml:"backup_interval_hours"`
	BackupDir             string   `yaml:"backup_dir"`
	BackupRetentionDays   int      `yaml:"backup_retention_days"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver string      `yaml:"driver"` // "sqlite" (default) or "mysql"
	Path   string      `yaml:"path"`   // sqlite database file
	MySQL  MySQLConfig `yaml:"mysql"`
}

// MySQLConfig holds connection settings for the MySQL backend.
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// DashboardConfig controls the read-only HTTP status server.
type DashboardConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// UserConfig identifies one monitored user: tracker account for due-date
// queries and chat account for alerts.
type UserConfig struct {
	Name      string `yaml:"name"`
	TrackerID string `yaml:"tracker_id"`
	ChatID    string `yaml:"chat_id"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Location returns the configured timezone location. Validation guarantees
// the name loads; the fallback only applies to hand-built Configs.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Timezone == "" {
		c.Timezone = "Local"
	}
	if c.Jobs.StatusSyncIntervalMin == 0 {
		c.Jobs.StatusSyncIntervalMin = 60
	}
	if c.Jobs.WatchPollIntervalMin == 0 {
		c.Jobs.WatchPollIntervalMin = 5
	}
	if c.Jobs.BackupIntervalHours == 0 {
		c.Jobs.BackupIntervalHours = 24
	}
	if c.Jobs.BackupDir == "" {
		c.Jobs.BackupDir = "backups"
	}
	if c.Jobs.BackupRetentionDays == 0 {
		c.Jobs.BackupRetentionDays = 7
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "semaphore.db"
	}
	if c.Storage.MySQL.Host == "" {
		c.Storage.MySQL.Host = "127.0.0.1"
	}
	if c.Storage.MySQL.Port == 0 {
		c.Storage.MySQL.Port = 3306
	}
	if c.Dashboard.Addr == "" {
		c.Dashboard.Addr = "127.0.0.1:8035"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("timezone %q is not a valid location", c.Timezone))
	}

	if c.Tracker.URL == "" {
		errs = append(errs, "tracker.url is required")
	}
	if c.Tracker.Email == "" {
		errs = append(errs, "tracker.email is required")
	}
	if c.Tracker.Token == "" {
		errs = append(errs, "tracker.token is required")
	}

	// Source control is optional. Without it the status sync job is
	// disabled, but watcher polling and due-date alerts still run.
	if c.SourceControl.Owner != "" && len(c.SourceControl.Repos) == 0 {
		errs = append(errs, "source_control.repos must list at least one repository")
	}

	switch c.Notify.Platform {
	case "slack":
		if c.Notify.Slack.BotToken == "" {
			errs = append(errs, "notify.slack.bot_token is required for platform slack")
		}
	case "discord":
		if c.Notify.Discord.BotToken == "" {
			errs = append(errs, "notify.discord.bot_token is required for platform discord")
		}
	case "":
		errs = append(errs, "notify.platform is required")
	default:
		errs = append(errs, fmt.Sprintf("notify.platform %q is not supported (slack, discord)", c.Notify.Platform))
	}

	for i, t := range c.Jobs.DueCheckTimes {
		if !validHHMM(t) {
			errs = append(errs, fmt.Sprintf("jobs.due_check_times[%d] %q is not a valid HHMM time", i, t))
		}
	}

	switch c.Storage.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("storage.driver %q is not supported (sqlite, mysql)", c.Storage.Driver))
	}
	if c.Storage.Driver == "mysql" && c.Storage.MySQL.Database == "" {
		errs = append(errs, "storage.mysql.database is required for driver mysql")
	}

	for i, u := range c.Users {
		if u.Name == "" {
			errs = append(errs, fmt.Sprintf("users[%d].name is required", i))
		}
		if u.TrackerID == "" {
			errs = append(errs, fmt.Sprintf("users[%d].tracker_id is required", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// validHHMM reports whether s is a 3- or 4-digit wall-clock time like "930"
// or "1615".
func validHHMM(s string) bool {
	if len(s) == 3 {
		s = "0" + s
	}
	if len(s) != 4 {
		return false
	}
	hour, err := strconv.Atoi(s[:2])
	if err != nil {
		return false
	}
	minute, err := strconv.Atoi(s[2:])
	if err != nil {
		return false
	}
	return hour >= 0 && hour <= 23 && minute >= 0 && minute <= 59
}
