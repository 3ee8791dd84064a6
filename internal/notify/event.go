// Package notify turns sync findings into chat notifications and routes
// them to platform adapters (Slack, Discord).
package notify

import (
	"context"
	"time"
)

// Kind classifies an event and selects its destination channel.
type Kind string

const (
	KindStatusChange  Kind = "status_change"
	KindWatchedChange Kind = "watched_ticket_change"
	KindDueDateAlert  Kind = "due_date_alert"
	KindSystemLog     Kind = "system_log"
)

// Change is one field of a watched ticket moving between values.
type Change struct {
	Field string
	Old   string
	New   string
}

// Transition is one ticket's status move within a sync batch.
type Transition struct {
	TicketID string
	From     string
	To       string
}

// Event is a single detected occurrence. Only the fields relevant to
// its Kind are populated.
type Event struct {
	Kind      Kind
	SubjectID string // ticket key, user ID, or job name; part of the dedup key

	TicketID string
	URL      string

	Transitions []Transition // status sync batch summary
	Changes     []Change     // watched ticket field changes

	DueToday    []string // ticket keys due today
	DueTomorrow []string // ticket keys due tomorrow

	Recipients []string // chat user IDs for direct delivery

	Message  string // system log text
	Severity string // "info", "warning", "error", "success"
}

// Message is a formatted notification ready for an adapter.
type Message struct {
	Title    string
	Body     string
	Severity string
	Color    string
	Fields   []Field
}

// Field is a key-value pair rendered inside a message attachment.
type Field struct {
	Name  string
	Value string
	Short bool
}

// Sender delivers formatted messages to one chat platform.
type Sender interface {
	Send(ctx context.Context, channelID string, msg Message) error
	SendDirect(ctx context.Context, userID string, msg Message) error
	Close() error
}

// dateKey buckets a time into its calendar day for daily dedup.
func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}
