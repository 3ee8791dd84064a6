// Package tracker talks to the Jira REST API.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jira "github.com/andygrunwald/go-jira"

	"github.com/zulandar/semaphore/internal/config"
	"github.com/zulandar/semaphore/internal/rules"
)

// ErrNotFound is returned when the tracker reports a ticket gone.
var ErrNotFound = errors.New("tracker: ticket not found")

// defaultDueDateField is the custom field carrying the planned end date.
const defaultDueDateField = `"end date[date]"`

// Ticket is the tracker-agnostic view of an issue.
type Ticket struct {
	Key         string
	Type        string
	Status      string
	Summary     string
	Description string
	Assignee    string
	Updated     string
	DueDate     string
}

// issueAPI is the slice of the Jira issue service the client uses.
// Swapped for a fake in tests.
type issueAPI interface {
	SearchWithContext(ctx context.Context, jql string, opts *jira.SearchOptions) ([]jira.Issue, *jira.Response, error)
	GetWithContext(ctx context.Context, issueID string, opts *jira.GetQueryOptions) (*jira.Issue, *jira.Response, error)
	GetTransitionsWithContext(ctx context.Context, id string) ([]jira.Transition, *jira.Response, error)
	DoTransitionWithContext(ctx context.Context, ticketID, transitionID string) (*jira.Response, error)
}

// selfAPI is the slice of the Jira user service used for health checks.
type selfAPI interface {
	GetSelfWithContext(ctx context.Context) (*jira.User, *jira.Response, error)
}

// Client wraps a Jira connection.
type Client struct {
	baseURL      string
	dueDateField string
	issues       issueAPI
	users        selfAPI
}

// New dials a Jira instance using basic auth (email + API token).
func New(cfg config.TrackerConfig) (*Client, error) {
	tp := jira.BasicAuthTransport{
		Username: cfg.Email,
		Password: cfg.Token,
	}
	jc, err := jira.NewClient(tp.Client(), cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("tracker: connect %s: %w", cfg.URL, err)
	}
	field := cfg.DueDateJQL
	if field == "" {
		field = defaultDueDateField
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.URL, "/"),
		dueDateField: field,
		issues:       jc.Issue,
		users:        jc.User,
	}, nil
}

// CheckConnection verifies the credentials by fetching the current user.
func (c *Client) CheckConnection(ctx context.Context) error {
	if _, _, err := c.users.GetSelfWithContext(ctx); err != nil {
		return fmt.Errorf("tracker: connection check: %w", err)
	}
	return nil
}

// BrowseURL returns the human-facing URL for a ticket.
func (c *Client) BrowseURL(key string) string {
	return c.baseURL + "/browse/" + key
}

// notInTerminal renders the shared JQL clause excluding finished work.
func notInTerminal() string {
	quoted := make([]string, 0, len(rules.TerminalStatuses))
	for _, st := range rules.TerminalStatuses {
		s := string(st)
		if strings.ContainsRune(s, ' ') {
			s = `"` + s + `"`
		}
		quoted = append(quoted, s)
	}
	return "status NOT IN (" + strings.Join(quoted, ", ") + ")"
}

// OpenAssigned returns the acting user's open sub-tasks and bugs, the
// population the status sync operates on.
func (c *Client) OpenAssigned(ctx context.Context) ([]Ticket, error) {
	jql := fmt.Sprintf(
		`assignee = currentUser() AND %s AND type IN (Sub-task, Subtask, Bug, "Implementation bug") ORDER BY created DESC`,
		notInTerminal(),
	)
	return c.search(ctx, jql)
}

// DueSoon returns one user's open tickets due today or tomorrow. Day
// boundaries follow the supplied time's location. Each day is queried
// separately: the due date may live in a custom field the issue payload
// does not map, so the matching query is what pins a ticket to its day.
func (c *Client) DueSoon(ctx context.Context, trackerID string, today time.Time) ([]Ticket, error) {
	var out []Ticket
	for _, day := range []string{
		today.Format("2006-01-02"),
		today.AddDate(0, 0, 1).Format("2006-01-02"),
	} {
		jql := fmt.Sprintf(
			`assignee = %s AND %s AND %s >= %s AND %s <= %s ORDER BY priority DESC`,
			trackerID, notInTerminal(),
			c.dueDateField, day,
			c.dueDateField, day,
		)
		tickets, err := c.search(ctx, jql)
		if err != nil {
			return nil, err
		}
		for i := range tickets {
			if tickets[i].DueDate == "" {
				tickets[i].DueDate = day
			}
		}
		out = append(out, tickets...)
	}
	return out, nil
}

func (c *Client) search(ctx context.Context, jql string) ([]Ticket, error) {
	issues, _, err := c.issues.SearchWithContext(ctx, jql, nil)
	if err != nil {
		return nil, fmt.Errorf("tracker: search: %w", err)
	}
	out := make([]Ticket, 0, len(issues))
	for i := range issues {
		out = append(out, fromIssue(&issues[i]))
	}
	return out, nil
}

// Get fetches one ticket. A missing ticket is ErrNotFound.
func (c *Client) Get(ctx context.Context, key string) (*Ticket, error) {
	issue, resp, err := c.issues.GetWithContext(ctx, key, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("tracker: get %s: %w", key, err)
	}
	t := fromIssue(issue)
	return &t, nil
}

func fromIssue(issue *jira.Issue) Ticket {
	t := Ticket{Key: issue.Key}
	if issue.Fields == nil {
		return t
	}
	t.Type = issue.Fields.Type.Name
	t.Summary = issue.Fields.Summary
	t.Description = issue.Fields.Description
	if issue.Fields.Status != nil {
		t.Status = issue.Fields.Status.Name
	}
	if issue.Fields.Assignee != nil {
		t.Assignee = issue.Fields.Assignee.DisplayName
	}
	if updated := time.Time(issue.Fields.Updated); !updated.IsZero() {
		t.Updated = updated.Format(time.RFC3339)
	}
	if due := time.Time(issue.Fields.Duedate); !due.IsZero() {
		t.DueDate = due.Format("2006-01-02")
	}
	return t
}
