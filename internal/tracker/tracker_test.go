package tracker

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	jira "github.com/andygrunwald/go-jira"
)

type fakeIssues struct {
	searchJQL    string   // most recent query
	searchJQLs   []string // all queries in order
	searchResult []jira.Issue
	searchQueue  [][]jira.Issue // served one per call when non-empty
	searchErr    error

	getIssue *jira.Issue
	getResp  *jira.Response
	getErr   error

	transitions    []jira.Transition
	transitionsErr error
	applied        []string
	applyErr       error
}

func (f *fakeIssues) SearchWithContext(ctx context.Context, jql string, opts *jira.SearchOptions) ([]jira.Issue, *jira.Response, error) {
	f.searchJQL = jql
	f.searchJQLs = append(f.searchJQLs, jql)
	if len(f.searchQueue) > 0 {
		next := f.searchQueue[0]
		f.searchQueue = f.searchQueue[1:]
		return next, nil, f.searchErr
	}
	return f.searchResult, nil, f.searchErr
}

func (f *fakeIssues) GetWithContext(ctx context.Context, issueID string, opts *jira.GetQueryOptions) (*jira.Issue, *jira.Response, error) {
	return f.getIssue, f.getResp, f.getErr
}

func (f *fakeIssues) GetTransitionsWithContext(ctx context.Context, id string) ([]jira.Transition, *jira.Response, error) {
	return f.transitions, nil, f.transitionsErr
}

func (f *fakeIssues) DoTransitionWithContext(ctx context.Context, ticketID, transitionID string) (*jira.Response, error) {
	if f.applyErr != nil {
		return nil, f.applyErr
	}
	f.applied = append(f.applied, transitionID)
	return nil, nil
}

func testClient(f *fakeIssues) *Client {
	return &Client{
		baseURL:      "https://jira.example.com",
		dueDateField: defaultDueDateField,
		issues:       f,
	}
}

func makeIssue(key, typ, status, summary, assignee string) jira.Issue {
	return jira.Issue{
		Key: key,
		Fields: &jira.IssueFields{
			Type:     jira.IssueType{Name: typ},
			Status:   &jira.Status{Name: status},
			Summary:  summary,
			Assignee: &jira.User{DisplayName: assignee},
		},
	}
}

func TestBrowseURL(t *testing.T) {
	c := testClient(&fakeIssues{})
	if got := c.BrowseURL("PROJ-1"); got != "https://jira.example.com/browse/PROJ-1" {
		t.Fatalf("unexpected url: %s", got)
	}
}

func TestOpenAssignedJQLExcludesTerminalStatuses(t *testing.T) {
	f := &fakeIssues{searchResult: []jira.Issue{makeIssue("PROJ-1", "Sub-task", "Open", "x", "carol")}}
	c := testClient(f)

	tickets, err := c.OpenAssigned(context.Background())
	if err != nil {
		t.Fatalf("open assigned: %v", err)
	}
	if len(tickets) != 1 || tickets[0].Key != "PROJ-1" {
		t.Fatalf("unexpected tickets: %v", tickets)
	}

	for _, want := range []string{
		"assignee = currentUser()",
		"status NOT IN (Closed, Done, Rejected, Resolved, \"Deployed to Production\")",
		"Sub-task",
		"Implementation bug",
	} {
		if !strings.Contains(f.searchJQL, want) {
			t.Fatalf("jql missing %q:\n%s", want, f.searchJQL)
		}
	}
}

func TestDueSoonQueriesEachDay(t *testing.T) {
	f := &fakeIssues{}
	c := testClient(f)

	today := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	if _, err := c.DueSoon(context.Background(), "user123", today); err != nil {
		t.Fatalf("due soon: %v", err)
	}

	if len(f.searchJQLs) != 2 {
		t.Fatalf("expected one query per day, got %v", f.searchJQLs)
	}
	for i, day := range []string{"2026-03-10", "2026-03-11"} {
		jql := f.searchJQLs[i]
		for _, want := range []string{
			"assignee = user123",
			`"end date[date]" >= ` + day,
			`"end date[date]" <= ` + day,
		} {
			if !strings.Contains(jql, want) {
				t.Fatalf("day %s jql missing %q:\n%s", day, want, jql)
			}
		}
	}
}

func TestDueSoonStampsDayFromQuery(t *testing.T) {
	// A site tracking due dates in a custom field returns issues with no
	// mapped duedate; the day comes from the query that matched them.
	f := &fakeIssues{searchQueue: [][]jira.Issue{
		{makeIssue("PROJ-1", "Bug", "Open", "today's work", "carol")},
		{makeIssue("PROJ-2", "Bug", "Open", "tomorrow's work", "carol")},
	}}
	c := testClient(f)

	today := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	tickets, err := c.DueSoon(context.Background(), "user123", today)
	if err != nil {
		t.Fatalf("due soon: %v", err)
	}
	if len(tickets) != 2 {
		t.Fatalf("expected 2 tickets, got %v", tickets)
	}
	if tickets[0].Key != "PROJ-1" || tickets[0].DueDate != "2026-03-10" {
		t.Fatalf("unexpected today ticket: %+v", tickets[0])
	}
	if tickets[1].Key != "PROJ-2" || tickets[1].DueDate != "2026-03-11" {
		t.Fatalf("unexpected tomorrow ticket: %+v", tickets[1])
	}
}

func TestDueSoonKeepsMappedDueDate(t *testing.T) {
	issue := makeIssue("PROJ-1", "Bug", "Open", "x", "carol")
	issue.Fields.Duedate = jira.Date(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))
	f := &fakeIssues{searchQueue: [][]jira.Issue{{issue}, {}}}
	c := testClient(f)

	today := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	tickets, err := c.DueSoon(context.Background(), "user123", today)
	if err != nil {
		t.Fatalf("due soon: %v", err)
	}
	if len(tickets) != 1 || tickets[0].DueDate != "2026-03-10" {
		t.Fatalf("mapped due date should survive: %+v", tickets)
	}
}

func TestGetNotFound(t *testing.T) {
	f := &fakeIssues{
		getErr:  errors.New("issue does not exist"),
		getResp: &jira.Response{Response: &http.Response{StatusCode: http.StatusNotFound}},
	}
	c := testClient(f)

	_, err := c.Get(context.Background(), "PROJ-404")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetOtherErrorIsNotNotFound(t *testing.T) {
	f := &fakeIssues{
		getErr:  errors.New("503"),
		getResp: &jira.Response{Response: &http.Response{StatusCode: http.StatusServiceUnavailable}},
	}
	c := testClient(f)

	_, err := c.Get(context.Background(), "PROJ-1")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestGetMapsFields(t *testing.T) {
	issue := makeIssue("PROJ-2", "Bug", "In Progress", "fix the thing", "dave")
	issue.Fields.Description = "details"
	f := &fakeIssues{getIssue: &issue}
	c := testClient(f)

	got, err := c.Get(context.Background(), "PROJ-2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Key != "PROJ-2" || got.Type != "Bug" || got.Status != "In Progress" ||
		got.Summary != "fix the thing" || got.Description != "details" || got.Assignee != "dave" {
		t.Fatalf("unexpected ticket: %+v", got)
	}
}
