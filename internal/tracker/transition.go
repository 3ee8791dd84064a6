package tracker

import (
	"context"
	"fmt"
	"strings"
)

// workflowStep is one edge of a Jira workflow: applying Transition while
// in From lands in To.
type workflowStep struct {
	From       string
	Transition string
	To         string
}

// The workflows mirror the Jira project configuration. Status moves that
// skip steps are not allowed by Jira, so a target further along requires
// walking every intermediate transition.
var (
	bugWorkflow = []workflowStep{
		{From: "Open", Transition: "Move to Back Log", To: "Backlog"},
		{From: "Backlog", Transition: "Start Development", To: "In Progress"},
		{From: "In Progress", Transition: "Move for code review", To: "In Review"},
		{From: "In Review", Transition: "Code review submission", To: "Dev Testing"},
		{From: "Dev Testing", Transition: "Moved for QA", To: "Resolved"},
	}

	storyWorkflow = []workflowStep{
		{From: "Handshake Done", Transition: "Start progress", To: "In Progress"},
		{From: "In Progress", Transition: "Developer level testing", To: "Dev Testing"},
		{From: "Dev Testing", Transition: "Resolve Issue", To: "Resolved"},
	}

	taskWorkflow = []workflowStep{
		{From: "Open", Transition: "Select for Development", To: "Handshake Done"},
		{From: "Handshake Done", Transition: "Start Progress", To: "In Progress"},
		{From: "In Progress", Transition: "Move for code review", To: "In Review"},
		{From: "In Review", Transition: "Developer Testing", To: "Dev Testing"},
		{From: "Dev Testing", Transition: "Move to Done", To: "Done"},
	}
)

// workflowFor picks the workflow matching a ticket's issue type.
func workflowFor(issueType string) []workflowStep {
	switch strings.ToLower(issueType) {
	case "bug", "implementation bug":
		return bugWorkflow
	case "story":
		return storyWorkflow
	default:
		return taskWorkflow
	}
}

// findTransitionPath walks the workflow from current toward target and
// returns the steps to apply in order. An empty path with ok=true means
// the ticket is already at the target. ok=false means the workflow never
// reaches the target from here.
func findTransitionPath(current, target string, workflow []workflowStep) ([]workflowStep, bool) {
	if strings.EqualFold(current, target) {
		return nil, true
	}

	var path []workflowStep
	at := current
	for range workflow {
		var next *workflowStep
		for i := range workflow {
			if strings.EqualFold(workflow[i].From, at) {
				next = &workflow[i]
				break
			}
		}
		if next == nil {
			return nil, false
		}
		path = append(path, *next)
		at = next.To
		if strings.EqualFold(at, target) {
			return path, true
		}
	}
	return nil, false
}

// Transition moves a ticket to the target status, applying every
// intermediate workflow transition. Each step re-reads the available
// transitions because Jira only exposes the edges leaving the current
// status.
func (c *Client) Transition(ctx context.Context, t *Ticket, target string) error {
	path, ok := findTransitionPath(t.Status, target, workflowFor(t.Type))
	if !ok {
		return fmt.Errorf("tracker: no workflow path from %q to %q for %s", t.Status, target, t.Key)
	}
	if len(path) == 0 {
		return nil
	}

	for _, step := range path {
		transitions, _, err := c.issues.GetTransitionsWithContext(ctx, t.Key)
		if err != nil {
			return fmt.Errorf("tracker: list transitions for %s: %w", t.Key, err)
		}
		id := ""
		for _, tr := range transitions {
			if strings.EqualFold(tr.Name, step.Transition) {
				id = tr.ID
				break
			}
		}
		if id == "" {
			return fmt.Errorf("tracker: transition %q not available on %s (at %q)", step.Transition, t.Key, step.From)
		}
		if _, err := c.issues.DoTransitionWithContext(ctx, t.Key, id); err != nil {
			return fmt.Errorf("tracker: apply %q on %s: %w", step.Transition, t.Key, err)
		}
	}
	t.Status = target
	return nil
}
