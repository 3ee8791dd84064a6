// Package rules maps observed development state to target ticket statuses.
package rules

// Status is a tracker workflow status name.
type Status string

// Workflow statuses the engine targets.
const (
	StatusOpen       Status = "Open"
	StatusBacklog    Status = "Backlog"
	StatusInProgress Status = "In Progress"
	StatusInReview   Status = "In Review"
	StatusDevTesting Status = "Dev Testing"
)

// Terminal statuses. Tickets in these are never targets of automated
// transition and are excluded from every query that feeds Decide.
const (
	StatusClosed   Status = "Closed"
	StatusDone     Status = "Done"
	StatusRejected Status = "Rejected"
	StatusResolved Status = "Resolved"
	StatusDeployed Status = "Deployed to Production"
)

// TerminalStatuses is the fixed set of statuses excluded from automation.
var TerminalStatuses = []Status{
	StatusClosed,
	StatusDone,
	StatusRejected,
	StatusResolved,
	StatusDeployed,
}

// IsTerminal reports whether s is a terminal status.
func IsTerminal(s Status) bool {
	for _, t := range TerminalStatuses {
		if s == t {
			return true
		}
	}
	return false
}

// PRState is the folded pull-request state for a ticket.
type PRState int

const (
	PRNone PRState = iota
	PROpen
	PRMerged
)

// String returns the lowercase name of the PR state.
func (p PRState) String() string {
	switch p {
	case PROpen:
		return "open"
	case PRMerged:
		return "merged"
	default:
		return "none"
	}
}

// DevState holds the branch and pull-request facts observed for one ticket.
// It is derived fresh each sync cycle, never persisted.
type DevState struct {
	HasBranch bool
	PR        PRState
}

// Decide returns the status a ticket should have given its current status
// and observed development state. First match wins:
//
//  1. no branch            -> current (manual status is never regressed)
//  2. branch + merged PRs  -> Dev Testing
//  3. branch + open PR     -> In Review
//  4. branch, no PR        -> In Progress
//
// Decide is pure and total. It performs no terminal-status check: callers
// must exclude terminal tickets before calling.
func Decide(current Status, dev DevState) Status {
	if !dev.HasBranch {
		return current
	}
	switch dev.PR {
	case PRMerged:
		return StatusDevTesting
	case PROpen:
		return StatusInReview
	default:
		return StatusInProgress
	}
}
