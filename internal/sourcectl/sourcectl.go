// Package sourcectl inspects GitHub for the development state behind a
// ticket: whether a work branch exists and where its pull requests stand.
package sourcectl

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"

	"github.com/zulandar/semaphore/internal/config"
	"github.com/zulandar/semaphore/internal/rules"
)

// branchAPI is the slice of the GitHub repositories service we use.
type branchAPI interface {
	ListBranches(ctx context.Context, owner, repo string, opts *github.BranchListOptions) ([]*github.Branch, *github.Response, error)
}

// pullAPI is the slice of the GitHub pull-requests service we use.
type pullAPI interface {
	List(ctx context.Context, owner, repo string, opts *github.PullRequestListOptions) ([]*github.PullRequest, *github.Response, error)
}

// Client scans a fixed set of repositories under one owner.
type Client struct {
	owner    string
	repos    []string
	branches branchAPI
	pulls    pullAPI
}

// New builds a client authenticated with a personal access token.
func New(ctx context.Context, cfg config.SourceControlConfig) *Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
	gh := github.NewClient(oauth2.NewClient(ctx, ts))
	return &Client{
		owner:    cfg.Owner,
		repos:    cfg.Repos,
		branches: gh.Repositories,
		pulls:    gh.PullRequests,
	}
}

// Inspect scans every configured repository for work tied to a ticket key
// and folds the findings into one development state. Branch and PR
// matching is by ticket key appearing in the branch name,
// case-insensitive. Declined PRs (closed without merge) carry no signal.
// Any open PR outranks merged ones: work is still in flight.
func (c *Client) Inspect(ctx context.Context, ticketKey string) (rules.DevState, error) {
	var state rules.DevState
	key := strings.ToLower(ticketKey)

	for _, repo := range c.repos {
		if err := c.inspectRepo(ctx, repo, key, &state); err != nil {
			return rules.DevState{}, fmt.Errorf("sourcectl: %s/%s: %w", c.owner, repo, err)
		}
		if state.PR == rules.PROpen {
			// Nothing later can change the verdict.
			return state, nil
		}
	}
	return state, nil
}

func (c *Client) inspectRepo(ctx context.Context, repo, key string, state *rules.DevState) error {
	if !state.HasBranch {
		found, err := c.branchExists(ctx, repo, key)
		if err != nil {
			return err
		}
		if found {
			state.HasBranch = true
		}
	}

	opts := &github.PullRequestListOptions{
		State:       "all",
		ListOptions: github.ListOptions{PerPage: 100},
	}
	for {
		prs, resp, err := c.pulls.List(ctx, c.owner, repo, opts)
		if err != nil {
			return fmt.Errorf("list pull requests: %w", err)
		}
		for _, pr := range prs {
			if !matchesKey(pr.GetHead().GetRef(), key) {
				continue
			}
			// A PR implies the branch existed even if since deleted.
			state.HasBranch = true
			switch {
			case pr.GetState() == "open":
				state.PR = rules.PROpen
				return nil
			case pr.MergedAt != nil:
				state.PR = rules.PRMerged
			}
			// Closed without merge: declined, ignored.
		}
		if resp.NextPage == 0 {
			return nil
		}
		opts.Page = resp.NextPage
	}
}

// matchesKey reports whether a branch name references the ticket key.
// The key must not run into further digits, so PROJ-1 does not claim
// branches for PROJ-11.
func matchesKey(name, key string) bool {
	lower := strings.ToLower(name)
	for i := 0; ; {
		j := strings.Index(lower[i:], key)
		if j < 0 {
			return false
		}
		end := i + j + len(key)
		if end >= len(lower) || lower[end] < '0' || lower[end] > '9' {
			return true
		}
		i = end
	}
}

func (c *Client) branchExists(ctx context.Context, repo, key string) (bool, error) {
	opts := &github.BranchListOptions{ListOptions: github.ListOptions{PerPage: 100}}
	for {
		branches, resp, err := c.branches.ListBranches(ctx, c.owner, repo, opts)
		if err != nil {
			return false, fmt.Errorf("list branches: %w", err)
		}
		for _, b := range branches {
			if matchesKey(b.GetName(), key) {
				return true, nil
			}
		}
		if resp.NextPage == 0 {
			return false, nil
		}
		opts.Page = resp.NextPage
	}
}
