// Package syncer runs the synchronization passes: status sync against
// the rule engine, watched-ticket polling, and due-date checks.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/zulandar/semaphore/internal/config"
	"github.com/zulandar/semaphore/internal/notify"
	"github.com/zulandar/semaphore/internal/rules"
	"github.com/zulandar/semaphore/internal/store"
	"github.com/zulandar/semaphore/internal/tracker"
)

// Tracker is the slice of the tracker client the syncer depends on.
type Tracker interface {
	OpenAssigned(ctx context.Context) ([]tracker.Ticket, error)
	Get(ctx context.Context, key string) (*tracker.Ticket, error)
	DueSoon(ctx context.Context, trackerID string, today time.Time) ([]tracker.Ticket, error)
	Transition(ctx context.Context, t *tracker.Ticket, target string) error
	BrowseURL(key string) string
}

// DevStates resolves the source-control state behind a ticket.
type DevStates interface {
	Inspect(ctx context.Context, ticketKey string) (rules.DevState, error)
}

// Notifier is the slice of the notification router the syncer uses.
type Notifier interface {
	BeginCycle()
	Dispatch(ctx context.Context, ev notify.Event) error
}

// Syncer wires the tracker, source control, store, and notifier into the
// scheduled passes.
type Syncer struct {
	store   *store.Store
	tracker Tracker
	dev     DevStates
	router  Notifier
	users   []config.UserConfig
	loc     *time.Location
	now     func() time.Time
}

// Opts holds the collaborators for a Syncer.
type Opts struct {
	Store   *store.Store
	Tracker Tracker
	Dev     DevStates
	Router  Notifier
	Users   []config.UserConfig
	Loc     *time.Location
}

// New creates a Syncer.
func New(opts Opts) (*Syncer, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("syncer: store is required")
	}
	if opts.Tracker == nil {
		return nil, fmt.Errorf("syncer: tracker is required")
	}
	if opts.Router == nil {
		return nil, fmt.Errorf("syncer: router is required")
	}
	loc := opts.Loc
	if loc == nil {
		loc = time.Local
	}
	return &Syncer{
		store:   opts.Store,
		tracker: opts.Tracker,
		dev:     opts.Dev,
		router:  opts.Router,
		users:   opts.Users,
		loc:     loc,
		now:     time.Now,
	}, nil
}

// StatusSync walks the acting user's open tickets, decides the status
// each should be in from its development state, and applies workflow
// transitions. A failing ticket is skipped; the rest of the batch still
// runs. One summary notification goes out when anything moved.
func (s *Syncer) StatusSync(ctx context.Context) error {
	if s.dev == nil {
		return fmt.Errorf("syncer: source control is not configured")
	}
	s.router.BeginCycle()

	tickets, err := s.tracker.OpenAssigned(ctx)
	if err != nil {
		return fmt.Errorf("syncer: status sync: %w", err)
	}

	var transitions []notify.Transition
	var failed int
	for i := range tickets {
		t := &tickets[i]
		current := rules.Status(t.Status)
		if rules.IsTerminal(current) {
			continue
		}

		dev, err := s.dev.Inspect(ctx, t.Key)
		if err != nil {
			log.Printf("syncer: inspect %s: %v", t.Key, err)
			failed++
			continue
		}

		target := rules.Decide(current, dev)
		if target == current {
			continue
		}

		if err := s.tracker.Transition(ctx, t, string(target)); err != nil {
			log.Printf("syncer: transition %s: %v", t.Key, err)
			failed++
			continue
		}
		transitions = append(transitions, notify.Transition{
			TicketID: t.Key,
			From:     string(current),
			To:       string(target),
		})
	}

	if len(transitions) > 0 {
		ev := notify.Event{
			Kind:        notify.KindStatusChange,
			SubjectID:   "status-sync",
			Transitions: transitions,
		}
		if err := s.router.Dispatch(ctx, ev); err != nil {
			log.Printf("syncer: dispatch status change: %v", err)
		}
	}

	if failed > 0 {
		return fmt.Errorf("syncer: status sync: %d ticket(s) failed", failed)
	}
	return nil
}

// WatchPoll re-reads every watched ticket, diffs it against its stored
// snapshot, and notifies the watchers of any tracked-field change. A
// changed observation becomes the new baseline; an unchanged one is not
// rewritten. A ticket the tracker no longer knows is pruned along with
// its registrations.
func (s *Syncer) WatchPoll(ctx context.Context) error {
	s.router.BeginCycle()

	ids, err := s.store.AllWatchedTickets()
	if err != nil {
		return fmt.Errorf("syncer: watch poll: %w", err)
	}

	var failed int
	for _, id := range ids {
		if err := s.pollTicket(ctx, id); err != nil {
			log.Printf("syncer: poll %s: %v", id, err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("syncer: watch poll: %d ticket(s) failed", failed)
	}
	return nil
}

func (s *Syncer) pollTicket(ctx context.Context, id string) error {
	t, err := s.tracker.Get(ctx, id)
	if errors.Is(err, tracker.ErrNotFound) {
		return s.pruneVanished(ctx, id)
	}
	if err != nil {
		return err
	}

	old, err := s.store.GetSnapshot(id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	fields := store.TicketFields{
		Status:      t.Status,
		Summary:     t.Summary,
		Description: t.Description,
		Assignee:    t.Assignee,
		LastUpdated: t.Updated,
	}

	changes := store.Diff(old, fields)
	if len(changes) > 0 {
		watchers, err := s.store.WatchersForTicket(id)
		if err != nil {
			return err
		}
		recipients := make([]string, 0, len(watchers))
		for _, w := range watchers {
			recipients = append(recipients, w.SubscriberID)
		}

		evChanges := make([]notify.Change, 0, len(changes))
		for _, ch := range changes {
			evChanges = append(evChanges, notify.Change{Field: ch.Field, Old: ch.Old, New: ch.New})
		}

		ev := notify.Event{
			Kind:       notify.KindWatchedChange,
			SubjectID:  id,
			TicketID:   id,
			URL:        s.tracker.BrowseURL(id),
			Changes:    evChanges,
			Recipients: recipients,
		}
		if err := s.router.Dispatch(ctx, ev); err != nil {
			log.Printf("syncer: dispatch watched change for %s: %v", id, err)
		}
	}

	// An unchanged ticket keeps its stored baseline untouched, so
	// UpdatedAt reflects the last real change rather than the last poll.
	if old == nil || len(changes) > 0 {
		return s.store.UpsertSnapshot(fields.Snapshot(id))
	}
	return nil
}

// pruneVanished drops a ticket the tracker no longer reports.
func (s *Syncer) pruneVanished(ctx context.Context, id string) error {
	n, err := s.store.RemoveAllWatchers(id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteSnapshot(id); err != nil {
		return err
	}
	ev := notify.Event{
		Kind:      notify.KindSystemLog,
		SubjectID: "watch-poll",
		Message:   fmt.Sprintf("Ticket %s no longer exists; removed %d watcher(s)", id, n),
		Severity:  "warning",
	}
	if err := s.router.Dispatch(ctx, ev); err != nil {
		log.Printf("syncer: dispatch prune notice for %s: %v", id, err)
	}
	return nil
}

// DueDateCheck queries each configured user's tickets due today or
// tomorrow and sends one alert per user who has any. A failing user is
// skipped; the rest still get their alerts.
func (s *Syncer) DueDateCheck(ctx context.Context) error {
	today := s.now().In(s.loc)
	todayStr := today.Format("2006-01-02")

	var failed int
	for _, u := range s.users {
		tickets, err := s.tracker.DueSoon(ctx, u.TrackerID, today)
		if err != nil {
			log.Printf("syncer: due check for %s: %v", u.Name, err)
			failed++
			continue
		}

		var dueToday, dueTomorrow []string
		for _, t := range tickets {
			if t.DueDate == todayStr {
				dueToday = append(dueToday, t.Key)
			} else {
				dueTomorrow = append(dueTomorrow, t.Key)
			}
		}
		if len(dueToday) == 0 && len(dueTomorrow) == 0 {
			continue
		}

		ev := notify.Event{
			Kind:        notify.KindDueDateAlert,
			SubjectID:   u.ChatID,
			DueToday:    dueToday,
			DueTomorrow: dueTomorrow,
			Recipients:  []string{u.ChatID},
		}
		if err := s.router.Dispatch(ctx, ev); err != nil {
			log.Printf("syncer: dispatch due alert for %s: %v", u.Name, err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("syncer: due check: %d user(s) failed", failed)
	}
	return nil
}

// Watch validates a ticket against the tracker, seeds its snapshot, and
// registers the subscriber. The seed observation never produces a
// notification; the poll diffs against it from next cycle on.
func (s *Syncer) Watch(ctx context.Context, ticketID, subscriberID, subscriberName string) error {
	t, err := s.tracker.Get(ctx, ticketID)
	if err != nil {
		return fmt.Errorf("syncer: watch %s: %w", ticketID, err)
	}
	fields := store.TicketFields{
		Status:      t.Status,
		Summary:     t.Summary,
		Description: t.Description,
		Assignee:    t.Assignee,
		LastUpdated: t.Updated,
	}
	if err := s.store.UpsertSnapshot(fields.Snapshot(ticketID)); err != nil {
		return err
	}
	return s.store.AddWatcher(ticketID, subscriberID, subscriberName)
}

// Unwatch removes one subscriber's registration and sweeps snapshots
// nobody watches anymore. Returns false when no registration existed.
func (s *Syncer) Unwatch(ticketID, subscriberID string) (bool, error) {
	removed, err := s.store.RemoveWatcher(ticketID, subscriberID)
	if err != nil {
		return false, err
	}
	if removed {
		if _, err := s.store.CleanupOrphanSnapshots(); err != nil {
			return true, err
		}
	}
	return removed, nil
}
