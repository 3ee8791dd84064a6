package notify

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/zulandar/semaphore/internal/config"
)

// Router delivers events at most once per dedup horizon. Change events
// (status changes, watched-ticket changes) dedup within one poll cycle;
// due-date alerts dedup per calendar day per recipient. An event is
// marked delivered before the send attempt, so a failed send is logged
// and never retried.
type Router struct {
	channels config.ChannelsConfig
	direct   bool
	sender   Sender
	loc      *time.Location
	now      func() time.Time

	mu      sync.Mutex
	cycle   map[string]struct{} // cleared by BeginCycle
	daily   map[string]string   // dedup key -> date last delivered
	dropped int64
}

// NewRouter creates a Router delivering through sender. Daily dedup
// boundaries follow loc.
func NewRouter(cfg config.NotifyConfig, sender Sender, loc *time.Location) *Router {
	if loc == nil {
		loc = time.Local
	}
	return &Router{
		channels: cfg.Channels,
		direct:   cfg.DirectMessages,
		sender:   sender,
		loc:      loc,
		now:      time.Now,
		cycle:    make(map[string]struct{}),
		daily:    make(map[string]string),
	}
}

// BeginCycle opens a new dedup horizon for change events. Call it at the
// start of every poll cycle.
func (r *Router) BeginCycle() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cycle = make(map[string]struct{})
}

// Dropped returns how many events dedup has suppressed since start.
func (r *Router) Dropped() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// channelFor maps an event kind to its configured channel.
func (r *Router) channelFor(kind Kind) string {
	switch kind {
	case KindStatusChange:
		return r.channels.StatusChange
	case KindWatchedChange:
		return r.channels.Watched
	case KindDueDateAlert:
		return r.channels.DueDate
	case KindSystemLog:
		return r.channels.SystemLog
	default:
		return ""
	}
}

// dedupKey identifies an event within its horizon. Change payloads are
// part of the key, so two batches under the same subject only collide
// when they report the same moves.
func dedupKey(ev Event) string {
	parts := []string{string(ev.Kind), ev.SubjectID}
	for _, tr := range ev.Transitions {
		parts = append(parts, tr.TicketID, tr.To)
	}
	for _, ch := range ev.Changes {
		parts = append(parts, ch.Field, ch.Old, ch.New)
	}
	return strings.Join(parts, "|")
}

// admit reserves delivery for an event. Returns false when the event
// already fired within its horizon.
func (r *Router) admit(ev Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := dedupKey(ev)
	if ev.Kind == KindDueDateAlert {
		today := dateKey(r.now().In(r.loc))
		if r.daily[key] == today {
			r.dropped++
			return false
		}
		r.daily[key] = today
		return true
	}

	if _, dup := r.cycle[key]; dup {
		r.dropped++
		return false
	}
	r.cycle[key] = struct{}{}
	return true
}

// Dispatch formats and delivers one event: to the kind's channel, and,
// when direct messages are enabled, to each recipient. Send failures are
// logged; they never fail the cycle and are not retried.
func (r *Router) Dispatch(ctx context.Context, ev Event) error {
	if ev.Kind == "" {
		return fmt.Errorf("notify: event has no kind")
	}
	if !r.admit(ev) {
		return nil
	}

	msg := Format(ev)

	if channel := r.channelFor(ev.Kind); channel != "" {
		if err := r.sender.Send(ctx, channel, msg); err != nil {
			log.Printf("notify: send %s to channel %s: %v", ev.Kind, channel, err)
		}
	}

	if r.direct {
		for _, userID := range ev.Recipients {
			if err := r.sender.SendDirect(ctx, userID, msg); err != nil {
				log.Printf("notify: direct %s to %s: %v", ev.Kind, userID, err)
			}
		}
	}
	return nil
}
