// Package scheduler runs sync jobs on fixed intervals or at fixed times
// of day, with an optional fire-once-at-startup modifier.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

const (
	defaultTick = 30 * time.Second

	// fireWindow is how long after a time-of-day trigger the fire is still
	// considered on time. Starting the process later than this skips the
	// slot rather than firing stale.
	fireWindow = time.Minute

	// defaultJobTimeout bounds a single run. A hung external call fails
	// the cycle instead of stalling the loop; the next tick retries.
	defaultJobTimeout = 5 * time.Minute
)

// Job is one unit of scheduled work. Exactly one of Interval or At must
// be set. RunAtStartup fires the job once when the scheduler starts; for
// time-of-day jobs that startup fire counts as the day's run.
type Job struct {
	Name         string
	Interval     time.Duration
	At           []string // HHMM, e.g. "0905"
	RunAtStartup bool
	Timeout      time.Duration // per-run bound; defaultJobTimeout when zero
	Run          func(ctx context.Context) error
}

// Status describes a job's last outcome for inspection.
type Status struct {
	Name     string    `json:"name"`
	LastRun  time.Time `json:"last_run"`
	LastErr  string    `json:"last_err,omitempty"`
	NextFire time.Time `json:"next_fire"`
}

type jobState struct {
	job       Job
	schedules []cron.Schedule // one per At entry
	nextFire  time.Time       // interval jobs only
	firedDate string          // YYYY-MM-DD of last time-of-day or startup fire
	lastRun   time.Time
	lastErr   string
}

// Scheduler drives a set of jobs from a single loop. A slow job delays
// the others; jobs never overlap themselves or each other.
type Scheduler struct {
	loc  *time.Location
	tick time.Duration
	now  func() time.Time

	// OnError is called for every job error or panic. Failures never
	// stop the loop.
	OnError func(job string, err error)

	mu   sync.Mutex
	jobs []*jobState
}

// New creates a scheduler that evaluates time-of-day triggers in loc.
func New(loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		loc:  loc,
		tick: defaultTick,
		now:  time.Now,
	}
}

// Add registers a job. Interval and At are mutually exclusive.
func (s *Scheduler) Add(j Job) error {
	if j.Name == "" {
		return fmt.Errorf("scheduler: job name is required")
	}
	if j.Run == nil {
		return fmt.Errorf("scheduler: job %s has no run function", j.Name)
	}
	if j.Interval > 0 && len(j.At) > 0 {
		return fmt.Errorf("scheduler: job %s sets both interval and times", j.Name)
	}
	if j.Interval <= 0 && len(j.At) == 0 && !j.RunAtStartup {
		return fmt.Errorf("scheduler: job %s has no trigger", j.Name)
	}

	st := &jobState{job: j}
	for _, at := range j.At {
		// Config validation allows a dropped leading zero ("930").
		if len(at) == 3 {
			at = "0" + at
		}
		if len(at) != 4 {
			return fmt.Errorf("scheduler: job %s: bad time %q, want HHMM", j.Name, at)
		}
		expr := fmt.Sprintf("%s %s * * *", trimLeadingZero(at[2:]), trimLeadingZero(at[:2]))
		sched, err := cronParser.Parse(expr)
		if err != nil {
			return fmt.Errorf("scheduler: job %s: bad time %q: %w", j.Name, at, err)
		}
		st.schedules = append(st.schedules, sched)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, st)
	return nil
}

func trimLeadingZero(s string) string {
	if len(s) == 2 && s[0] == '0' {
		return s[1:]
	}
	return s
}

// Run fires startup jobs, then loops until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.runStartup(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		s.RunPending(ctx)
		sleepWithContext(ctx, s.tick)
	}
}

// runStartup fires every RunAtStartup job once and seeds interval timers.
func (s *Scheduler) runStartup(ctx context.Context) {
	now := s.now().In(s.loc)
	for _, st := range s.snapshot() {
		if st.job.Interval > 0 {
			s.locked(func() { st.nextFire = now.Add(st.job.Interval) })
		}
		if !st.job.RunAtStartup {
			continue
		}
		s.fire(ctx, st, now)
		if len(st.schedules) > 0 {
			s.locked(func() { st.firedDate = dateKey(now) })
		}
	}
}

// RunPending evaluates every job's trigger against the current clock and
// fires the due ones. One call is one scheduler pass.
func (s *Scheduler) RunPending(ctx context.Context) {
	now := s.now().In(s.loc)
	for _, st := range s.snapshot() {
		switch {
		case st.job.Interval > 0:
			if st.nextFire.IsZero() {
				s.locked(func() { st.nextFire = now.Add(st.job.Interval) })
				continue
			}
			if now.Before(st.nextFire) {
				continue
			}
			s.fire(ctx, st, now)
			// Missed cycles coalesce into the one fire above.
			s.locked(func() {
				for !st.nextFire.After(now) {
					st.nextFire = st.nextFire.Add(st.job.Interval)
				}
			})
		case len(st.schedules) > 0:
			if st.firedDate == dateKey(now) {
				continue
			}
			if !dueNow(st.schedules, now) {
				continue
			}
			s.fire(ctx, st, now)
			s.locked(func() { st.firedDate = dateKey(now) })
		}
	}
}

// dueNow reports whether any schedule fired within the last fireWindow.
func dueNow(schedules []cron.Schedule, now time.Time) bool {
	for _, sched := range schedules {
		ft := sched.Next(now.Add(-fireWindow))
		if !ft.After(now) {
			return true
		}
	}
	return false
}

// fire runs one job, recovering panics so a bad cycle cannot take the
// scheduler down.
func (s *Scheduler) fire(ctx context.Context, st *jobState, now time.Time) {
	s.locked(func() {
		st.lastRun = now
		st.lastErr = ""
	})

	timeout := st.job.Timeout
	if timeout <= 0 {
		timeout = defaultJobTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return st.job.Run(runCtx)
	}()

	if err != nil {
		s.locked(func() { st.lastErr = err.Error() })
		if s.OnError != nil {
			s.OnError(st.job.Name, err)
		} else {
			log.Printf("scheduler: job %s: %v", st.job.Name, err)
		}
	}
}

// Statuses returns the last outcome of every registered job. Safe to call
// while the scheduler loop is running.
func (s *Scheduler) Statuses() []Status {
	now := s.now().In(s.loc)
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Status
	for _, st := range s.jobs {
		status := Status{Name: st.job.Name, LastRun: st.lastRun, LastErr: st.lastErr}
		if st.job.Interval > 0 {
			status.NextFire = st.nextFire
		} else if len(st.schedules) > 0 {
			next := time.Time{}
			for _, sched := range st.schedules {
				ft := sched.Next(now)
				if next.IsZero() || ft.Before(next) {
					next = ft
				}
			}
			status.NextFire = next
		}
		out = append(out, status)
	}
	return out
}

// locked runs fn holding the state mutex. Trigger bookkeeping on a
// jobState is written through here so Statuses can read it from another
// goroutine; the job itself always runs outside the lock.
func (s *Scheduler) locked(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

func (s *Scheduler) snapshot() []*jobState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*jobState, len(s.jobs))
	copy(out, s.jobs)
	return out
}

func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// sleepWithContext sleeps for duration d, returning early if ctx is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
