package store

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zulandar/semaphore/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.TicketSnapshot{}, &models.WatchRegistration{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return New(db)
}

func TestGetSnapshotNotFound(t *testing.T) {
	s := testStore(t)
	_, err := s.GetSnapshot("PROJ-1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpsertSnapshotCreateThenUpdate(t *testing.T) {
	s := testStore(t)

	first := models.TicketSnapshot{
		TicketID: "PROJ-1",
		Status:   "Open",
		Summary:  "initial",
		Assignee: "carol",
	}
	if err := s.UpsertSnapshot(first); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := s.GetSnapshot("PROJ-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != "Open" || got.Summary != "initial" {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
	firstWrite := got.UpdatedAt

	time.Sleep(10 * time.Millisecond)

	second := first
	second.Status = "In Progress"
	second.Summary = "renamed"
	if err := s.UpsertSnapshot(second); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err = s.GetSnapshot("PROJ-1")
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if got.Status != "In Progress" || got.Summary != "renamed" {
		t.Fatalf("update not applied: %+v", got)
	}
	if !got.UpdatedAt.After(firstWrite) {
		t.Fatalf("UpdatedAt did not advance: %v -> %v", firstWrite, got.UpdatedAt)
	}

	var count int64
	if err := s.db.Model(&models.TicketSnapshot{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 row after upsert, got %d", count)
	}
}

func TestDeleteSnapshotMissingIsNoError(t *testing.T) {
	s := testStore(t)
	if err := s.DeleteSnapshot("PROJ-404"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
}

func TestConcurrentUpsertsSameTicket(t *testing.T) {
	s := testStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			snap := models.TicketSnapshot{
				TicketID: "PROJ-7",
				Status:   "In Progress",
				Summary:  "race",
			}
			if err := s.UpsertSnapshot(snap); err != nil {
				t.Errorf("upsert %d: %v", n, err)
			}
		}(i)
	}
	wg.Wait()

	var count int64
	if err := s.db.Model(&models.TicketSnapshot{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected single row, got %d", count)
	}
}

func TestAddWatcherIdempotent(t *testing.T) {
	s := testStore(t)

	if err := s.AddWatcher("PROJ-1", "u100", "carol"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.AddWatcher("PROJ-1", "u100", "carol"); err != nil {
		t.Fatalf("re-add: %v", err)
	}

	regs, err := s.WatchersForTicket("PROJ-1")
	if err != nil {
		t.Fatalf("watchers: %v", err)
	}
	if len(regs) != 1 {
		t.Fatalf("expected 1 registration, got %d", len(regs))
	}
}

func TestRemoveWatcher(t *testing.T) {
	s := testStore(t)

	if err := s.AddWatcher("PROJ-1", "u100", "carol"); err != nil {
		t.Fatalf("add: %v", err)
	}
	removed, err := s.RemoveWatcher("PROJ-1", "u100")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !removed {
		t.Fatal("expected removal to report true")
	}
	removed, err = s.RemoveWatcher("PROJ-1", "u100")
	if err != nil {
		t.Fatalf("second remove: %v", err)
	}
	if removed {
		t.Fatal("expected second removal to report false")
	}
}

func TestWatchedTicketsQueries(t *testing.T) {
	s := testStore(t)

	mustAdd := func(ticket, sub string) {
		t.Helper()
		if err := s.AddWatcher(ticket, sub, sub); err != nil {
			t.Fatalf("add %s/%s: %v", ticket, sub, err)
		}
	}
	mustAdd("PROJ-1", "u100")
	mustAdd("PROJ-1", "u200")
	mustAdd("PROJ-2", "u100")

	mine, err := s.WatchedTicketsFor("u100")
	if err != nil {
		t.Fatalf("watched for: %v", err)
	}
	if len(mine) != 2 || mine[0] != "PROJ-1" || mine[1] != "PROJ-2" {
		t.Fatalf("unexpected tickets for u100: %v", mine)
	}

	all, err := s.AllWatchedTickets()
	if err != nil {
		t.Fatalf("all watched: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 distinct tickets, got %v", all)
	}
}

func TestRemoveAllWatchers(t *testing.T) {
	s := testStore(t)

	if err := s.AddWatcher("PROJ-9", "u100", "carol"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.AddWatcher("PROJ-9", "u200", "dave"); err != nil {
		t.Fatalf("add: %v", err)
	}

	n, err := s.RemoveAllWatchers("PROJ-9")
	if err != nil {
		t.Fatalf("remove all: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 removed, got %d", n)
	}
	regs, err := s.WatchersForTicket("PROJ-9")
	if err != nil {
		t.Fatalf("watchers: %v", err)
	}
	if len(regs) != 0 {
		t.Fatalf("expected no registrations, got %d", len(regs))
	}
}

func TestCleanupOrphanSnapshots(t *testing.T) {
	s := testStore(t)

	if err := s.UpsertSnapshot(models.TicketSnapshot{TicketID: "PROJ-1", Status: "Open", Summary: "watched"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.UpsertSnapshot(models.TicketSnapshot{TicketID: "PROJ-2", Status: "Open", Summary: "orphan"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.AddWatcher("PROJ-1", "u100", "carol"); err != nil {
		t.Fatalf("add: %v", err)
	}

	n, err := s.CleanupOrphanSnapshots()
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 orphan removed, got %d", n)
	}
	if _, err := s.GetSnapshot("PROJ-1"); err != nil {
		t.Fatalf("watched snapshot should survive: %v", err)
	}
	if _, err := s.GetSnapshot("PROJ-2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("orphan should be gone, got %v", err)
	}
}

func TestStats(t *testing.T) {
	s := testStore(t)

	if err := s.AddWatcher("PROJ-1", "u100", "carol"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.AddWatcher("PROJ-1", "u200", "dave"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.AddWatcher("PROJ-2", "u100", "carol"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.UpsertSnapshot(models.TicketSnapshot{TicketID: "PROJ-1", Status: "Open", Summary: "x"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	st, err := s.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	want := Stats{Registrations: 3, Subscribers: 2, WatchedTickets: 2, Snapshots: 1}
	if st != want {
		t.Fatalf("stats mismatch: got %+v want %+v", st, want)
	}
}
