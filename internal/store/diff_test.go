package store

import (
	"reflect"
	"testing"

	"github.com/zulandar/semaphore/internal/models"
)

func TestDiffFirstObservationReportsNothing(t *testing.T) {
	changes := Diff(nil, TicketFields{Status: "Open", Summary: "new ticket"})
	if changes != nil {
		t.Fatalf("first observation should report nothing, got %v", changes)
	}
}

func TestDiffNoChanges(t *testing.T) {
	old := &models.TicketSnapshot{
		TicketID:    "PROJ-1",
		Status:      "In Progress",
		Summary:     "do the thing",
		Description: "details",
		Assignee:    "carol",
	}
	observed := TicketFields{
		Status:      "In Progress",
		Summary:     "do the thing",
		Description: "details",
		Assignee:    "carol",
	}
	if changes := Diff(old, observed); len(changes) != 0 {
		t.Fatalf("expected no changes, got %v", changes)
	}
}

func TestDiffReportsEachChangedField(t *testing.T) {
	old := &models.TicketSnapshot{
		TicketID:    "PROJ-1",
		Status:      "Open",
		Summary:     "old title",
		Description: "old body",
		Assignee:    "carol",
	}
	observed := TicketFields{
		Status:      "In Review",
		Summary:     "new title",
		Description: "old body",
		Assignee:    "dave",
	}
	changes := Diff(old, observed)
	want := []FieldChange{
		{Field: "status", Old: "Open", New: "In Review"},
		{Field: "summary", Old: "old title", New: "new title"},
		{Field: "assignee", Old: "carol", New: "dave"},
	}
	if !reflect.DeepEqual(changes, want) {
		t.Fatalf("diff mismatch:\ngot  %v\nwant %v", changes, want)
	}
}

func TestDiffIsExact(t *testing.T) {
	old := &models.TicketSnapshot{TicketID: "PROJ-1", Status: "Open", Summary: "Fix login"}
	cases := []struct {
		name     string
		observed TicketFields
		changed  int
	}{
		{"case difference counts", TicketFields{Status: "open", Summary: "Fix login"}, 1},
		{"trailing space counts", TicketFields{Status: "Open", Summary: "Fix login "}, 1},
		{"identical reports nothing", TicketFields{Status: "Open", Summary: "Fix login"}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := len(Diff(old, tc.observed)); got != tc.changed {
				t.Fatalf("expected %d changes, got %d", tc.changed, got)
			}
		})
	}
}

func TestDiffIgnoresLastUpdated(t *testing.T) {
	old := &models.TicketSnapshot{TicketID: "PROJ-1", Status: "Open", LastUpdated: "2026-01-01T00:00:00Z"}
	observed := TicketFields{Status: "Open", LastUpdated: "2026-02-02T00:00:00Z"}
	if changes := Diff(old, observed); len(changes) != 0 {
		t.Fatalf("last-updated drift alone should report nothing, got %v", changes)
	}
}

func TestSnapshotFromFields(t *testing.T) {
	f := TicketFields{Status: "Open", Summary: "s", Description: "d", Assignee: "a", LastUpdated: "yesterday"}
	snap := f.Snapshot("PROJ-3")
	if snap.TicketID != "PROJ-3" || snap.Status != "Open" || snap.Assignee != "a" || snap.LastUpdated != "yesterday" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}
