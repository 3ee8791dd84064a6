package store

import "github.com/zulandar/semaphore/internal/models"

// TicketFields holds the freshly observed values of the tracked fields.
type TicketFields struct {
	Status      string
	Summary     string
	Description string
	Assignee    string
	LastUpdated string
}

// FieldChange records one tracked field moving from Old to New.
type FieldChange struct {
	Field string
	Old   string
	New   string
}

// Diff compares a stored snapshot against freshly observed fields and
// returns one change per tracked field that differs. Comparison is exact:
// case and whitespace differences count. A nil old snapshot means this is
// the first observation, which seeds the baseline and reports nothing.
func Diff(old *models.TicketSnapshot, observed TicketFields) []FieldChange {
	if old == nil {
		return nil
	}
	var changes []FieldChange
	if old.Status != observed.Status {
		changes = append(changes, FieldChange{Field: "status", Old: old.Status, New: observed.Status})
	}
	if old.Summary != observed.Summary {
		changes = append(changes, FieldChange{Field: "summary", Old: old.Summary, New: observed.Summary})
	}
	if old.Description != observed.Description {
		changes = append(changes, FieldChange{Field: "description", Old: old.Description, New: observed.Description})
	}
	if old.Assignee != observed.Assignee {
		changes = append(changes, FieldChange{Field: "assignee", Old: old.Assignee, New: observed.Assignee})
	}
	return changes
}

// Snapshot converts observed fields into a persistable snapshot row.
func (f TicketFields) Snapshot(ticketID string) models.TicketSnapshot {
	return models.TicketSnapshot{
		TicketID:    ticketID,
		Status:      f.Status,
		Summary:     f.Summary,
		Description: f.Description,
		Assignee:    f.Assignee,
		LastUpdated: f.LastUpdated,
	}
}
