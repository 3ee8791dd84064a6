// Package models defines the GORM table structs for Semaphore.
package models

import "time"

// TicketSnapshot is the last-observed state of a tracker ticket, keyed by
// ticket ID. It is the diff baseline for watched-ticket change detection.
type TicketSnapshot struct {
	TicketID    string `gorm:"primaryKey;size:32"`
	Status      string `gorm:"size:64;not null"`
	Summary     string `gorm:"not null"`
	Description string `gorm:"type:text"`
	Assignee    string `gorm:"size:128"`
	// LastUpdated is the tracker's own updated timestamp for the ticket,
	// stored as reported (not interpreted locally).
	LastUpdated string `gorm:"size:64"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// WatchRegistration records one subscriber watching one ticket. The
// (ticket, subscriber) pair is the primary key, so re-watching is a no-op.
type WatchRegistration struct {
	TicketID       string `gorm:"primaryKey;size:32"`
	SubscriberID   string `gorm:"primaryKey;size:64"`
	SubscriberName string `gorm:"size:128"`
	CreatedAt      time.Time
}
