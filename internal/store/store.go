// Package store persists ticket snapshots and watch registrations.
package store

import (
	"errors"
	"fmt"
	"sync"

	"github.com/zulandar/semaphore/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when no snapshot exists for a ticket.
var ErrNotFound = errors.New("store: snapshot not found")

// Store wraps the persistence backend. Writes to the same ticket ID are
// serialized; writes to distinct tickets are independent.
type Store struct {
	db *gorm.DB

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a Store over an opened gorm connection.
func New(db *gorm.DB) *Store {
	return &Store{
		db:    db,
		locks: make(map[string]*sync.Mutex),
	}
}

// keyLock returns the mutex serializing writes for one ticket ID.
func (s *Store) keyLock(ticketID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[ticketID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[ticketID] = l
	}
	return l
}

// GetSnapshot returns the stored snapshot for a ticket, or ErrNotFound.
func (s *Store) GetSnapshot(ticketID string) (*models.TicketSnapshot, error) {
	var snap models.TicketSnapshot
	err := s.db.First(&snap, "ticket_id = ?", ticketID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get snapshot %s: %w", ticketID, err)
	}
	return &snap, nil
}

// UpsertSnapshot atomically creates or replaces the snapshot for a ticket.
// UpdatedAt is bumped on every write.
func (s *Store) UpsertSnapshot(snap models.TicketSnapshot) error {
	l := s.keyLock(snap.TicketID)
	l.Lock()
	defer l.Unlock()

	result := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "ticket_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "summary", "description", "assignee", "last_updated", "updated_at",
		}),
	}).Create(&snap)
	if result.Error != nil {
		return fmt.Errorf("store: upsert snapshot %s: %w", snap.TicketID, result.Error)
	}
	return nil
}

// DeleteSnapshot removes the snapshot for a ticket. Deleting a missing
// snapshot is not an error.
func (s *Store) DeleteSnapshot(ticketID string) error {
	l := s.keyLock(ticketID)
	l.Lock()
	defer l.Unlock()

	if err := s.db.Delete(&models.TicketSnapshot{}, "ticket_id = ?", ticketID).Error; err != nil {
		return fmt.Errorf("store: delete snapshot %s: %w", ticketID, err)
	}
	return nil
}

// CleanupOrphanSnapshots removes snapshots for tickets with no remaining
// watch registrations. Returns the number removed.
func (s *Store) CleanupOrphanSnapshots() (int64, error) {
	result := s.db.Where(
		"ticket_id NOT IN (?)",
		s.db.Model(&models.WatchRegistration{}).Distinct("ticket_id"),
	).Delete(&models.TicketSnapshot{})
	if result.Error != nil {
		return 0, fmt.Errorf("store: cleanup orphan snapshots: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// AddWatcher registers a subscriber for a ticket. Re-watching an already
// watched ticket is a no-op, not a duplicate row.
func (s *Store) AddWatcher(ticketID, subscriberID, subscriberName string) error {
	reg := models.WatchRegistration{
		TicketID:       ticketID,
		SubscriberID:   subscriberID,
		SubscriberName: subscriberName,
	}
	result := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&reg)
	if result.Error != nil {
		return fmt.Errorf("store: add watcher %s/%s: %w", ticketID, subscriberID, result.Error)
	}
	return nil
}

// RemoveWatcher removes one subscriber's registration for a ticket.
// Returns false when no such registration existed.
func (s *Store) RemoveWatcher(ticketID, subscriberID string) (bool, error) {
	result := s.db.Delete(&models.WatchRegistration{},
		"ticket_id = ? AND subscriber_id = ?", ticketID, subscriberID)
	if result.Error != nil {
		return false, fmt.Errorf("store: remove watcher %s/%s: %w", ticketID, subscriberID, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// RemoveAllWatchers drops every registration for a ticket (used when the
// tracker reports the ticket gone). Returns the number removed.
func (s *Store) RemoveAllWatchers(ticketID string) (int64, error) {
	result := s.db.Delete(&models.WatchRegistration{}, "ticket_id = ?", ticketID)
	if result.Error != nil {
		return 0, fmt.Errorf("store: remove watchers for %s: %w", ticketID, result.Error)
	}
	return result.RowsAffected, nil
}

// WatchersForTicket returns all registrations for one ticket.
func (s *Store) WatchersForTicket(ticketID string) ([]models.WatchRegistration, error) {
	var regs []models.WatchRegistration
	if err := s.db.Where("ticket_id = ?", ticketID).Find(&regs).Error; err != nil {
		return nil, fmt.Errorf("store: watchers for %s: %w", ticketID, err)
	}
	return regs, nil
}

// WatchedTicketsFor returns the ticket IDs one subscriber watches.
func (s *Store) WatchedTicketsFor(subscriberID string) ([]string, error) {
	var ids []string
	if err := s.db.Model(&models.WatchRegistration{}).
		Where("subscriber_id = ?", subscriberID).
		Order("ticket_id").
		Pluck("ticket_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("store: watched tickets for %s: %w", subscriberID, err)
	}
	return ids, nil
}

// AllWatchedTickets returns every distinct ticket ID with at least one
// active registration.
func (s *Store) AllWatchedTickets() ([]string, error) {
	var ids []string
	if err := s.db.Model(&models.WatchRegistration{}).
		Distinct("ticket_id").
		Order("ticket_id").
		Pluck("ticket_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("store: all watched tickets: %w", err)
	}
	return ids, nil
}

// Stats summarizes the persisted state.
type Stats struct {
	Registrations  int64 `json:"registrations"`
	Subscribers    int64 `json:"subscribers"`
	WatchedTickets int64 `json:"watched_tickets"`
	Snapshots      int64 `json:"snapshots"`
}

// Stats returns counts of registrations, distinct subscribers, distinct
// watched tickets, and snapshots.
func (s *Store) Stats() (Stats, error) {
	var st Stats
	if err := s.db.Model(&models.WatchRegistration{}).Count(&st.Registrations).Error; err != nil {
		return st, fmt.Errorf("store: stats: %w", err)
	}
	if err := s.db.Model(&models.WatchRegistration{}).
		Distinct("subscriber_id").Count(&st.Subscribers).Error; err != nil {
		return st, fmt.Errorf("store: stats: %w", err)
	}
	if err := s.db.Model(&models.WatchRegistration{}).
		Distinct("ticket_id").Count(&st.WatchedTickets).Error; err != nil {
		return st, fmt.Errorf("store: stats: %w", err)
	}
	if err := s.db.Model(&models.TicketSnapshot{}).Count(&st.Snapshots).Error; err != nil {
		return st, fmt.Errorf("store: stats: %w", err)
	}
	return st, nil
}
