// Package conversation holds the append-only message log of one session.
package conversation

import (
	"time"

	"github.com/google/uuid"

	"github.com/xaenox/kontify-triage/internal/models"
)

// Store is an ordered, append-only list of messages. It is not safe for
// concurrent use; the owning session serializes access.
type Store struct {
	messages []models.Message
	now      func() time.Time
	newID    func() string
}

// New returns an empty store. A nil clock defaults to time.Now in UTC.
func New(now func() time.Time) *Store {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Store{
		now:   now,
		newID: func() string { return uuid.New().String() },
	}
}

// Restore returns a store preloaded with messages, which are copied.
func Restore(messages []models.Message, now func() time.Time) *Store {
	s := New(now)
	s.messages = append([]models.Message(nil), messages...)
	return s
}

// Append creates a message with a fresh id and timestamp. Timestamps never
// go backwards even if the clock does.
func (s *Store) Append(role models.Role, content string) models.Message {
	ts := s.now()
	if n := len(s.messages); n > 0 && ts.Before(s.messages[n-1].Timestamp) {
		ts = s.messages[n-1].Timestamp
	}
	m := models.Message{
		ID:        s.newID(),
		Role:      role,
		Content:   content,
		Timestamp: ts,
	}
	s.messages = append(s.messages, m)
	return m
}

// Messages returns a copy of the log.
func (s *Store) Messages() []models.Message {
	return append([]models.Message(nil), s.messages...)
}

func (s *Store) Len() int { return len(s.messages) }

// Clear drops every message.
func (s *Store) Clear() { s.messages = nil }
