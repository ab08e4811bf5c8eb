// Package session holds the in-process credential store and binds signed
// session cookies to it.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Hexploration-Inc/orai/internal/types"
)

// Entry is what the store keeps per session id.
type Entry struct {
	OwnerID     string
	Email       string
	Credentials types.Credentials
	ExpiresAt   time.Time
}

// Store maps opaque session ids to credentials. It is not durable: a
// restart drops every session.
type Store struct {
	mu      sync.RWMutex
	entries map[string]Entry
	ttl     time.Duration
	now     func() time.Time
}

// NewStore creates a store whose entries expire ttl after their last Put.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		entries: make(map[string]Entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// NewSessionID returns a fresh opaque session id.
func NewSessionID() string {
	return uuid.NewString()
}

// TTL returns the lifetime applied to new entries.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Put stores e under id, replacing any previous entry.
func (s *Store) Put(id string, e Entry) {
	e.ExpiresAt = s.now().Add(s.ttl)
	s.mu.Lock()
	s.entries[id] = e
	s.mu.Unlock()
}

// Get returns the entry for id. Expired entries are reported as absent.
func (s *Store) Get(id string) (Entry, bool) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok || !s.now().Before(e.ExpiresAt) {
		return Entry{}, false
	}
	return e, true
}

// Delete removes id. Unknown ids are ignored.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
}

// Len returns the number of stored entries, expired or not.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Sweep drops expired entries and returns how many were removed.
func (s *Store) Sweep() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, e := range s.entries {
		if !now.Before(e.ExpiresAt) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}
