// Package history records poller lifecycle events and task outcomes so a host
// can show what each poller did recently.
package history

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrClosed is returned by a Store after Close
var ErrClosed = errors.New("history store closed")

// Kind classifies an Event
type Kind string

const (
	KindStarted Kind = "started"
	KindSuccess Kind = "success"
	KindFailure Kind = "failure"
	KindStopped Kind = "stopped"
)

// Event is one recorded occurrence in a poller's life
type Event struct {
	ID       string    `json:"id"`
	PollerID string    `json:"poller_id"`
	Poller   string    `json:"poller"`
	Kind     Kind      `json:"kind"`
	Reason   string    `json:"reason,omitempty"` // stop reason for KindStopped
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

// Store persists events
type Store interface {
	Append(ctx context.Context, event *Event) error
	// List returns up to limit events for pollerID, newest first. limit <= 0 means all.
	List(ctx context.Context, pollerID string, limit int) ([]*Event, error)
	// Prune deletes events recorded before cutoff and reports how many went
	Prune(ctx context.Context, before time.Time) (int, error)
	Close() error
}

// MemoryStore keeps events in process memory. It serves tests and hosts that
// run without a data directory.
type MemoryStore struct {
	mu     sync.RWMutex
	events map[string][]*Event
	closed bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[string][]*Event)}
}

func (s *MemoryStore) Append(ctx context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	e := *event
	s.events[e.PollerID] = append(s.events[e.PollerID], &e)
	return nil
}

func (s *MemoryStore) List(ctx context.Context, pollerID string, limit int) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	stored := s.events[pollerID]
	out := make([]*Event, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		e := *stored[i]
		out = append(out, &e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Prune(ctx context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}

	removed := 0
	for pollerID, stored := range s.events {
		kept := stored[:0]
		for _, e := range stored {
			if e.At.Before(before) {
				removed++
				continue
			}
			kept = append(kept, e)
		}
		if len(kept) == 0 {
			delete(s.events, pollerID)
			continue
		}
		s.events[pollerID] = kept
	}
	return removed, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
