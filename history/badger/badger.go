package badger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/ahmed-com/poller/history"
)

// Store implements history.Store on BadgerDB.
//
// Keys are hierarchical, poller/<pollerID>/event/<unix nanos>/<eventID>, with
// the timestamp zero-padded so lexical order is chronological order.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) a store in path. An empty path keeps everything in memory.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil // Disable default logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	return &Store{db: db}, nil
}

func pollerPrefix(pollerID string) []byte {
	return []byte(fmt.Sprintf("poller/%s/event/", pollerID))
}

func eventKey(e *history.Event) []byte {
	return []byte(fmt.Sprintf("poller/%s/event/%020d/%s", e.PollerID, e.At.UnixNano(), e.ID))
}

func (s *Store) Append(ctx context.Context, event *history.Event) error {
	if event.PollerID == "" || event.ID == "" {
		return fmt.Errorf("event needs poller id and id")
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(eventKey(event), data)
	})
}

// List walks the poller's key range backwards so the newest events come first
func (s *Store) List(ctx context.Context, pollerID string, limit int) ([]*history.Event, error) {
	var events []*history.Event
	prefix := pollerPrefix(pollerID)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(bytes.Clone(prefix), 0xFF)
		for it.Seek(seek); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := it.Item().Value(func(val []byte) error {
				var e history.Event
				if err := json.Unmarshal(val, &e); err != nil {
					return err
				}
				events = append(events, &e)
				return nil
			})
			if err != nil {
				return err
			}
			if limit > 0 && len(events) >= limit {
				return nil
			}
		}
		return nil
	})

	return events, err
}

// Prune collects expired keys in a read transaction, then deletes them in a
// write batch so large histories do not overflow a single transaction.
func (s *Store) Prune(ctx context.Context, before time.Time) (int, error) {
	var expired [][]byte

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("poller/")
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			key := it.Item().KeyCopy(nil)
			at, ok := keyTime(key)
			if !ok {
				continue
			}
			if at.Before(before) {
				expired = append(expired, key)
			}
		}
		return nil
	})
	if err != nil || len(expired) == 0 {
		return 0, err
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range expired {
		if err := wb.Delete(key); err != nil {
			return 0, fmt.Errorf("failed to delete event: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("failed to flush deletes: %w", err)
	}
	return len(expired), nil
}

// keyTime extracts the timestamp segment of an event key
func keyTime(key []byte) (time.Time, bool) {
	parts := bytes.Split(key, []byte("/"))
	if len(parts) != 5 || string(parts[2]) != "event" {
		return time.Time{}, false
	}
	var nanos int64
	if _, err := fmt.Sscanf(string(parts[3]), "%d", &nanos); err != nil {
		return time.Time{}, false
	}
	return time.Unix(0, nanos), true
}

func (s *Store) Close() error {
	return s.db.Close()
}
