// Package storage provides durable storage for retraining-cycle history.
// It uses BoltDB so the scheduler's log survives process restarts and can be
// range-scanned by cycle start time.
package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const cyclesBucket = "retrain_cycles"

// Store persists retraining cycle summaries.
type Store struct {
	db *bbolt.DB
}

// New opens (or creates) the history database under dataPath.
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, "admitpredict.db")

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(cyclesBucket)); err != nil {
			return fmt.Errorf("create cycles bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database gracefully.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// StoreCycle persists one cycle summary keyed by its start timestamp.
func (s *Store) StoreCycle(startedAt time.Time, summary any) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(cyclesBucket))

		data, err := json.Marshal(summary)
		if err != nil {
			return fmt.Errorf("marshal cycle summary: %w", err)
		}

		key := fmt.Sprintf("%020d", startedAt.UnixNano())
		return b.Put([]byte(key), data)
	})
}

// RecentCycles returns up to limit raw cycle summaries, newest first.
// Callers unmarshal into their own summary type.
func (s *Store) RecentCycles(limit int) ([]json.RawMessage, error) {
	var cycles []json.RawMessage

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(cyclesBucket)).Cursor()
		for k, v := c.Last(); k != nil && len(cycles) < limit; k, v = c.Prev() {
			data := make([]byte, len(v))
			copy(data, v)
			cycles = append(cycles, data)
		}
		return nil
	})

	return cycles, err
}

// CyclesSince returns summaries started at or after the given time, oldest
// first.
func (s *Store) CyclesSince(start time.Time) ([]json.RawMessage, error) {
	var cycles []json.RawMessage

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(cyclesBucket)).Cursor()
		startKey := []byte(fmt.Sprintf("%020d", start.UnixNano()))
		for k, v := c.Seek(startKey); k != nil; k, v = c.Next() {
			data := make([]byte, len(v))
			copy(data, v)
			cycles = append(cycles, data)
		}
		return nil
	})

	return cycles, err
}
