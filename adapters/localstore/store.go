// Package localstore persists client session state and the attempt journal in a bbolt file.
package localstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/layer-3/stindem/core"
	"github.com/layer-3/stindem/ports"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketState    = []byte("state")
	bucketAttempts = []byte("attempts")

	keySession = []byte("session")
)

// Store persists the durable subset of session state and the attempt journal
type Store struct {
	db *bolt.DB
}

var (
	_ ports.StateStore     = (*Store)(nil)
	_ ports.AttemptJournal = (*Store)(nil)
)

// Open opens (and migrates) the bbolt file at path
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketState, bucketAttempts} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate local store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// LoadState returns the persisted state, or the zero state when none was saved
func (s *Store) LoadState(ctx context.Context) (core.PersistedState, error) {
	var st core.PersistedState
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketState).Get(keySession)
		if raw == nil {
			return nil
		}
		return json.Unmarshal(raw, &st)
	})
	if err != nil {
		return core.PersistedState{}, fmt.Errorf("load state: %w", err)
	}
	return st, nil
}

// SaveState replaces the persisted state
func (s *Store) SaveState(ctx context.Context, st core.PersistedState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketState).Put(keySession, raw)
	})
}

func attemptKey(txHash string) []byte {
	return []byte(strings.ToLower(txHash))
}

// SaveAttempt upserts a journal entry keyed by its transaction hash
func (s *Store) SaveAttempt(ctx context.Context, attempt core.Attempt) error {
	if attempt.TxHash == "" {
		return fmt.Errorf("attempt without tx hash: %w", core.ErrInvalidInput)
	}
	raw, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("encode attempt: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAttempts).Put(attemptKey(attempt.TxHash), raw)
	})
}

// GetAttempt returns core.ErrNotFound for unknown hashes
func (s *Store) GetAttempt(ctx context.Context, txHash string) (core.Attempt, error) {
	var attempt core.Attempt
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketAttempts).Get(attemptKey(txHash))
		if raw == nil {
			return core.ErrNotFound
		}
		return json.Unmarshal(raw, &attempt)
	})
	if err != nil {
		return core.Attempt{}, err
	}
	return attempt, nil
}

// ListAttempts returns every journal entry, oldest first
func (s *Store) ListAttempts(ctx context.Context) ([]core.Attempt, error) {
	var out []core.Attempt
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAttempts).ForEach(func(_, raw []byte) error {
			var a core.Attempt
			if err := json.Unmarshal(raw, &a); err != nil {
				return err
			}
			out = append(out, a)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
