package store

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/stindem/core"
	"github.com/layer-3/stindem/ports"
)

type nonceEntry struct {
	challenge core.NonceChallenge
	expires   time.Time
}

// MemoryStore keeps nonces and token invalidations in process memory.
// It is meant for a single backend instance and for tests.
type MemoryStore struct {
	mu          sync.Mutex
	invalidated map[string]time.Time
	nonces      map[string]nonceEntry
	now         func() time.Time
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() ports.Store {
	return newMemoryStore(time.Now)
}

func newMemoryStore(now func() time.Time) *MemoryStore {
	return &MemoryStore{
		invalidated: make(map[string]time.Time),
		nonces:      make(map[string]nonceEntry),
		now:         now,
	}
}

// InvalidateToken marks a token as invalidated until expiry elapses
func (s *MemoryStore) InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.invalidated[tokenID] = s.now().Add(expiry)
	s.sweepLocked()
	return nil
}

// IsTokenInvalidated checks if a token is invalidated
func (s *MemoryStore) IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	until, ok := s.invalidated[tokenID]
	if !ok {
		return false, nil
	}
	return s.now().Before(until), nil
}

// PutNonce stores a challenge keyed by its nonce
func (s *MemoryStore) PutNonce(ctx context.Context, challenge *core.NonceChallenge, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nonces[challenge.Nonce] = nonceEntry{challenge: *challenge, expires: s.now().Add(ttl)}
	s.sweepLocked()
	return nil
}

// ConsumeNonce removes the challenge under the lock so two verifications cannot both see it
func (s *MemoryStore) ConsumeNonce(ctx context.Context, nonce string) (*core.NonceChallenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.nonces[nonce]
	if !ok {
		return nil, core.ErrInvalidNonce
	}
	delete(s.nonces, nonce)
	if !s.now().Before(entry.expires) {
		return nil, core.ErrInvalidNonce
	}
	challenge := entry.challenge
	return &challenge, nil
}

// sweepLocked drops expired entries. Called on writes instead of a cleanup goroutine per key.
func (s *MemoryStore) sweepLocked() {
	now := s.now()
	for id, until := range s.invalidated {
		if !now.Before(until) {
			delete(s.invalidated, id)
		}
	}
	for n, entry := range s.nonces {
		if !now.Before(entry.expires) {
			delete(s.nonces, n)
		}
	}
}
