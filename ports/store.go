package ports

import (
	"context"
	"time"

	"github.com/layer-3/stindem/core"
)

// Store holds single-use nonces and token invalidations for the backend
type Store interface {
	InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error
	IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error)

	// PutNonce stores a challenge until it is consumed or ttl elapses
	PutNonce(ctx context.Context, challenge *core.NonceChallenge, ttl time.Duration) error
	// ConsumeNonce atomically removes and returns a challenge; core.ErrInvalidNonce if absent
	ConsumeNonce(ctx context.Context, nonce string) (*core.NonceChallenge, error)
}

// StateStore persists the durable subset of client session state
type StateStore interface {
	LoadState(ctx context.Context) (core.PersistedState, error)
	SaveState(ctx context.Context, state core.PersistedState) error
}

// AttemptJournal records how far each on-chain action progressed, keyed by tx hash
type AttemptJournal interface {
	SaveAttempt(ctx context.Context, attempt core.Attempt) error
	GetAttempt(ctx context.Context, txHash string) (core.Attempt, error)
	ListAttempts(ctx context.Context) ([]core.Attempt, error)
}
