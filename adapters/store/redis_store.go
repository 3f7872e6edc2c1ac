package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/layer-3/stindem/core"
	"github.com/layer-3/stindem/ports"
	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "stindem:"

// RedisStore is a Redis implementation of the Store interface
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

// NewRedisStore creates a new Redis store
func NewRedisStore(client redis.Cmdable) ports.Store {
	return &RedisStore{
		client: client,
		prefix: defaultPrefix,
	}
}

func (s *RedisStore) invalidatedKey(tokenID string) string {
	return s.prefix + "invalidated:" + tokenID
}

func (s *RedisStore) nonceKey(nonce string) string {
	return s.prefix + "nonce:" + nonce
}

// InvalidateToken marks a token as invalidated in Redis
func (s *RedisStore) InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error {
	if err := s.client.Set(ctx, s.invalidatedKey(tokenID), "1", expiry).Err(); err != nil {
		return fmt.Errorf("failed to invalidate token: %w", err)
	}
	return nil
}

// IsTokenInvalidated checks if a token is invalidated in Redis
func (s *RedisStore) IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error) {
	val, err := s.client.Exists(ctx, s.invalidatedKey(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token invalidation: %w", err)
	}
	return val > 0, nil
}

// PutNonce stores the challenge as JSON with ttl as the key expiry
func (s *RedisStore) PutNonce(ctx context.Context, challenge *core.NonceChallenge, ttl time.Duration) error {
	payload, err := json.Marshal(challenge)
	if err != nil {
		return fmt.Errorf("failed to marshal challenge: %w", err)
	}
	if err := s.client.Set(ctx, s.nonceKey(challenge.Nonce), payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store nonce: %w", err)
	}
	return nil
}

// ConsumeNonce reads and deletes the challenge with a single GETDEL
func (s *RedisStore) ConsumeNonce(ctx context.Context, nonce string) (*core.NonceChallenge, error) {
	payload, err := s.client.GetDel(ctx, s.nonceKey(nonce)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, core.ErrInvalidNonce
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume nonce: %w", err)
	}

	var challenge core.NonceChallenge
	if err := json.Unmarshal(payload, &challenge); err != nil {
		return nil, fmt.Errorf("failed to decode challenge: %w", err)
	}
	return &challenge, nil
}
