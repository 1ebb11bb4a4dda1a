package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// CredentialStore keeps a bearer token. Get returns "" when no token is
// stored.
type CredentialStore interface {
	Get(ctx context.Context) (string, error)
	Set(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// MemoryCredentialStore keeps the token for the lifetime of the process. It
// backs the session store, which is forgotten on restart.
type MemoryCredentialStore struct {
	mu    sync.RWMutex
	token string
}

// NewMemoryCredentialStore creates an empty store.
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{}
}

func (s *MemoryCredentialStore) Get(context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, nil
}

func (s *MemoryCredentialStore) Set(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

func (s *MemoryCredentialStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}

// RedisCredentialStore keeps the token in Redis under a fixed key so that it
// survives restarts. A zero TTL stores the token without expiry.
type RedisCredentialStore struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

// NewRedisCredentialStore creates a store using key.
func NewRedisCredentialStore(client redis.UniversalClient, key string, ttl time.Duration) *RedisCredentialStore {
	return &RedisCredentialStore{client: client, key: key, ttl: ttl}
}

func (s *RedisCredentialStore) Get(ctx context.Context) (string, error) {
	token, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("auth: redis get: %w", err)
	}
	return token, nil
}

func (s *RedisCredentialStore) Set(ctx context.Context, token string) error {
	if err := s.client.Set(ctx, s.key, token, s.ttl).Err(); err != nil {
		return fmt.Errorf("auth: redis set: %w", err)
	}
	return nil
}

func (s *RedisCredentialStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("auth: redis del: %w", err)
	}
	return nil
}
