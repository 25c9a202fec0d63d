package optimistic

import (
	"context"
	"sync"
	"time"
)

// MemoryStore guards keys within one process.
type MemoryStore struct {
	mu   sync.Mutex
	held map[string]hold
	now  func() time.Time
}

type hold struct {
	token   string
	expires time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{held: make(map[string]hold), now: time.Now}
}

func (s *MemoryStore) Acquire(_ context.Context, key, token string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if h, ok := s.held[key]; ok && now.Before(h.expires) {
		return false, nil
	}
	s.held[key] = hold{token: token, expires: now.Add(ttl)}
	return true, nil
}

func (s *MemoryStore) Release(_ context.Context, key, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.held[key]; ok && h.token == token {
		delete(s.held, key)
	}
	return nil
}

// Held reports whether key is currently guarded.
func (s *MemoryStore) Held(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.held[key]
	return ok && s.now().Before(h.expires)
}

type redisGuard interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	DeleteIfEquals(ctx context.Context, key, token string) (bool, error)
	PendingOpKey(entity, id string) string
}

// RedisStore guards keys across API instances with SET NX and a
// compare-and-delete release.
type RedisStore struct {
	client redisGuard
}

func NewRedisStore(client redisGuard) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, s.client.PendingOpKey("op", key), token, ttl)
}

func (s *RedisStore) Release(ctx context.Context, key, token string) error {
	_, err := s.client.DeleteIfEquals(ctx, s.client.PendingOpKey("op", key), token)
	return err
}
