package idempotency

import (
	"context"
	"sync"
	"time"
)

// Store claims request keys. Claim returns false when the key was already
// claimed within the store's TTL. Release frees a claimed key so the request
// can be retried.
type Store interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

const defaultMaxKeys = 100_000

// Memory is a bounded in-process Store for single-replica deployments and
// tests. When full, the entry closest to expiry is evicted.
type Memory struct {
	mu      sync.Mutex
	ttl     time.Duration
	maxKeys int
	keys    map[string]time.Time
	now     func() time.Time
}

func NewMemory(ttl time.Duration, maxKeys int) *Memory {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if maxKeys <= 0 {
		maxKeys = defaultMaxKeys
	}
	return &Memory{ttl: ttl, maxKeys: maxKeys, keys: map[string]time.Time{}, now: time.Now}
}

func (m *Memory) Claim(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if exp, ok := m.keys[key]; ok && now.Before(exp) {
		return false, nil
	}
	if len(m.keys) >= m.maxKeys {
		m.evict(now)
	}
	m.keys[key] = now.Add(m.ttl)
	return true, nil
}

func (m *Memory) Release(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.keys, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) evict(now time.Time) {
	var oldest string
	var oldestExp time.Time
	for k, exp := range m.keys {
		if !now.Before(exp) {
			delete(m.keys, k)
			continue
		}
		if oldest == "" || exp.Before(oldestExp) {
			oldest, oldestExp = k, exp
		}
	}
	if len(m.keys) >= m.maxKeys && oldest != "" {
		delete(m.keys, oldest)
	}
}
