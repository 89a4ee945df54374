package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Juhan1212/karbit-sub001/internal/domain"
)

type rate struct {
	value float64
	ts    time.Time
}

// RateCache is an in-memory domain.RateCache.
type RateCache struct {
	mu    sync.RWMutex
	rates map[string]rate
}

// NewRateCache creates an empty cache.
func NewRateCache() *RateCache {
	return &RateCache{rates: make(map[string]rate)}
}

func (c *RateCache) SetRate(_ context.Context, key string, value float64, ts time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rates[key] = rate{value: value, ts: ts}
	return nil
}

func (c *RateCache) GetRate(_ context.Context, key string) (float64, time.Time, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.rates[key]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return r.value, r.ts, nil
}

type lease struct {
	token   string
	expires time.Time
}

// LockManager is an in-process domain.LockManager with TTL semantics.
type LockManager struct {
	mu     sync.Mutex
	leases map[string]lease
	now    func() time.Time
}

// NewLockManager creates an empty lock manager.
func NewLockManager() *LockManager {
	return &LockManager{leases: make(map[string]lease), now: time.Now}
}

// Acquire takes key for ttl. It returns domain.ErrLockHeld when another
// holder owns an unexpired lease.
func (m *LockManager) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if l, ok := m.leases[key]; ok && now.Before(l.expires) {
		return nil, fmt.Errorf("memory: lock %q: %w", key, domain.ErrLockHeld)
	}
	token := uuid.NewString()
	m.leases[key] = lease{token: token, expires: now.Add(ttl)}

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if l, ok := m.leases[key]; ok && l.token == token {
			delete(m.leases, key)
		}
	}, nil
}

var (
	_ domain.RateCache   = (*RateCache)(nil)
	_ domain.LockManager = (*LockManager)(nil)
)
