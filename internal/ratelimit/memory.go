package ratelimit

import (
	"context"
	"sync"
	"time"

	"lostfound/internal/models"
	"lostfound/internal/store"
)

type key struct {
	identifier string
	action     string
}

// Memory is a process-local Backend for single-node deployments and tests.
type Memory struct {
	mu      sync.Mutex
	records map[key]models.RateLimitRecord
}

func NewMemory() *Memory {
	return &Memory{records: map[key]models.RateLimitRecord{}}
}

func (m *Memory) PurgeRateLimits(_ context.Context, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, r := range m.records {
		if r.ExpiresAt.Before(now) {
			delete(m.records, k)
		}
	}
	return nil
}

func (m *Memory) GetRateLimit(_ context.Context, identifier, action string) (models.RateLimitRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[key{identifier, action}]
	if !ok {
		return models.RateLimitRecord{}, store.ErrNotFound
	}
	return r, nil
}

func (m *Memory) CreateRateLimit(_ context.Context, r models.RateLimitRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key{r.Identifier, r.Action}
	if _, ok := m.records[k]; ok {
		return store.ErrConflict
	}
	m.records[k] = r
	return nil
}

func (m *Memory) ResetRateLimit(_ context.Context, identifier, action string, windowStart, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key{identifier, action}
	r, ok := m.records[k]
	if !ok {
		return nil
	}
	r.Attempts = 1
	r.WindowStart = windowStart
	r.ExpiresAt = expiresAt
	m.records[k] = r
	return nil
}

func (m *Memory) IncrementRateLimit(_ context.Context, identifier, action string, max int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key{identifier, action}
	r, ok := m.records[k]
	if !ok || r.Attempts >= max {
		return false, nil
	}
	r.Attempts++
	m.records[k] = r
	return true, nil
}
