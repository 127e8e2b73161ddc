package redisstore

import (
	"context"
	"maps"
	"sync"

	"price-aggregator/internal/application"
)

// MemoryCache is an in-process ReferenceCache for dev runs without Redis.
type MemoryCache struct {
	mu    sync.RWMutex
	lists map[string]map[string]string
}

var _ application.ReferenceCache = (*MemoryCache)(nil)

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{lists: map[string]map[string]string{}}
}

func (m *MemoryCache) GetAll(_ context.Context, key string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.lists[key]), nil
}

func (m *MemoryCache) SetAll(_ context.Context, key string, entries map[string]string, overwrite bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.lists[key]
	if overwrite || list == nil {
		list = make(map[string]string, len(entries))
	}
	maps.Copy(list, entries)
	m.lists[key] = list
	return nil
}
