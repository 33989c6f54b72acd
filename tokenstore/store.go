// Package tokenstore provides auth.TokenCache implementations for sharing
// obtained tokens between strategy instances. Memory keeps tokens inside a
// single process; Redis shares them across parallel test runners.
package tokenstore

import (
	"context"
	"sync"
	"time"

	"github.com/apiharness/sdk/auth"
)

// Memory is an in-process token cache with TTL-based eviction. Expired
// entries are dropped lazily on lookup.
type Memory struct {
	mu      sync.Mutex
	clock   func() time.Time
	entries map[string]memoryEntry
}

type memoryEntry struct {
	token     *auth.Token
	expiresAt time.Time
}

// NewMemory creates an empty in-process token cache.
func NewMemory() *Memory {
	return &Memory{
		clock:   time.Now,
		entries: make(map[string]memoryEntry),
	}
}

// NewMemoryWithClock creates a cache driven by a custom time source.
func NewMemoryWithClock(clock func() time.Time) *Memory {
	m := NewMemory()
	if clock != nil {
		m.clock = clock
	}
	return m
}

// Get returns the cached token for key, or (nil, nil) when absent or past
// its TTL.
func (m *Memory) Get(_ context.Context, key string) (*auth.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	if !m.clock().Before(entry.expiresAt) {
		delete(m.entries, key)
		return nil, nil
	}
	return entry.token, nil
}

// Put stores the token under key for the given TTL. A non-positive TTL
// drops the entry.
func (m *Memory) Put(_ context.Context, key string, token *auth.Token, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ttl <= 0 {
		delete(m.entries, key)
		return nil
	}
	m.entries[key] = memoryEntry{token: token, expiresAt: m.clock().Add(ttl)}
	return nil
}

// Delete removes the entry for key.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Len returns the number of live entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	now := m.clock()
	for _, entry := range m.entries {
		if now.Before(entry.expiresAt) {
			n++
		}
	}
	return n
}
