// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package authority

import (
	"time"

	"github.com/warden-project/warden/lib/capability"
)

// cacheKey identifies one validation question. Scope and type lead so
// mutations can evict by (scope, type) prefix.
type cacheKey struct {
	scopeID   string
	typ       capability.Type
	resource  string
	operation string
}

type cacheEntry struct {
	allowed bool
	at      time.Time
}

// cacheGet returns the cached verdict if it is within the TTL. A stale
// entry is dropped and counts as a miss.
func (m *Manager) cacheGet(key cacheKey) (allowed, ok bool) {
	now := m.clock.Now()

	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	m.stats.checksPerformed++

	entry, present := m.cache[key]
	if !present {
		m.stats.cacheMisses++
		return false, false
	}
	if now.Sub(entry.at) >= m.ttl {
		delete(m.cache, key)
		m.stats.cacheMisses++
		return false, false
	}
	m.stats.cacheHits++
	return entry.allowed, true
}

func (m *Manager) cachePut(key cacheKey, allowed bool) {
	now := m.clock.Now()
	m.cacheMu.Lock()
	m.cache[key] = cacheEntry{allowed: allowed, at: now}
	m.cacheMu.Unlock()
}

// invalidate evicts every cached verdict for (scopeID, typ). Called
// after any mutation that can change those verdicts: token added,
// usage consumed.
func (m *Manager) invalidate(scopeID string, typ capability.Type) {
	m.cacheMu.Lock()
	for key := range m.cache {
		if key.scopeID == scopeID && key.typ == typ {
			delete(m.cache, key)
		}
	}
	m.cacheMu.Unlock()
}

// invalidateScope evicts every cached verdict for a scope, regardless
// of type. Called when the scope closes.
func (m *Manager) invalidateScope(scopeID string) {
	m.cacheMu.Lock()
	for key := range m.cache {
		if key.scopeID == scopeID {
			delete(m.cache, key)
		}
	}
	m.cacheMu.Unlock()
}
