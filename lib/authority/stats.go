// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package authority

// statsCounters accumulates under cacheMu.
type statsCounters struct {
	cacheHits       uint64
	cacheMisses     uint64
	checksPerformed uint64
	cleanupsRun     uint64
}

// Stats is a point-in-time snapshot of manager activity.
type Stats struct {
	// ActiveScopes is the number of registered, unclosed scopes.
	ActiveScopes int

	// CacheEntries is the current size of the validation cache,
	// stale entries included.
	CacheEntries int

	// ChecksPerformed counts HasCapability calls that reached the
	// cache (calls without a current scope are not counted).
	ChecksPerformed uint64

	CacheHits   uint64
	CacheMisses uint64

	// CleanupsRun counts CleanupExpired invocations, manual and
	// sweeper-driven.
	CleanupsRun uint64
}

// Stats returns a snapshot of the manager's counters.
func (m *Manager) Stats() Stats {
	active := m.ActiveScopes()

	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	return Stats{
		ActiveScopes:    active,
		CacheEntries:    len(m.cache),
		ChecksPerformed: m.stats.checksPerformed,
		CacheHits:       m.stats.cacheHits,
		CacheMisses:     m.stats.cacheMisses,
		CleanupsRun:     m.stats.cleanupsRun,
	}
}
