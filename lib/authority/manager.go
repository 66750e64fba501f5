// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package authority

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/warden-project/warden/lib/capability"
	"github.com/warden-project/warden/lib/clock"
	"github.com/warden-project/warden/lib/scope"
)

// defaultCacheTTL bounds how long a cached validation verdict is
// trusted. Short on purpose: the cache exists to absorb hot-path
// repetition, not to be a second source of truth.
const defaultCacheTTL = 5 * time.Second

// Options configures a Manager. The zero value is production defaults.
type Options struct {
	// Keyring mints and validates tokens. Nil means the manager
	// creates its own (and owns its lifecycle).
	Keyring *capability.Keyring

	// Clock drives cache TTL and the sweeper. Nil means the real
	// clock. When the manager creates its own keyring, the keyring
	// shares this clock.
	Clock clock.Clock

	// Logger receives structured logs. Nil means slog.Default().
	Logger *slog.Logger

	// CacheTTL overrides the validation cache TTL. Zero means the
	// default.
	CacheTTL time.Duration
}

// Manager coordinates scope lifecycle and capability checks for one
// process. Safe for concurrent use.
type Manager struct {
	keyring    *capability.Keyring
	ownKeyring bool
	clock      clock.Clock
	logger     *slog.Logger
	ttl        time.Duration

	// registryMu guards scopes. Independent of any scope's own lock
	// and of cacheMu, so registry operations never contend with
	// unrelated scope traffic.
	registryMu sync.Mutex
	scopes     map[string]*scope.Scope

	// cacheMu guards the validation cache and the counters.
	cacheMu sync.Mutex
	cache   map[cacheKey]cacheEntry
	stats   statsCounters
}

// New creates a Manager.
func New(opts Options) (*Manager, error) {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultCacheTTL
	}

	m := &Manager{
		keyring: opts.Keyring,
		clock:   opts.Clock,
		logger:  opts.Logger,
		ttl:     opts.CacheTTL,
		scopes:  make(map[string]*scope.Scope),
		cache:   make(map[cacheKey]cacheEntry),
	}
	if m.keyring == nil {
		keyring, err := capability.NewKeyring(capability.KeyringOptions{Clock: opts.Clock})
		if err != nil {
			return nil, fmt.Errorf("authority: %w", err)
		}
		m.keyring = keyring
		m.ownKeyring = true
	}
	return m, nil
}

// Close releases the manager's keyring if it owns one. Call at
// process teardown; tokens minted by an owned keyring stop validating
// afterwards.
func (m *Manager) Close() error {
	if m.ownKeyring {
		return m.keyring.Close()
	}
	return nil
}

// Keyring returns the manager's token keyring.
func (m *Manager) Keyring() *capability.Keyring { return m.keyring }

// Mint is a convenience passthrough to the manager's keyring.
func (m *Manager) Mint(spec capability.TokenSpec) (*capability.Token, error) {
	return m.keyring.Mint(spec)
}

// NewScope creates and registers a scope. A nil parent makes a root.
// The scope unregisters itself (and drops its cache entries) when
// closed, so registration never outlives the scope.
func (m *Manager) NewScope(name string, parent *scope.Scope) *scope.Scope {
	s := scope.New(name, parent)
	s.OnClose(func(closed *scope.Scope) {
		m.registryMu.Lock()
		delete(m.scopes, closed.ID())
		m.registryMu.Unlock()
		m.invalidateScope(closed.ID())
	})

	m.registryMu.Lock()
	m.scopes[s.ID()] = s
	m.registryMu.Unlock()
	return s
}

// HasCapability reports whether the context-current scope can perform
// the operation on the resource with a token of the given type. The
// TTL cache is consulted first; a miss walks the scope chain and the
// verdict is cached. No current scope means false, never an error.
func (m *Manager) HasCapability(ctx context.Context, typ capability.Type, resource, operation string) bool {
	current, err := scope.Require(ctx)
	if err != nil {
		return false
	}

	key := cacheKey{scopeID: current.ID(), typ: typ, resource: resource, operation: operation}
	if allowed, ok := m.cacheGet(key); ok {
		return allowed
	}

	allowed := current.CanAccess(typ, resource, operation)
	m.cachePut(key, allowed)
	return allowed
}

// UseCapability consumes one use of the matching token in the
// context-current scope chain. On success, cache entries for (scope,
// type) are evicted so subsequent checks observe the new usage state.
func (m *Manager) UseCapability(ctx context.Context, typ capability.Type, resource, operation string) error {
	current, err := scope.Require(ctx)
	if err != nil {
		return err
	}
	if err := current.UseCapability(typ, resource, operation); err != nil {
		return err
	}
	m.invalidate(current.ID(), typ)
	return nil
}

// AddCapability installs a token in the context-current scope and
// evicts the (scope, type) cache entries.
func (m *Manager) AddCapability(ctx context.Context, token *capability.Token) error {
	current, err := scope.Require(ctx)
	if err != nil {
		return err
	}
	if err := current.AddCapability(token); err != nil {
		return err
	}
	m.invalidate(current.ID(), token.Type)
	return nil
}

// CleanupExpired sweeps expired tokens from every registered live
// scope, reaps registry entries whose scope was closed, and clears the
// validation cache wholesale. Returns the number of tokens removed.
func (m *Manager) CleanupExpired() int {
	m.registryMu.Lock()
	live := make([]*scope.Scope, 0, len(m.scopes))
	for id, s := range m.scopes {
		if s.Closed() {
			delete(m.scopes, id)
			continue
		}
		live = append(live, s)
	}
	m.registryMu.Unlock()

	removed := 0
	for _, s := range live {
		removed += s.SweepExpired()
	}

	m.cacheMu.Lock()
	clear(m.cache)
	m.stats.cleanupsRun++
	m.cacheMu.Unlock()

	if removed > 0 {
		m.logger.Debug("swept expired capability tokens",
			"removed", removed, "scopes", len(live))
	}
	return removed
}

// RunSweeper calls CleanupExpired every interval until ctx is done.
// Run it in its own goroutine:
//
//	go manager.RunSweeper(ctx, time.Minute)
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := m.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CleanupExpired()
		}
	}
}

// ActiveScopes returns the number of registered, unclosed scopes.
func (m *Manager) ActiveScopes() int {
	m.registryMu.Lock()
	defer m.registryMu.Unlock()
	count := 0
	for _, s := range m.scopes {
		if !s.Closed() {
			count++
		}
	}
	return count
}
