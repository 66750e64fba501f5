// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package authority

import (
	"context"
	"time"

	"github.com/warden-project/warden/lib/capability"
	"github.com/warden-project/warden/lib/profile"
	"github.com/warden-project/warden/lib/scope"
)

// WithCapabilities creates a child of the context-current scope (or a
// root scope if none is installed), loads the given tokens into it,
// and returns a derived context with the new scope installed. The
// release function closes the scope; callers defer it:
//
//	ctx, release, err := manager.WithCapabilities(ctx, "worker", token)
//	if err != nil { ... }
//	defer release()
//
// If any token is rejected the scope is closed and the original
// context's scope is unaffected.
func (m *Manager) WithCapabilities(ctx context.Context, name string, tokens ...*capability.Token) (context.Context, func(), error) {
	parent, _ := scope.From(ctx)
	s := m.NewScope(name, parent)
	for _, token := range tokens {
		if err := s.AddCapability(token); err != nil {
			s.Close()
			return nil, nil, err
		}
	}
	return scope.Install(ctx, s), func() { s.Close() }, nil
}

// WithFileAccess mints a file token for the given patterns and
// operations and installs it in a fresh child scope. A zero expiresIn
// means the token never expires.
func (m *Manager) WithFileAccess(ctx context.Context, patterns, operations []string, expiresIn time.Duration) (context.Context, func(), error) {
	token, err := m.keyring.Mint(capability.TokenSpec{
		Type:              capability.TypeFile,
		ResourcePatterns:  patterns,
		AllowedOperations: operations,
		ExpiresIn:         expiresIn,
		CreatedBy:         "authority.WithFileAccess",
	})
	if err != nil {
		return nil, nil, err
	}
	return m.WithCapabilities(ctx, "file-access", token)
}

// WithNetworkAccess mints a network token for the given hosts and
// ports and installs it in a fresh child scope.
func (m *Manager) WithNetworkAccess(ctx context.Context, hosts []string, ports []int, expiresIn time.Duration) (context.Context, func(), error) {
	token, err := m.keyring.Mint(capability.TokenSpec{
		Type:         capability.TypeNetwork,
		AllowedHosts: hosts,
		AllowedPorts: ports,
		ExpiresIn:    expiresIn,
		CreatedBy:    "authority.WithNetworkAccess",
	})
	if err != nil {
		return nil, nil, err
	}
	return m.WithCapabilities(ctx, "network-access", token)
}

// WithProfile mints every token a profile declares and installs them
// in a fresh child scope named after the profile.
func (m *Manager) WithProfile(ctx context.Context, p *profile.Profile) (context.Context, func(), error) {
	tokens, err := p.Mint(m.keyring)
	if err != nil {
		return nil, nil, err
	}
	return m.WithCapabilities(ctx, p.Name, tokens...)
}
