// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package authority

import (
	"context"
	"fmt"

	"github.com/warden-project/warden/lib/capability"
	"github.com/warden-project/warden/lib/scope"
)

// GuardedFunc is a callable gated by a capability requirement.
type GuardedFunc func(context.Context) error

// Guard wraps fn so it runs only when the context-current scope holds
// a valid token of the given type covering the resource and operation.
// The check does not consume usage quota.
//
// The returned error grades the failure: capability.ErrNoScope when no
// scope is installed, capability.ErrNotFound (or the more specific
// expiry or validation error) when no usable token of the type exists,
// and capability.ErrInsufficientPermission when a valid token exists
// but its constraint does not cover the request.
func (m *Manager) Guard(typ capability.Type, resource, operation string, fn GuardedFunc) GuardedFunc {
	return func(ctx context.Context) error {
		current, err := scope.Require(ctx)
		if err != nil {
			return err
		}
		// Resolve the token before the cached constraint check: the
		// first resolution of an invalid token is the one that sees
		// (and reports) the specific failure, since it also evicts.
		if _, err := current.Capability(typ, true); err != nil {
			return err
		}
		if m.HasCapability(ctx, typ, resource, operation) {
			return fn(ctx)
		}
		return fmt.Errorf("%w: %s token does not permit %q on %q",
			capability.ErrInsufficientPermission, typ, operation, resource)
	}
}

// GuardUse is Guard with consumption: each successful invocation of
// the wrapped function costs one use of the matching token.
func (m *Manager) GuardUse(typ capability.Type, resource, operation string, fn GuardedFunc) GuardedFunc {
	return func(ctx context.Context) error {
		if err := m.UseCapability(ctx, typ, resource, operation); err != nil {
			return err
		}
		return fn(ctx)
	}
}
