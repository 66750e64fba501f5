// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package scope

import (
	"context"

	"github.com/warden-project/warden/lib/capability"
)

// currentKey is the context key for the installed scope.
type currentKey struct{}

// Install returns a context carrying s as the current authorization
// scope. The previous scope (if any) is untouched in the parent
// context — dropping the derived context restores it, which is how
// nested scopes compose:
//
//	inner := scope.Install(ctx, child)
//	doWork(inner)
//	// ctx still carries the outer scope
//
// Nothing is propagated to goroutines that are not handed the derived
// context. That is deliberate: authority crosses a concurrency
// boundary only when the caller passes it explicitly.
func Install(ctx context.Context, s *Scope) context.Context {
	return context.WithValue(ctx, currentKey{}, s)
}

// From returns the current scope, if one is installed.
func From(ctx context.Context) (*Scope, bool) {
	s, ok := ctx.Value(currentKey{}).(*Scope)
	return s, ok
}

// Require returns the current scope or ErrNoScope. Operations that
// need an installed scope use this so the misuse surfaces as the
// typed context error, never a nil dereference.
func Require(ctx context.Context) (*Scope, error) {
	s, ok := From(ctx)
	if !ok || s == nil {
		return nil, capability.ErrNoScope
	}
	return s, nil
}
