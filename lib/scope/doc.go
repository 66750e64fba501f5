// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package scope implements the tree of authorization scopes a token
// lives in, and the propagation of "the current scope" through
// context.Context.
//
// A Scope holds at most one token per capability type. Lookup is
// local-first: a local token shadows a parent token of the same type,
// and only when a type is locally absent (or the local token has been
// evicted as invalid) does resolution recurse into the parent. Parents
// are set once at construction, so the graph is a forest — no cycles,
// no reparenting.
//
// Each Scope owns a mutex guarding its local token map and child list;
// token usage counters are guarded by the token's own mutex (see
// lib/capability), which is what makes a usage quota of N yield
// exactly N successes under concurrent use. The implementation never
// holds two scope locks at once: walking the parent chain releases
// each lock before taking the next, so there is no lock ordering to
// get wrong.
//
// The current scope travels on context.Context (Install / From /
// Require). A goroutine spawned without the derived context inherits
// no authority — propagation across concurrency boundaries is
// explicit, by design, so ambient authority cannot leak into unrelated
// execution units.
package scope
