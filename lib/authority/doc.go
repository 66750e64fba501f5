// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package authority provides the Manager, the process-wide coordinator
// of the capability kernel. It owns the scope registry, a TTL cache of
// validation verdicts, convenience checks against the context-current
// scope, scope builders, and guard wrappers for gating callables.
//
// A Manager is an explicit handle: construct one with New and pass it
// (or a context carrying its scopes) through call chains. There is no
// package-level singleton and no hidden global state; tests build
// isolated managers freely.
//
// # Cache consistency
//
// The validation cache is keyed by (scope ID, capability type,
// resource, operation) with a short TTL. Any successful AddCapability
// or UseCapability for type T on scope C evicts every entry whose key
// starts with (C, T), so a check immediately after a mutation of the
// same scope and type is never stale. Mutating a parent's token does
// NOT evict entries keyed by a child that inherited it; those age out
// within one TTL window. That bounded staleness is the accepted
// trade-off for not tracking the inheritance graph in the cache.
//
// The registry never extends a scope's lifetime in any meaningful
// sense: scopes created through the manager unregister themselves on
// Close, and CleanupExpired reaps any registered scope that was closed
// without the hook firing.
package authority
