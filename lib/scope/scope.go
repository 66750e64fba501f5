// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package scope

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/warden-project/warden/lib/capability"
)

// ErrClosed is returned when a token is added to a scope that has
// already been closed.
var ErrClosed = errors.New("scope: scope is closed")

// Scope is one node in the authorization tree: a named holder of at
// most one token per capability type, with optional inheritance from a
// parent scope.
type Scope struct {
	id     string
	name   string
	parent *Scope

	mu       sync.Mutex
	tokens   map[capability.Type]*capability.Token
	children []*Scope
	closed   bool
	onClose  []func(*Scope)
}

// New creates a scope with a fresh random identifier. A nil parent
// makes a root scope; otherwise the new scope inherits from parent and
// is appended to its child list. The parent is fixed for the scope's
// lifetime.
func New(name string, parent *Scope) *Scope {
	// crypto/rand.Read always fills the slice and never returns an
	// error (it panics if the platform source is broken).
	idBytes := make([]byte, 8)
	rand.Read(idBytes)
	return NewWithID(hex.EncodeToString(idBytes), name, parent)
}

// NewWithID creates a scope with a caller-supplied identifier. The
// hand-off importer uses it to give a deserialized scope the identity
// recorded in its envelope; everything else should use New.
func NewWithID(id, name string, parent *Scope) *Scope {
	s := &Scope{
		id:     id,
		name:   name,
		parent: parent,
		tokens: make(map[capability.Type]*capability.Token),
	}
	if parent != nil {
		parent.mu.Lock()
		parent.children = append(parent.children, s)
		parent.mu.Unlock()
	}
	return s
}

// ID returns the scope's unique identifier.
func (s *Scope) ID() string { return s.id }

// Name returns the scope's human-readable name.
func (s *Scope) Name() string { return s.name }

// Parent returns the parent scope, or nil for a root.
func (s *Scope) Parent() *Scope { return s.parent }

// OnClose registers a hook invoked (outside the scope lock) when the
// scope closes. The manager uses this to unregister the scope.
func (s *Scope) OnClose(hook func(*Scope)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClose = append(s.onClose, hook)
}

// AddCapability installs a token in this scope. An invalid token is
// rejected outright — dead grants do not enter the tree. A token of a
// type already present replaces the existing entry: last write wins,
// there is no per-type stacking within one scope.
func (s *Scope) AddCapability(token *capability.Token) error {
	if token == nil {
		return fmt.Errorf("%w: nil token", capability.ErrValidationFailed)
	}
	if err := token.Validate(); err != nil {
		return fmt.Errorf("adding %s capability: %w", token.Type, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.tokens[token.Type] = token
	return nil
}

// HasCapability reports whether a valid token of the type is reachable
// from this scope. With checkParents, resolution recurses up the
// chain after the local map (and after evicting a local token found
// invalid).
func (s *Scope) HasCapability(typ capability.Type, checkParents bool) bool {
	_, err := s.Capability(typ, checkParents)
	return err == nil
}

// Capability returns the nearest valid token of the type. A local
// token found invalid is evicted and resolution falls through to the
// parent. When nothing valid is reachable, the error is the nearest
// rejected token's failure (expired, tampered, quota) if there was
// one, else ErrNotFound.
func (s *Scope) Capability(typ capability.Type, checkParents bool) (*capability.Token, error) {
	var nearest error
	for current := s; current != nil; current = current.parent {
		current.mu.Lock()
		if token, ok := current.tokens[typ]; ok {
			err := token.Validate()
			if err == nil {
				current.mu.Unlock()
				return token, nil
			}
			delete(current.tokens, typ)
			if nearest == nil {
				nearest = err
			}
		}
		current.mu.Unlock()
		if !checkParents {
			break
		}
	}
	if nearest != nil {
		return nil, nearest
	}
	return nil, fmt.Errorf("%w: %s", capability.ErrNotFound, typ)
}

// CapabilityUnchecked returns the nearest token of the type with no
// validity filtering and no eviction. This is introspection only —
// the returned token may be expired, tampered with, or exhausted, and
// this method must never feed an authorization decision.
func (s *Scope) CapabilityUnchecked(typ capability.Type, checkParents bool) (*capability.Token, error) {
	for current := s; current != nil; current = current.parent {
		current.mu.Lock()
		token, ok := current.tokens[typ]
		current.mu.Unlock()
		if ok {
			return token, nil
		}
		if !checkParents {
			break
		}
	}
	return nil, fmt.Errorf("%w: %s", capability.ErrNotFound, typ)
}

// CanAccess reports whether a reachable valid token of the type
// permits the operation on the resource.
func (s *Scope) CanAccess(typ capability.Type, resource, operation string) bool {
	token, err := s.Capability(typ, true)
	if err != nil {
		return false
	}
	return token.CanAccess(resource, operation)
}

// UseCapability consumes one use of the nearest valid token of the
// type for the given access. The token's own mutex serializes the
// quota check and increment, so concurrent uses through any scope that
// resolves to the same token never over-consume a quota.
//
// A valid token that denies the access returns the denial — a local
// grant shadows the parent's even when it is narrower. Only invalid
// tokens (evicted on sight) fall through to the parent.
func (s *Scope) UseCapability(typ capability.Type, resource, operation string) error {
	var nearest error
	for current := s; current != nil; {
		current.mu.Lock()
		if token, ok := current.tokens[typ]; ok {
			if err := token.Validate(); err != nil {
				delete(current.tokens, typ)
				if nearest == nil {
					nearest = err
				}
			} else {
				err := token.Use(resource, operation)
				current.mu.Unlock()
				return err
			}
		}
		parent := current.parent
		current.mu.Unlock()
		current = parent
	}
	if nearest != nil {
		return nearest
	}
	return fmt.Errorf("%w: %s", capability.ErrNotFound, typ)
}

// AllCapabilities returns the merged token map visible from this
// scope. The parent's view is merged first and local entries overlay
// it, so shadowing matches Capability resolution. Local tokens found
// invalid during the merge are evicted. The map is a fresh copy.
func (s *Scope) AllCapabilities(includeParents bool) map[capability.Type]*capability.Token {
	var merged map[capability.Type]*capability.Token
	if includeParents && s.parent != nil {
		merged = s.parent.AllCapabilities(true)
	} else {
		merged = make(map[capability.Type]*capability.Token)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for typ, token := range s.tokens {
		if token.Validate() != nil {
			delete(s.tokens, typ)
			continue
		}
		merged[typ] = token
	}
	return merged
}

// Child creates a scope inheriting from this one.
func (s *Scope) Child(name string) *Scope {
	return New(name, s)
}

// SweepExpired evicts local tokens that are no longer valid and
// returns how many were removed.
func (s *Scope) SweepExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for typ, token := range s.tokens {
		if token.Validate() != nil {
			delete(s.tokens, typ)
			removed++
		}
	}
	return removed
}

// Closed reports whether Close has run.
func (s *Scope) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close ends the scope: expired local tokens are swept, the scope
// detaches from its parent's child list, and on-close hooks run.
// Idempotent. Child scopes are not closed recursively — they keep
// their parent pointer for resolution, which matches the lifecycle of
// nested lexical scopes unwinding in their own order.
func (s *Scope) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for typ, token := range s.tokens {
		if token.Validate() != nil {
			delete(s.tokens, typ)
		}
	}
	hooks := s.onClose
	s.onClose = nil
	s.mu.Unlock()

	if s.parent != nil {
		s.parent.mu.Lock()
		for i, child := range s.parent.children {
			if child == s {
				s.parent.children = append(s.parent.children[:i], s.parent.children[i+1:]...)
				break
			}
		}
		s.parent.mu.Unlock()
	}

	for _, hook := range hooks {
		hook(s)
	}
	return nil
}
