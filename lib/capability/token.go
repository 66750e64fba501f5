// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package capability

import (
	"crypto/subtle"
	"fmt"
	"sync"
	"time"
)

// Token is one capability grant: identity, constraint, integrity
// checksum, and usage counters. Mint through a Keyring; never
// construct directly (a zero checksum fails every integrity check,
// which is the point).
//
// Identity and constraint fields are exported for inspection and
// serialization but are immutable by contract — mutating any of them
// after minting flips ValidateIntegrity to false, permanently. The
// usage counters advance only through Use and are guarded by the
// token's own mutex, so validity checks and counter reads are safe
// from any goroutine while uses proceed concurrently.
type Token struct {
	// ID is the random hex identifier assigned at mint.
	ID string

	// Type tags the effect this token authorizes.
	Type Type

	// Constraint restricts what the token can reach.
	Constraint Constraint

	// CreatedAt and CreatedBy record provenance.
	CreatedAt time.Time
	CreatedBy string

	// Description is free-form human context.
	Description string

	checksum [checksumSize]byte
	keyring  *Keyring

	// mu guards the usage counters. It is a leaf lock: nothing is
	// acquired while it is held.
	mu         sync.Mutex
	usageCount int
	lastUsedAt time.Time
}

// UsageCount returns the number of successful uses so far.
func (t *Token) UsageCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.usageCount
}

// LastUsedAt returns the time of the most recent successful use; zero
// if never used.
func (t *Token) LastUsedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastUsedAt
}

// ValidateIntegrity recomputes the keyed MAC over the token's
// immutable fields and compares it with the checksum sealed at mint
// time. False means tampering or corruption. This is recomputed on
// every call, never cached: validity is a property of the present
// field values, not of history.
func (t *Token) ValidateIntegrity() bool {
	if t.keyring == nil || t.keyring.key.Closed() {
		return false
	}
	expected := t.keyring.tokenMAC(t)
	return subtle.ConstantTimeCompare(expected[:], t.checksum[:]) == 1
}

// IsValid reports whether the token currently authorizes anything at
// all: integrity intact, not expired, usage quota not exhausted.
func (t *Token) IsValid() bool {
	return t.Validate() == nil
}

// Validate returns nil for a currently valid token, or the most
// specific invalidity error: expiry before integrity, integrity before
// quota. The scope layer surfaces this as the reason a lookup rejected
// a token.
func (t *Token) Validate() error {
	if t.keyring == nil {
		return fmt.Errorf("%w: token %s was not minted by a keyring", ErrValidationFailed, t.ID)
	}
	now := t.keyring.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.invalidReason(now)
}

// CanAccess reports whether the token authorizes the operation on the
// resource right now.
func (t *Token) CanAccess(resource, operation string) bool {
	if !t.IsValid() {
		return false
	}
	return t.Constraint.MatchesResource(resource) && t.Constraint.AllowsOperation(operation)
}

// CanReach reports whether a network token authorizes connecting to
// host:port right now. For non-network tokens this is simply IsValid
// plus the (normally empty, therefore permissive) host and port axes.
func (t *Token) CanReach(host string, port int) bool {
	if !t.IsValid() {
		return false
	}
	return t.Constraint.AllowsHost(host) && t.Constraint.AllowsPort(port)
}

// Use consumes one unit of the token's quota for the given access, or
// returns the most specific applicable failure: expiry before
// integrity, integrity before quota, quota before constraint denial.
// On success it increments the usage count and stamps the last-used
// time.
//
// The token's mutex is held across the quota check and the increment,
// so concurrent uses are serialized and a quota of N yields exactly N
// successes no matter how many scopes resolve to the token.
func (t *Token) Use(resource, operation string) error {
	if t.keyring == nil {
		return fmt.Errorf("%w: token %s was not minted by a keyring", ErrValidationFailed, t.ID)
	}
	now := t.keyring.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.invalidReason(now); err != nil {
		return err
	}
	if !t.Constraint.MatchesResource(resource) {
		return fmt.Errorf("%w: resource %q denied by %s token %s",
			ErrValidationFailed, resource, t.Type, t.ID)
	}
	if !t.Constraint.AllowsOperation(operation) {
		return fmt.Errorf("%w: operation %q denied by %s token %s",
			ErrValidationFailed, operation, t.Type, t.ID)
	}

	t.usageCount++
	t.lastUsedAt = now
	return nil
}

// invalidReason returns nil for a valid token, or the most specific
// invalidity error at the given instant. The caller holds t.mu.
func (t *Token) invalidReason(now time.Time) error {
	if t.Constraint.Expired(now) {
		return fmt.Errorf("%w: %s token %s expired at %s",
			ErrExpired, t.Type, t.ID, t.Constraint.ExpiresAt.Format(time.RFC3339))
	}
	if !t.ValidateIntegrity() {
		return fmt.Errorf("%w: integrity check failed for %s token %s",
			ErrValidationFailed, t.Type, t.ID)
	}
	if t.Constraint.MaxUsageCount > 0 && t.usageCount >= t.Constraint.MaxUsageCount {
		return fmt.Errorf("%w: usage quota exhausted for %s token %s (%d/%d)",
			ErrValidationFailed, t.Type, t.ID, t.usageCount, t.Constraint.MaxUsageCount)
	}
	return nil
}
