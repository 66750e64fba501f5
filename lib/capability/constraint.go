// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package capability

import (
	"time"

	"github.com/warden-project/warden/lib/respath"
)

// Constraint is the declarative restriction set attached to a token.
//
// Empty slices are unrestricted on their axis: a token with no
// ResourcePatterns matches every resource, one with no
// AllowedOperations allows every operation. Restriction is opt-in —
// callers that want a narrow token must say so. This is deliberate and
// covered by explicit tests; the fail-closed property of the kernel
// comes from tokens having to exist and validate, not from constraint
// defaults.
type Constraint struct {
	// ResourcePatterns are glob patterns (respath syntax) the resource
	// must match. Empty means any resource.
	ResourcePatterns []string

	// AllowedOperations is the set of permitted operation names
	// ("read", "write", "connect", ...). Empty means any operation.
	AllowedOperations []string

	// AllowedHosts are glob patterns for network peer hostnames.
	// Empty means any host. Only meaningful on network tokens.
	AllowedHosts []string

	// AllowedPorts are permitted network ports. Empty means any port.
	AllowedPorts []int

	// MaxUsageCount caps how many successful uses the token allows.
	// Zero means unlimited.
	MaxUsageCount int

	// ExpiresAt is the instant after which the token is invalid. The
	// zero time means the token never expires.
	ExpiresAt time.Time

	// MaxFileSize bounds the size in bytes of a single file effect.
	// Zero means unbounded. Enforced by the file wrapper, not here.
	MaxFileSize int64

	// MaxMemory bounds memory in bytes for metered operations. Zero
	// means unbounded.
	MaxMemory int64

	// MaxCPUTime bounds CPU time for metered operations. Zero means
	// unbounded.
	MaxCPUTime time.Duration
}

// MatchesResource reports whether the constraint permits access to the
// resource path. True when ResourcePatterns is empty, else true when
// any pattern matches.
func (c *Constraint) MatchesResource(resource string) bool {
	if len(c.ResourcePatterns) == 0 {
		return true
	}
	return respath.MatchAny(c.ResourcePatterns, resource)
}

// AllowsOperation reports whether the constraint permits the named
// operation. True when AllowedOperations is empty.
func (c *Constraint) AllowsOperation(operation string) bool {
	if len(c.AllowedOperations) == 0 {
		return true
	}
	for _, allowed := range c.AllowedOperations {
		if allowed == operation {
			return true
		}
	}
	return false
}

// AllowsHost reports whether the constraint permits connecting to the
// host. True when AllowedHosts is empty.
func (c *Constraint) AllowsHost(host string) bool {
	if len(c.AllowedHosts) == 0 {
		return true
	}
	return respath.MatchAny(c.AllowedHosts, host)
}

// AllowsPort reports whether the constraint permits the port. True
// when AllowedPorts is empty.
func (c *Constraint) AllowsPort(port int) bool {
	if len(c.AllowedPorts) == 0 {
		return true
	}
	for _, allowed := range c.AllowedPorts {
		if allowed == port {
			return true
		}
	}
	return false
}

// Expired reports whether the constraint's expiry has passed at the
// given instant. A zero ExpiresAt never expires.
func (c *Constraint) Expired(now time.Time) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return now.After(c.ExpiresAt)
}
