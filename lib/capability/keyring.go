// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package capability

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/zeebo/blake3"

	"github.com/warden-project/warden/lib/clock"
	"github.com/warden-project/warden/lib/codec"
	"github.com/warden-project/warden/lib/secret"
)

// keySize is the BLAKE3 keyed-mode key length.
const keySize = 32

// checksumSize is the token MAC length.
const checksumSize = 32

// tokenIDBytes is the entropy behind a token ID (hex-encoded to 32
// characters).
const tokenIDBytes = 16

// Keyring mints and restores tokens and holds the per-process session
// secret that keys their integrity MACs. A checksum minted by one
// keyring verifies only against the same keyring, so a token cannot be
// fabricated or patched by code that merely knows the hash algorithm.
//
// The key lives in an mlock'd off-heap buffer and is destroyed by
// Close. The key never crosses a process boundary: the hand-off
// importer re-mints checksums under its own keyring (see lib/handoff).
type Keyring struct {
	key   *secret.Buffer
	clock clock.Clock
}

// KeyringOptions configures NewKeyring. The zero value is production
// defaults.
type KeyringOptions struct {
	// Clock supplies the time for minting, expiry, and usage stamps.
	// Nil means the real clock.
	Clock clock.Clock
}

// NewKeyring creates a keyring with a fresh random session key.
func NewKeyring(opts KeyringOptions) (*Keyring, error) {
	key, err := secret.NewRandom(keySize)
	if err != nil {
		return nil, fmt.Errorf("capability: generating session key: %w", err)
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	return &Keyring{key: key, clock: opts.Clock}, nil
}

// Close destroys the session key. Tokens minted by this keyring fail
// integrity checks afterwards; call only at process teardown.
func (k *Keyring) Close() error {
	return k.key.Close()
}

// Now returns the keyring's current time.
func (k *Keyring) Now() time.Time {
	return k.clock.Now()
}

// TokenSpec describes a token to mint.
type TokenSpec struct {
	// Type is the capability type. Required.
	Type Type

	// ResourcePatterns, AllowedOperations, AllowedHosts, AllowedPorts
	// populate the constraint. Empty slices are unrestricted.
	ResourcePatterns  []string
	AllowedOperations []string
	AllowedHosts      []string
	AllowedPorts      []int

	// ExpiresIn sets the expiry relative to mint time. Zero means the
	// token never expires.
	ExpiresIn time.Duration

	// MaxUsageCount caps successful uses. Zero means unlimited.
	MaxUsageCount int

	// MaxFileSize, MaxMemory, MaxCPUTime are resource limits carried
	// for the resource wrappers. Zero means unbounded.
	MaxFileSize int64
	MaxMemory   int64
	MaxCPUTime  time.Duration

	// CreatedBy names the issuing component for audit trails.
	CreatedBy string

	// Description is free-form human context.
	Description string
}

// Mint creates a token from the spec, assigns it a random ID, stamps
// it with the current time, and seals it with the keyring's MAC.
func (k *Keyring) Mint(spec TokenSpec) (*Token, error) {
	if _, err := ParseType(string(spec.Type)); err != nil {
		return nil, err
	}

	// crypto/rand.Read always fills the slice and never returns an
	// error (it panics if the platform source is broken).
	idBytes := make([]byte, tokenIDBytes)
	rand.Read(idBytes)

	now := k.clock.Now()
	token := &Token{
		ID:        hex.EncodeToString(idBytes),
		Type:      spec.Type,
		CreatedAt: now,
		CreatedBy: spec.CreatedBy,
		Constraint: Constraint{
			ResourcePatterns:  spec.ResourcePatterns,
			AllowedOperations: spec.AllowedOperations,
			AllowedHosts:      spec.AllowedHosts,
			AllowedPorts:      spec.AllowedPorts,
			MaxUsageCount:     spec.MaxUsageCount,
			MaxFileSize:       spec.MaxFileSize,
			MaxMemory:         spec.MaxMemory,
			MaxCPUTime:        spec.MaxCPUTime,
		},
		Description: spec.Description,
		keyring:     k,
	}
	if spec.ExpiresIn > 0 {
		token.Constraint.ExpiresAt = now.Add(spec.ExpiresIn)
	}
	token.checksum = k.tokenMAC(token)
	return token, nil
}

// RestoreSpec carries the full identity of a previously minted token,
// as read from a hand-off record. Unlike TokenSpec, identity fields
// are supplied, not generated.
type RestoreSpec struct {
	ID          string
	Type        Type
	CreatedAt   time.Time
	CreatedBy   string
	Description string
	UsageCount  int
	LastUsedAt  time.Time
	Constraint  Constraint
}

// Restore reconstructs a token from a hand-off record, dispatching on
// the capability type and re-minting the integrity checksum under this
// keyring. The type dispatch rejects records whose constraint shape
// does not fit the type — a file token carrying host or port
// restrictions is a malformed record, not a quirk to preserve.
func (k *Keyring) Restore(spec RestoreSpec) (*Token, error) {
	typ, err := ParseType(string(spec.Type))
	if err != nil {
		return nil, err
	}
	if spec.ID == "" {
		return nil, fmt.Errorf("%w: token record has no id", ErrValidationFailed)
	}
	if spec.CreatedAt.IsZero() {
		return nil, fmt.Errorf("%w: token %s has no creation time", ErrValidationFailed, spec.ID)
	}

	switch typ {
	case TypeNetwork:
		// Hosts and ports are the network constraint's native axes.
	default:
		if len(spec.Constraint.AllowedHosts) > 0 || len(spec.Constraint.AllowedPorts) > 0 {
			return nil, fmt.Errorf("%w: %s token %s carries network constraints",
				ErrValidationFailed, typ, spec.ID)
		}
	}

	token := &Token{
		ID:          spec.ID,
		Type:        typ,
		CreatedAt:   spec.CreatedAt,
		CreatedBy:   spec.CreatedBy,
		Description: spec.Description,
		Constraint:  spec.Constraint,
		usageCount:  spec.UsageCount,
		lastUsedAt:  spec.LastUsedAt,
		keyring:     k,
	}
	token.checksum = k.tokenMAC(token)
	return token, nil
}

// checksumPayload is the canonical form of a token's immutable fields.
// The MAC covers exactly these; the usage counters are mutable and
// deliberately excluded.
type checksumPayload struct {
	ID                string   `cbor:"1,keyasint"`
	Type              string   `cbor:"2,keyasint"`
	CreatedAt         int64    `cbor:"3,keyasint"`
	CreatedBy         string   `cbor:"4,keyasint"`
	Description       string   `cbor:"5,keyasint"`
	ResourcePatterns  []string `cbor:"6,keyasint"`
	AllowedOperations []string `cbor:"7,keyasint"`
	AllowedHosts      []string `cbor:"8,keyasint"`
	AllowedPorts      []int    `cbor:"9,keyasint"`
	MaxUsageCount     int      `cbor:"10,keyasint"`
	ExpiresAt         int64    `cbor:"11,keyasint"`
	MaxFileSize       int64    `cbor:"12,keyasint"`
	MaxMemory         int64    `cbor:"13,keyasint"`
	MaxCPUTime        int64    `cbor:"14,keyasint"`
}

// tokenMAC computes the keyed BLAKE3 MAC over the token's immutable
// fields. Encoding is deterministic CBOR, so the same fields always
// produce the same bytes.
func (k *Keyring) tokenMAC(t *Token) [checksumSize]byte {
	var expiresAt int64
	if !t.Constraint.ExpiresAt.IsZero() {
		expiresAt = t.Constraint.ExpiresAt.UnixNano()
	}
	payload := checksumPayload{
		ID:                t.ID,
		Type:              string(t.Type),
		CreatedAt:         t.CreatedAt.UnixNano(),
		CreatedBy:         t.CreatedBy,
		Description:       t.Description,
		ResourcePatterns:  t.Constraint.ResourcePatterns,
		AllowedOperations: t.Constraint.AllowedOperations,
		AllowedHosts:      t.Constraint.AllowedHosts,
		AllowedPorts:      t.Constraint.AllowedPorts,
		MaxUsageCount:     t.Constraint.MaxUsageCount,
		ExpiresAt:         expiresAt,
		MaxFileSize:       t.Constraint.MaxFileSize,
		MaxMemory:         t.Constraint.MaxMemory,
		MaxCPUTime:        int64(t.Constraint.MaxCPUTime),
	}

	encoded, err := codec.Marshal(payload)
	if err != nil {
		// The payload is a fixed struct of scalars and slices; the
		// deterministic encoder cannot fail on it.
		panic("capability: encoding checksum payload: " + err.Error())
	}

	hasher, err := blake3.NewKeyed(k.key.Bytes())
	if err != nil {
		panic("capability: keyed hasher init: " + err.Error())
	}
	hasher.Write(encoded)

	var mac [checksumSize]byte
	copy(mac[:], hasher.Sum(nil))
	return mac
}
