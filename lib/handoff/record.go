// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package handoff

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/warden-project/warden/lib/capability"
	"github.com/warden-project/warden/lib/scope"
)

// FormatVersion is the wire format version stamped into every record.
// Decode rejects records from a newer format.
const FormatVersion = 1

// ConstraintRecord is the wire form of a token constraint. Field
// names are protocol constants.
type ConstraintRecord struct {
	ResourcePatterns  []string  `cbor:"resource_patterns,omitempty"  json:"resource_patterns,omitempty"`
	AllowedOperations []string  `cbor:"allowed_operations,omitempty" json:"allowed_operations,omitempty"`
	AllowedHosts      []string  `cbor:"allowed_hosts,omitempty"      json:"allowed_hosts,omitempty"`
	AllowedPorts      []int     `cbor:"allowed_ports,omitempty"      json:"allowed_ports,omitempty"`
	MaxUsageCount     int       `cbor:"max_usage_count,omitempty"    json:"max_usage_count,omitempty"`
	ExpiresAt         time.Time `cbor:"expires_at,omitempty"         json:"expires_at,omitzero"`
	MaxFileSize       int64     `cbor:"max_file_size,omitempty"      json:"max_file_size,omitempty"`
	MaxMemory         int64     `cbor:"max_memory,omitempty"         json:"max_memory,omitempty"`
	MaxCPUTime        int64     `cbor:"max_cpu_time,omitempty"       json:"max_cpu_time,omitempty"`
}

// TokenRecord is the wire form of one token. CapabilityType and
// TokenType are redundant on purpose: the original format carried
// both the map key's type tag and the token's own, and the importer
// cross-checks them.
type TokenRecord struct {
	TokenID        string           `cbor:"token_id"               json:"token_id"`
	CapabilityType string           `cbor:"capability_type"        json:"capability_type"`
	CreatedAt      time.Time        `cbor:"created_at"             json:"created_at"`
	CreatedBy      string           `cbor:"created_by,omitempty"   json:"created_by,omitempty"`
	Description    string           `cbor:"description,omitempty"  json:"description,omitempty"`
	UsageCount     int              `cbor:"usage_count,omitempty"  json:"usage_count,omitempty"`
	LastUsedAt     time.Time        `cbor:"last_used_at,omitempty" json:"last_used_at,omitzero"`
	TokenType      string           `cbor:"token_type"             json:"token_type"`
	Constraints    ConstraintRecord `cbor:"constraints"            json:"constraints"`
}

// Record is the wire form of a scope: identity, parentage (by ID
// only; the tree itself does not travel), and the scope's own tokens
// keyed by capability type.
type Record struct {
	ContextID         string                 `cbor:"context_id"                  json:"context_id"`
	Name              string                 `cbor:"name"                        json:"name"`
	ParentContextID   string                 `cbor:"parent_context_id,omitempty" json:"parent_context_id,omitempty"`
	Capabilities      map[string]TokenRecord `cbor:"capabilities"                json:"capabilities"`
	SerializationTime time.Time              `cbor:"serialization_time"          json:"serialization_time"`
	Version           int                    `cbor:"version"                     json:"version"`
}

// Export flattens a scope's own tokens into a Record. Only currently
// valid tokens travel: an expired, tampered, or exhausted token is
// dropped here rather than shipped for the far side to reject.
// Inherited tokens do not travel either; a hand-off carries exactly
// what the scope itself holds.
func Export(s *scope.Scope, now time.Time) *Record {
	record := &Record{
		ContextID:         s.ID(),
		Name:              s.Name(),
		Capabilities:      make(map[string]TokenRecord),
		SerializationTime: now,
		Version:           FormatVersion,
	}
	if parent := s.Parent(); parent != nil {
		record.ParentContextID = parent.ID()
	}

	for typ, token := range s.AllCapabilities(false) {
		record.Capabilities[string(typ)] = TokenRecord{
			TokenID:        token.ID,
			CapabilityType: string(token.Type),
			CreatedAt:      token.CreatedAt,
			CreatedBy:      token.CreatedBy,
			Description:    token.Description,
			UsageCount:     token.UsageCount(),
			LastUsedAt:     token.LastUsedAt(),
			TokenType:      string(token.Type),
			Constraints: ConstraintRecord{
				ResourcePatterns:  token.Constraint.ResourcePatterns,
				AllowedOperations: token.Constraint.AllowedOperations,
				AllowedHosts:      token.Constraint.AllowedHosts,
				AllowedPorts:      token.Constraint.AllowedPorts,
				MaxUsageCount:     token.Constraint.MaxUsageCount,
				ExpiresAt:         token.Constraint.ExpiresAt,
				MaxFileSize:       token.Constraint.MaxFileSize,
				MaxMemory:         token.Constraint.MaxMemory,
				MaxCPUTime:        int64(token.Constraint.MaxCPUTime),
			},
		}
	}
	return record
}

// ImportOptions configures Import.
type ImportOptions struct {
	// Logger receives a warning per skipped token. Nil means
	// slog.Default().
	Logger *slog.Logger
}

// Import reconstructs a record into a root scope under the given
// keyring. The scope keeps the identity the record names: its ID is
// the record's context_id, so a scope serialized on one side and
// deserialized on the other is the same scope by ID. Each token is
// restored through the keyring's per-type dispatch and re-sealed with
// a local checksum. A token that fails restoration or admission is
// skipped: the error is collected and logged, and the remaining
// tokens still load.
//
// The returned scope is always usable, possibly holding fewer
// capabilities than the record named.
func Import(keyring *capability.Keyring, record *Record, opts ImportOptions) (*scope.Scope, []error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := scope.NewWithID(record.ContextID, record.Name, nil)
	var skipped []error
	for key, entry := range record.Capabilities {
		token, err := restoreToken(keyring, key, entry)
		if err == nil {
			err = s.AddCapability(token)
		}
		if err != nil {
			skipped = append(skipped, fmt.Errorf("capability %q: %w", key, err))
			logger.Warn("skipping capability during hand-off import",
				"capability", key, "token_id", entry.TokenID, "error", err)
		}
	}
	return s, skipped
}

// restoreToken maps one wire entry back to a live token.
func restoreToken(keyring *capability.Keyring, key string, entry TokenRecord) (*capability.Token, error) {
	if entry.CapabilityType != key || entry.TokenType != entry.CapabilityType {
		return nil, fmt.Errorf("%w: type tags disagree (key %q, capability_type %q, token_type %q)",
			capability.ErrValidationFailed, key, entry.CapabilityType, entry.TokenType)
	}
	return keyring.Restore(capability.RestoreSpec{
		ID:          entry.TokenID,
		Type:        capability.Type(entry.CapabilityType),
		CreatedAt:   entry.CreatedAt,
		CreatedBy:   entry.CreatedBy,
		Description: entry.Description,
		UsageCount:  entry.UsageCount,
		LastUsedAt:  entry.LastUsedAt,
		Constraint: capability.Constraint{
			ResourcePatterns:  entry.Constraints.ResourcePatterns,
			AllowedOperations: entry.Constraints.AllowedOperations,
			AllowedHosts:      entry.Constraints.AllowedHosts,
			AllowedPorts:      entry.Constraints.AllowedPorts,
			MaxUsageCount:     entry.Constraints.MaxUsageCount,
			ExpiresAt:         entry.Constraints.ExpiresAt,
			MaxFileSize:       entry.Constraints.MaxFileSize,
			MaxMemory:         entry.Constraints.MaxMemory,
			MaxCPUTime:        time.Duration(entry.Constraints.MaxCPUTime),
		},
	})
}
