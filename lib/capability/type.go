// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package capability

import "fmt"

// Type tags the privileged effect a token authorizes. A scope holds at
// most one token per type; resource wrappers request the type matching
// their effect.
type Type string

const (
	// TypeFile gates filesystem reads, writes, and deletes.
	TypeFile Type = "file"

	// TypeNetwork gates outbound connections, constrained by host
	// patterns and port lists.
	TypeNetwork Type = "network"

	// TypeMath gates numeric operations with resource limits (the
	// sandboxed language meters compute through this).
	TypeMath Type = "math"

	// TypeSubprocess gates spawning child processes.
	TypeSubprocess Type = "subprocess"
)

// ParseType validates a wire-format type tag. Unknown tags are
// rejected: the hand-off importer must not reconstruct a token whose
// effect this kernel does not understand.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeFile, TypeNetwork, TypeMath, TypeSubprocess:
		return Type(s), nil
	}
	return "", fmt.Errorf("%w: unknown capability type %q", ErrValidationFailed, s)
}

func (t Type) String() string { return string(t) }
