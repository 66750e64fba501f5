// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package capability defines the bearer objects of Warden's
// authorization kernel: constrained, revocable tokens that prove the
// right to perform an operation on a resource.
//
// A Token bundles an identity (random ID, type tag, creation metadata)
// with a Constraint (resource glob patterns, allowed operations, hosts
// and ports, usage quota, expiry, resource limits) and an integrity
// checksum. The checksum is a keyed BLAKE3 MAC over the canonical CBOR
// encoding of the immutable fields, keyed by a per-process session
// secret held in an mlock'd buffer (the Keyring). Any mutation of an
// identity or constraint field after minting flips ValidateIntegrity
// to false.
//
// Tokens are immutable after minting except for their usage counters,
// which advance only through the single Use path. The counters are
// guarded by the token's own mutex, so validity checks and counter
// reads are safe from any goroutine while uses proceed.
//
// The error values at the bottom of the taxonomy are sentinels; every
// failure surfaced by the kernel wraps exactly one of them, so callers
// dispatch with errors.Is and never see a generic failure where an
// authorization verdict is concerned. Absence of proof is always an
// error: nothing in this package fails open.
package capability
