// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package handoff moves a scope's capabilities across a process
// boundary. The exporting side flattens a scope into a portable
// Record, encodes it as deterministic CBOR behind a one-byte
// compression tag, and base64s the result into an envelope string.
// The importing side reverses that and reconstructs each token under
// its own keyring, skipping (and reporting) any record it cannot
// safely restore.
//
// Integrity checksums never travel. A MAC is only meaningful against
// the keyring that minted it, so the wire format carries the token's
// fields and the importer re-mints the checksum locally. An envelope
// is therefore NOT tamper-proof by itself; for a boundary where the
// peer or the channel is untrusted, wrap the envelope with Seal, which
// authenticates it under an explicitly shared key.
//
// Import is per-token best-effort: a malformed or unknown-typed entry
// is skipped and collected, and every other token in the record still
// loads. Authorization downstream of a skipped token fails closed at
// check time.
package handoff
