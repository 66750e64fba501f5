// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package handoff

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/warden-project/warden/lib/secret"
)

// NewSealKey generates a random envelope sealing key in protected
// memory. Both sides of a hand-off boundary must hold the same key;
// how it gets to the peer is the caller's problem (and must not be
// the envelope channel itself).
func NewSealKey() (*secret.Buffer, error) {
	return secret.NewRandom(chacha20poly1305.KeySize)
}

// Seal authenticates and encrypts an envelope with XChaCha20-Poly1305
// under the shared key. The output is base64(nonce || ciphertext).
// The seal key is deliberately separate from any keyring's MAC key:
// the MAC key never leaves its process, while a seal key exists to be
// shared.
func Seal(envelope string, key *secret.Buffer) (string, error) {
	aead, err := chacha20poly1305.NewX(key.Bytes())
	if err != nil {
		return "", fmt.Errorf("sealing envelope: %w", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating seal nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(envelope), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open verifies and decrypts a sealed envelope. Any modification of
// the sealed bytes, or a key mismatch, fails authentication.
func Open(sealed string, key *secret.Buffer) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("decoding sealed envelope base64: %w", err)
	}
	if len(raw) < chacha20poly1305.NonceSizeX {
		return "", fmt.Errorf("sealed envelope truncated: %d bytes", len(raw))
	}
	aead, err := chacha20poly1305.NewX(key.Bytes())
	if err != nil {
		return "", fmt.Errorf("opening envelope: %w", err)
	}
	nonce, ciphertext := raw[:chacha20poly1305.NonceSizeX], raw[chacha20poly1305.NonceSizeX:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("envelope failed authentication: %w", err)
	}
	return string(plaintext), nil
}
