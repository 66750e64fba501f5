// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bytes"
	"testing"
)

func TestNewFromBytesZerosSource(t *testing.T) {
	source := []byte("session-mac-key-material")
	want := append([]byte(nil), source...)

	buffer, err := NewFromBytes(source)
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	defer buffer.Close()

	if !bytes.Equal(buffer.Bytes(), want) {
		t.Errorf("Bytes = %q, want %q", buffer.Bytes(), want)
	}
	for i, c := range source {
		if c != 0 {
			t.Fatalf("source[%d] = %d, want 0 (caller copy must be zeroed)", i, c)
		}
	}
}

func TestNewRandom(t *testing.T) {
	a, err := NewRandom(32)
	if err != nil {
		t.Fatalf("NewRandom: %v", err)
	}
	defer a.Close()
	b, err := NewRandom(32)
	if err != nil {
		t.Fatalf("NewRandom: %v", err)
	}
	defer b.Close()

	if a.Len() != 32 || b.Len() != 32 {
		t.Fatalf("Len = %d/%d, want 32", a.Len(), b.Len())
	}
	if bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Error("two random buffers produced identical contents")
	}
}

func TestCloseIdempotentAndPanics(t *testing.T) {
	buffer, err := NewFromBytes([]byte("short-lived"))
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}

	if err := buffer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := buffer.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Error("Bytes after Close did not panic")
		}
	}()
	buffer.Bytes()
}

func TestNewRejectsNonPositiveSize(t *testing.T) {
	if _, err := New(0); err == nil {
		t.Error("New(0) should fail")
	}
	if _, err := NewFromBytes(nil); err == nil {
		t.Error("NewFromBytes(nil) should fail")
	}
}
