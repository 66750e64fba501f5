// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

type sample struct {
	Name   string   `cbor:"name"`
	Count  int      `cbor:"count"`
	Labels []string `cbor:"labels,omitempty"`
}

func TestRoundTrip(t *testing.T) {
	in := sample{Name: "file", Count: 3, Labels: []string{"read", "write"}}

	data, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var out sample
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.Name != in.Name || out.Count != in.Count || len(out.Labels) != 2 {
		t.Errorf("round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestDeterministicEncoding(t *testing.T) {
	// Map iteration order is randomized in Go; the deterministic
	// encoder must still produce identical bytes every time.
	value := map[string]int{"zeta": 1, "alpha": 2, "mid": 3}

	first, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for i := 0; i < 16; i++ {
		again, err := Marshal(value)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("encoding not deterministic: %x vs %x", first, again)
		}
	}
}

func TestUnknownFieldsIgnored(t *testing.T) {
	type wide struct {
		Name  string `cbor:"name"`
		Extra string `cbor:"extra"`
	}
	data, err := Marshal(wide{Name: "n", Extra: "future field"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var narrow struct {
		Name string `cbor:"name"`
	}
	if err := Unmarshal(data, &narrow); err != nil {
		t.Fatalf("Unmarshal with unknown field: %v", err)
	}
	if narrow.Name != "n" {
		t.Errorf("Name = %q, want n", narrow.Name)
	}
}
