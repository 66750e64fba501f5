// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package capability

import (
	"testing"
	"time"
)

func TestConstraintMatchesResource(t *testing.T) {
	c := Constraint{ResourcePatterns: []string{"*.txt"}}

	if !c.MatchesResource("a.txt") {
		t.Error(`"a.txt" should match "*.txt"`)
	}
	if c.MatchesResource("a.csv") {
		t.Error(`"a.csv" should not match "*.txt"`)
	}
}

func TestConstraintEmptyIsUnrestricted(t *testing.T) {
	// Empty axes are deliberately permissive: restriction is opt-in.
	// The token still has to exist, validate, and be unexpired for
	// anything to be allowed.
	var c Constraint

	if !c.MatchesResource("/etc/passwd") {
		t.Error("empty ResourcePatterns must match every resource")
	}
	if !c.AllowsOperation("delete") {
		t.Error("empty AllowedOperations must allow every operation")
	}
	if !c.AllowsHost("evil.example.com") {
		t.Error("empty AllowedHosts must allow every host")
	}
	if !c.AllowsPort(22) {
		t.Error("empty AllowedPorts must allow every port")
	}
	if c.Expired(time.Now()) {
		t.Error("zero ExpiresAt must never expire")
	}
}

func TestConstraintOperations(t *testing.T) {
	c := Constraint{AllowedOperations: []string{"read", "list"}}

	if !c.AllowsOperation("read") {
		t.Error("read should be allowed")
	}
	if c.AllowsOperation("write") {
		t.Error("write should be denied")
	}
}

func TestConstraintHostsAndPorts(t *testing.T) {
	c := Constraint{
		AllowedHosts: []string{"*.example.com", "localhost"},
		AllowedPorts: []int{443, 8080},
	}

	if !c.AllowsHost("api.example.com") {
		t.Error("api.example.com should be allowed")
	}
	if !c.AllowsHost("localhost") {
		t.Error("localhost should be allowed")
	}
	if c.AllowsHost("example.org") {
		t.Error("example.org should be denied")
	}
	if !c.AllowsPort(443) {
		t.Error("port 443 should be allowed")
	}
	if c.AllowsPort(22) {
		t.Error("port 22 should be denied")
	}
}

func TestConstraintExpiry(t *testing.T) {
	deadline := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := Constraint{ExpiresAt: deadline}

	if c.Expired(deadline.Add(-time.Second)) {
		t.Error("not expired before the deadline")
	}
	if c.Expired(deadline) {
		t.Error("not expired at exactly the deadline")
	}
	if !c.Expired(deadline.Add(time.Nanosecond)) {
		t.Error("expired after the deadline")
	}
}
