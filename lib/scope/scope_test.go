// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package scope

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/warden-project/warden/lib/capability"
	"github.com/warden-project/warden/lib/clock"
	"github.com/warden-project/warden/lib/testutil"
)

func testKeyring(t *testing.T, c clock.Clock) *capability.Keyring {
	t.Helper()
	keyring, err := capability.NewKeyring(capability.KeyringOptions{Clock: c})
	if err != nil {
		t.Fatalf("NewKeyring: %v", err)
	}
	t.Cleanup(func() { keyring.Close() })
	return keyring
}

func mintFile(t *testing.T, keyring *capability.Keyring, patterns, operations []string) *capability.Token {
	t.Helper()
	token, err := keyring.Mint(capability.TokenSpec{
		Type:              capability.TypeFile,
		ResourcePatterns:  patterns,
		AllowedOperations: operations,
	})
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	return token
}

func TestAddAndLookup(t *testing.T) {
	keyring := testKeyring(t, nil)
	root := New("root", nil)

	token := mintFile(t, keyring, []string{"/tmp/*.txt"}, []string{"read"})
	if err := root.AddCapability(token); err != nil {
		t.Fatalf("AddCapability: %v", err)
	}

	if !root.HasCapability(capability.TypeFile, true) {
		t.Error("scope should have the file capability")
	}
	got, err := root.Capability(capability.TypeFile, true)
	if err != nil {
		t.Fatalf("Capability: %v", err)
	}
	if got.ID != token.ID {
		t.Errorf("Capability returned token %s, want %s", got.ID, token.ID)
	}

	if root.HasCapability(capability.TypeNetwork, true) {
		t.Error("scope should not have a network capability")
	}
	if _, err := root.Capability(capability.TypeNetwork, true); !errors.Is(err, capability.ErrNotFound) {
		t.Errorf("missing type: got %v, want ErrNotFound", err)
	}
}

func TestAddRejectsInvalidToken(t *testing.T) {
	fake := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	keyring := testKeyring(t, fake)
	root := New("root", nil)

	token, err := keyring.Mint(capability.TokenSpec{Type: capability.TypeFile, ExpiresIn: time.Minute})
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	fake.Advance(2 * time.Minute)

	if err := root.AddCapability(token); !errors.Is(err, capability.ErrExpired) {
		t.Errorf("adding expired token: got %v, want ErrExpired", err)
	}
	if root.HasCapability(capability.TypeFile, true) {
		t.Error("rejected token must not be present")
	}
}

func TestLastWriteWinsPerType(t *testing.T) {
	keyring := testKeyring(t, nil)
	root := New("root", nil)

	first := mintFile(t, keyring, []string{"/a/**"}, nil)
	second := mintFile(t, keyring, []string{"/b/**"}, nil)

	if err := root.AddCapability(first); err != nil {
		t.Fatal(err)
	}
	if err := root.AddCapability(second); err != nil {
		t.Fatal(err)
	}

	got, err := root.Capability(capability.TypeFile, false)
	if err != nil {
		t.Fatalf("Capability: %v", err)
	}
	if got.ID != second.ID {
		t.Error("second add should replace the first (last write wins)")
	}
}

func TestParentInheritance(t *testing.T) {
	keyring := testKeyring(t, nil)
	parent := New("parent", nil)
	child := parent.Child("child")

	token := mintFile(t, keyring, nil, nil)
	if err := parent.AddCapability(token); err != nil {
		t.Fatal(err)
	}

	// Child holds zero local tokens but inherits through the chain.
	if !child.HasCapability(capability.TypeFile, true) {
		t.Error("child should inherit the parent's capability")
	}
	if child.HasCapability(capability.TypeFile, false) {
		t.Error("without checkParents the child has nothing")
	}
}

func TestHierarchicalShadowing(t *testing.T) {
	keyring := testKeyring(t, nil)
	parent := New("parent", nil)
	child := parent.Child("child")

	broad := mintFile(t, keyring, []string{"/**"}, nil)
	narrow := mintFile(t, keyring, []string{"/tmp/**"}, nil)

	if err := parent.AddCapability(broad); err != nil {
		t.Fatal(err)
	}
	if err := child.AddCapability(narrow); err != nil {
		t.Fatal(err)
	}

	got, err := child.Capability(capability.TypeFile, true)
	if err != nil {
		t.Fatalf("Capability: %v", err)
	}
	if got.ID != narrow.ID {
		t.Error("child's local token must shadow the parent's")
	}

	// The narrower local token decides, even though the parent's
	// would allow the access.
	if child.CanAccess(capability.TypeFile, "/etc/passwd", "read") {
		t.Error("shadowing token's denial must not fall through to the parent")
	}

	// After the child scope ends, the parent's token is visible
	// again, unchanged.
	if err := child.Close(); err != nil {
		t.Fatal(err)
	}
	got, err = parent.Capability(capability.TypeFile, true)
	if err != nil {
		t.Fatalf("Capability after child close: %v", err)
	}
	if got.ID != broad.ID || got.UsageCount() != 0 {
		t.Error("parent token changed across child lifecycle")
	}
}

func TestInvalidLocalEvictedAndParentWins(t *testing.T) {
	fake := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	keyring := testKeyring(t, fake)
	parent := New("parent", nil)
	child := parent.Child("child")

	durable := mintFile(t, keyring, nil, nil)
	if err := parent.AddCapability(durable); err != nil {
		t.Fatal(err)
	}
	ephemeral, err := keyring.Mint(capability.TokenSpec{Type: capability.TypeFile, ExpiresIn: time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	if err := child.AddCapability(ephemeral); err != nil {
		t.Fatal(err)
	}

	fake.Advance(2 * time.Minute)

	got, err := child.Capability(capability.TypeFile, true)
	if err != nil {
		t.Fatalf("Capability: %v", err)
	}
	if got.ID != durable.ID {
		t.Error("expired local token should be evicted, parent token returned")
	}
	// The eviction is real, not just a filtered view.
	if _, err := child.CapabilityUnchecked(capability.TypeFile, false); !errors.Is(err, capability.ErrNotFound) {
		t.Error("expired local token should have been deleted from the map")
	}
}

func TestResolutionReportsNearestFailure(t *testing.T) {
	fake := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	keyring := testKeyring(t, fake)
	root := New("root", nil)

	token, err := keyring.Mint(capability.TokenSpec{Type: capability.TypeFile, ExpiresIn: time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	if err := root.AddCapability(token); err != nil {
		t.Fatal(err)
	}
	fake.Advance(2 * time.Minute)

	if _, err := root.Capability(capability.TypeFile, true); !errors.Is(err, capability.ErrExpired) {
		t.Errorf("resolution error: got %v, want ErrExpired", err)
	}
	// The eviction happened, so a second lookup has nothing to blame.
	if _, err := root.Capability(capability.TypeFile, true); !errors.Is(err, capability.ErrNotFound) {
		t.Errorf("second resolution: got %v, want ErrNotFound", err)
	}
}

func TestCapabilityUncheckedSkipsValidity(t *testing.T) {
	fake := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	keyring := testKeyring(t, fake)
	root := New("root", nil)

	token, err := keyring.Mint(capability.TokenSpec{Type: capability.TypeFile, ExpiresIn: time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	if err := root.AddCapability(token); err != nil {
		t.Fatal(err)
	}
	fake.Advance(2 * time.Minute)

	got, err := root.CapabilityUnchecked(capability.TypeFile, true)
	if err != nil {
		t.Fatalf("CapabilityUnchecked: %v", err)
	}
	if got.IsValid() {
		t.Error("token should be invalid; unchecked lookup must still return it")
	}
}

func TestUseCapabilityQuotaUnderConcurrency(t *testing.T) {
	keyring := testKeyring(t, nil)
	root := New(testutil.UniqueID("quota"), nil)

	const quota = 50
	token, err := keyring.Mint(capability.TokenSpec{
		Type:          capability.TypeFile,
		MaxUsageCount: quota,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := root.AddCapability(token); err != nil {
		t.Fatal(err)
	}

	const workers = 8
	const attempts = 20 // workers*attempts > quota
	var successes sync.WaitGroup
	var successCount sync.Mutex
	succeeded := 0

	successes.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer successes.Done()
			for i := 0; i < attempts; i++ {
				if err := root.UseCapability(capability.TypeFile, "/tmp/a", "read"); err == nil {
					successCount.Lock()
					succeeded++
					successCount.Unlock()
				}
			}
		}()
	}
	successes.Wait()

	if succeeded != quota {
		t.Errorf("successful uses = %d, want exactly %d", succeeded, quota)
	}
}

// Validity checks must be safe to run from any goroutine while uses
// advance the token's counters; the race detector keeps this honest.
func TestConcurrentCheckAndUse(t *testing.T) {
	keyring := testKeyring(t, nil)
	root := New(testutil.UniqueID("check-use"), nil)

	const uses = 500
	token, err := keyring.Mint(capability.TokenSpec{
		Type:             capability.TypeFile,
		ResourcePatterns: []string{"/tmp/**"},
		MaxUsageCount:    uses + 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := root.AddCapability(token); err != nil {
		t.Fatal(err)
	}

	stop := make(chan struct{})
	var readers sync.WaitGroup
	readers.Add(4)
	for r := 0; r < 4; r++ {
		go func() {
			defer readers.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				if !root.CanAccess(capability.TypeFile, "/tmp/a.txt", "read") {
					t.Error("access denied while the token is under quota")
					return
				}
			}
		}()
	}

	for i := 0; i < uses; i++ {
		if err := root.UseCapability(capability.TypeFile, "/tmp/a.txt", "read"); err != nil {
			t.Fatalf("use %d: %v", i, err)
		}
	}
	close(stop)
	readers.Wait()

	if got := token.UsageCount(); got != uses {
		t.Errorf("UsageCount = %d, want %d", got, uses)
	}
}

func TestUseCapabilityErrors(t *testing.T) {
	keyring := testKeyring(t, nil)
	root := New("root", nil)

	if err := root.UseCapability(capability.TypeFile, "/tmp/a", "read"); !errors.Is(err, capability.ErrNotFound) {
		t.Errorf("no token: got %v, want ErrNotFound", err)
	}

	token := mintFile(t, keyring, []string{"/tmp/**"}, []string{"read"})
	if err := root.AddCapability(token); err != nil {
		t.Fatal(err)
	}
	if err := root.UseCapability(capability.TypeFile, "/etc/passwd", "read"); !errors.Is(err, capability.ErrValidationFailed) {
		t.Errorf("denied resource: got %v, want ErrValidationFailed", err)
	}
	if err := root.UseCapability(capability.TypeFile, "/tmp/a", "read"); err != nil {
		t.Errorf("allowed use: %v", err)
	}
	if token.UsageCount() != 1 {
		t.Errorf("UsageCount = %d, want 1", token.UsageCount())
	}
}

func TestAllCapabilitiesMerge(t *testing.T) {
	keyring := testKeyring(t, nil)
	parent := New("parent", nil)
	child := parent.Child("child")

	parentFile := mintFile(t, keyring, []string{"/parent/**"}, nil)
	network, err := keyring.Mint(capability.TokenSpec{Type: capability.TypeNetwork})
	if err != nil {
		t.Fatal(err)
	}
	childFile := mintFile(t, keyring, []string{"/child/**"}, nil)

	if err := parent.AddCapability(parentFile); err != nil {
		t.Fatal(err)
	}
	if err := parent.AddCapability(network); err != nil {
		t.Fatal(err)
	}
	if err := child.AddCapability(childFile); err != nil {
		t.Fatal(err)
	}

	all := child.AllCapabilities(true)
	if len(all) != 2 {
		t.Fatalf("merged capabilities = %d, want 2", len(all))
	}
	if all[capability.TypeFile].ID != childFile.ID {
		t.Error("local file token must overlay the parent's")
	}
	if all[capability.TypeNetwork].ID != network.ID {
		t.Error("parent network token missing from the merge")
	}

	localOnly := child.AllCapabilities(false)
	if len(localOnly) != 1 {
		t.Errorf("local capabilities = %d, want 1", len(localOnly))
	}
}

func TestCloseDetachesAndSweeps(t *testing.T) {
	fake := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	keyring := testKeyring(t, fake)
	parent := New("parent", nil)
	child := parent.Child("child")

	token, err := keyring.Mint(capability.TokenSpec{Type: capability.TypeFile, ExpiresIn: time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	if err := child.AddCapability(token); err != nil {
		t.Fatal(err)
	}
	fake.Advance(2 * time.Minute)

	closed := false
	child.OnClose(func(*Scope) { closed = true })

	if err := child.Close(); err != nil {
		t.Fatal(err)
	}
	if !closed {
		t.Error("on-close hook did not run")
	}
	if !child.Closed() {
		t.Error("Closed() should report true")
	}
	if _, err := child.CapabilityUnchecked(capability.TypeFile, false); !errors.Is(err, capability.ErrNotFound) {
		t.Error("expired token should be swept on close")
	}

	// Idempotent, including re-detaching from the parent.
	if err := child.Close(); err != nil {
		t.Fatal(err)
	}

	if err := child.AddCapability(mintFile(t, keyring, nil, nil)); !errors.Is(err, ErrClosed) {
		t.Errorf("add after close: got %v, want ErrClosed", err)
	}
}

func TestSweepExpired(t *testing.T) {
	fake := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	keyring := testKeyring(t, fake)
	root := New("root", nil)

	short, err := keyring.Mint(capability.TokenSpec{Type: capability.TypeFile, ExpiresIn: time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	durable, err := keyring.Mint(capability.TokenSpec{Type: capability.TypeNetwork})
	if err != nil {
		t.Fatal(err)
	}
	if err := root.AddCapability(short); err != nil {
		t.Fatal(err)
	}
	if err := root.AddCapability(durable); err != nil {
		t.Fatal(err)
	}

	fake.Advance(2 * time.Minute)

	if removed := root.SweepExpired(); removed != 1 {
		t.Errorf("SweepExpired removed %d, want 1", removed)
	}
	if !root.HasCapability(capability.TypeNetwork, false) {
		t.Error("unexpired token must survive the sweep")
	}
}
