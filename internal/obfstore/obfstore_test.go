package obfstore

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"
)

type accessGrant struct {
	Tier      string `json:"tier"`
	Code      string `json:"code"`
	GrantedAt int64  `json:"granted_at"`
}

func TestRoundTrip(t *testing.T) {
	store, err := New(NewMemoryBackend())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	in := accessGrant{Tier: "early", Code: "TEST-BETA-123", GrantedAt: 1700000000}
	if err := store.Set("beta_access", in, 0); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	var out accessGrant
	if !store.Get("beta_access", &out) {
		t.Fatal("Get reported a miss for a stored key")
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("round trip mismatch: stored %+v, got %+v", in, out)
	}
}

func TestMissingKey(t *testing.T) {
	store, err := New(NewMemoryBackend())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	var out accessGrant
	if store.Get("never_set", &out) {
		t.Fatal("Get reported a hit for a key that was never stored")
	}
}

func TestStoredFormIsObscured(t *testing.T) {
	backend := NewMemoryBackend()
	store, err := New(backend)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if err := store.Set("k", accessGrant{Code: "SECRET-CODE"}, 0); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	raw, ok := backend.Load("k")
	if !ok {
		t.Fatal("backend has no entry for the stored key")
	}

	// The envelope is plain JSON, but the payload inside it is not.
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		t.Fatalf("stored entry is not an envelope: %v", err)
	}
	if strings.Contains(env.Data, "SECRET-CODE") {
		t.Fatal("payload appears in cleartext in the stored envelope")
	}
	if env.Timestamp == 0 {
		t.Fatal("envelope should carry a write timestamp")
	}
}

func TestExpiryIsAMiss(t *testing.T) {
	backend := NewMemoryBackend()
	store, err := New(backend)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	current := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }

	if err := store.Set("session", accessGrant{Tier: "early"}, 10*time.Minute); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	var out accessGrant
	if !store.Get("session", &out) {
		t.Fatal("entry should be readable before expiry")
	}

	current = current.Add(11 * time.Minute)

	if store.Get("session", &out) {
		t.Fatal("expired entry should read as a miss")
	}
	if _, ok := backend.Load("session"); ok {
		t.Fatal("expired entry should be removed from the backend")
	}
}

func TestCorruptionIsAMiss(t *testing.T) {
	cases := map[string]string{
		"not json":      "%%%garbage%%%",
		"bad base64":    `{"data":"!!!not-base64!!!","timestamp":1700000000000}`,
		"wrong payload": `{"data":"aGVsbG8=","timestamp":1700000000000}`,
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			backend := NewMemoryBackend()
			store, err := New(backend)
			if err != nil {
				t.Fatalf("New returned error: %v", err)
			}

			backend.Store("k", raw)

			var out accessGrant
			if store.Get("k", &out) {
				t.Fatal("corrupted entry should read as a miss")
			}
			if _, ok := backend.Load("k"); ok {
				t.Fatal("corrupted entry should be removed")
			}
		})
	}
}

func TestRemove(t *testing.T) {
	store, err := New(NewMemoryBackend())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if err := store.Set("k", accessGrant{}, 0); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	store.Remove("k")

	var out accessGrant
	if store.Get("k", &out) {
		t.Fatal("removed entry should read as a miss")
	}
}

func TestSecretPersistsAcrossOpens(t *testing.T) {
	backend := NewMemoryBackend()

	first, err := New(backend)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if err := first.Set("k", accessGrant{Tier: "early"}, 0); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	// Reopening over the same backend must reuse the stored secret, so
	// earlier entries stay readable.
	second, err := New(backend)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	var out accessGrant
	if !second.Get("k", &out) {
		t.Fatal("entry unreadable after reopening the store")
	}
	if out.Tier != "early" {
		t.Fatalf("unexpected value after reopen: %+v", out)
	}
}

func TestFileBackendPersists(t *testing.T) {
	path := t.TempDir() + "/state.json"

	first := NewFileBackend(path)
	store, err := New(first)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if err := store.Set("k", accessGrant{Code: "DISK"}, 0); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	reopened, err := New(NewFileBackend(path))
	if err != nil {
		t.Fatalf("New over reopened file returned error: %v", err)
	}

	var out accessGrant
	if !reopened.Get("k", &out) {
		t.Fatal("entry unreadable after reloading the file backend")
	}
	if out.Code != "DISK" {
		t.Fatalf("unexpected value from file backend: %+v", out)
	}
}
