// Package obfstore is a lightly obscured key-value cache for client-side
// state such as "beta access granted, tier X". Values are XORed against a
// locally stored secret and base64-encoded before hitting the backend.
//
// This is obfuscation, not confidentiality: the secret lives in the same
// backend as the data, so anyone with access to the storage can reverse
// it. It exists only to keep casual inspection from turning cached flags
// into something that looks authoritative. The server-side validator and
// allocator remain the sole source of truth; treat every read from here as
// a cache hint, never as a permission.
package obfstore

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// secretKey is where the XOR secret itself is persisted, in plain form.
const secretKey = "__obf_secret"

// Backend is the underlying persistence - a localStorage equivalent.
type Backend interface {
	Load(key string) (string, bool)
	Store(key, value string)
	Delete(key string)
}

type envelope struct {
	Data      string `json:"data"`
	Timestamp int64  `json:"timestamp"`
	Expires   *int64 `json:"expires,omitempty"`
}

type Store struct {
	backend Backend
	secret  []byte

	now func() time.Time
}

// New opens a store over the backend, generating and persisting the
// profile secret on first use.
func New(backend Backend) (*Store, error) {
	secret, err := loadOrCreateSecret(backend)
	if err != nil {
		return nil, err
	}

	return &Store{
		backend: backend,
		secret:  secret,
		now:     time.Now,
	}, nil
}

func loadOrCreateSecret(backend Backend) ([]byte, error) {
	if existing, ok := backend.Load(secretKey); ok {
		secret, err := hex.DecodeString(existing)
		if err == nil && len(secret) > 0 {
			return secret, nil
		}
		// Corrupted secret: previously stored entries are unreadable
		// anyway, so start over.
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate storage secret: %w", err)
	}

	backend.Store(secretKey, hex.EncodeToString(secret))
	return secret, nil
}

// Set serializes value to JSON, obfuscates it, and writes it under key.
// ttl <= 0 stores without expiry. Overwrites any existing entry.
func (s *Store) Set(key string, value interface{}, ttl time.Duration) error {
	plain, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to serialize value: %w", err)
	}

	now := s.now()
	env := envelope{
		Data:      base64.StdEncoding.EncodeToString(xorBytes(plain, s.secret)),
		Timestamp: now.UnixMilli(),
	}

	if ttl > 0 {
		expires := now.Add(ttl).UnixMilli()
		env.Expires = &expires
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}

	s.backend.Store(key, string(raw))
	return nil
}

// Get decodes the entry under key into out. It reports false when the key
// is absent, expired, or unreadable - corrupted entries are removed and
// treated as a miss rather than surfaced as errors.
func (s *Store) Get(key string, out interface{}) bool {
	raw, ok := s.backend.Load(key)
	if !ok {
		return false
	}

	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		s.backend.Delete(key)
		return false
	}

	if env.Expires != nil && s.now().UnixMilli() > *env.Expires {
		s.backend.Delete(key)
		return false
	}

	cipher, err := base64.StdEncoding.DecodeString(env.Data)
	if err != nil {
		s.backend.Delete(key)
		return false
	}

	if err := json.Unmarshal(xorBytes(cipher, s.secret), out); err != nil {
		s.backend.Delete(key)
		return false
	}

	return true
}

// Remove deletes the entry under key.
func (s *Store) Remove(key string) {
	s.backend.Delete(key)
}

// XOR against the repeating secret. Symmetric: applying twice round-trips.
func xorBytes(data, secret []byte) []byte {
	result := make([]byte, len(data))
	for i, b := range data {
		result[i] = b ^ secret[i%len(secret)]
	}
	return result
}
