package obfstore

import (
	"encoding/json"
	"os"
	"sync"
)

// MemoryBackend is a map-backed Backend, used in tests and ephemeral
// sessions.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]string
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]string)}
}

func (b *MemoryBackend) Load(key string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	value, ok := b.entries[key]
	return value, ok
}

func (b *MemoryBackend) Store(key, value string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[key] = value
}

func (b *MemoryBackend) Delete(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, key)
}

// FileBackend persists entries as a single JSON file, standing in for
// browser localStorage in CLI and desktop contexts. Writes flush
// immediately; load errors leave the store empty rather than failing.
type FileBackend struct {
	mu      sync.Mutex
	path    string
	entries map[string]string
}

func NewFileBackend(path string) *FileBackend {
	b := &FileBackend{
		path:    path,
		entries: make(map[string]string),
	}

	if raw, err := os.ReadFile(path); err == nil {
		// Unreadable files start fresh; the store is a cache.
		json.Unmarshal(raw, &b.entries)
	}

	return b
}

func (b *FileBackend) Load(key string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	value, ok := b.entries[key]
	return value, ok
}

func (b *FileBackend) Store(key, value string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[key] = value
	b.flush()
}

func (b *FileBackend) Delete(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, key)
	b.flush()
}

func (b *FileBackend) flush() {
	raw, err := json.Marshal(b.entries)
	if err != nil {
		return
	}
	os.WriteFile(b.path, raw, 0o600)
}
