// Package admission deduplicates concurrent workflow executions and enforces
// per-owner usage quotas before any execution work begins.
package admission

import (
	"context"
	"sync"
)

// Registry is the process- or cluster-wide set of in-flight admission keys. Reserve
// must be atomic with respect to concurrent callers of the same key; Release must
// be idempotent.
type Registry interface {
	// Reserve inserts the key and reports whether the insertion happened. A false
	// return means the key was already present.
	Reserve(ctx context.Context, key string) (bool, error)

	// Release removes the key. Removing an absent key is not an error.
	Release(ctx context.Context, key string) error
}

// MemoryRegistry is a mutex-guarded in-process Registry.
type MemoryRegistry struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{keys: make(map[string]struct{})}
}

func (r *MemoryRegistry) Reserve(_ context.Context, key string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.keys[key]; exists {
		return false, nil
	}

	r.keys[key] = struct{}{}

	return true, nil
}

func (r *MemoryRegistry) Release(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.keys, key)

	return nil
}

// Contains reports whether a key is currently reserved. Intended for tests.
func (r *MemoryRegistry) Contains(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, exists := r.keys[key]

	return exists
}
