package storage

import (
	"context"

	"github.com/google/uuid"
)

// ScopedStore prefixes every key with "<scope>:" before delegating, so independent
// sessions can share one backend without seeing each other's credentials.
type ScopedStore struct {
	base  Store
	scope string
}

// NewScopedStore wraps base under scope. An empty scope gets a fresh random UUID, which
// gives the store tab-like lifetime: nothing else will ever address the same keys.
func NewScopedStore(base Store, scope string) *ScopedStore {
	if scope == "" {
		scope = uuid.NewString()
	}
	return &ScopedStore{base: base, scope: scope}
}

// Scope returns the namespace this store writes under.
func (s *ScopedStore) Scope() string {
	return s.scope
}

func (s *ScopedStore) key(k string) string {
	return s.scope + ":" + k
}

func (s *ScopedStore) Get(ctx context.Context, key string) (string, bool, error) {
	return s.base.Get(ctx, s.key(key))
}

func (s *ScopedStore) SetMulti(ctx context.Context, values map[string]string) error {
	scoped := make(map[string]string, len(values))
	for k, v := range values {
		scoped[s.key(k)] = v
	}
	return s.base.SetMulti(ctx, scoped)
}

func (s *ScopedStore) Delete(ctx context.Context, keys ...string) error {
	scoped := make([]string, len(keys))
	for i, k := range keys {
		scoped[i] = s.key(k)
	}
	return s.base.Delete(ctx, scoped...)
}
