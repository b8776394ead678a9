package storage

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when the backing store cannot be reached.
var ErrUnavailable = errors.New("credential store unavailable")

// Store is the credential key/value backend.
//
// SetMulti and Delete must apply all keys of a single call atomically: a concurrent Get
// observes either every change of the call or none of them.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	// SetMulti writes every key/value pair in values.
	SetMulti(ctx context.Context, values map[string]string) error
	// Delete removes keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
}
