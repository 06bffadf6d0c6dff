// Package store provides the key-value storage abstraction backing room
// records and throttle windows. Two implementations exist: an in-process map
// for single-node deployments and a Redis-backed one for shared state.
package store

import "context"

// Store is a minimal key-value contract. Values are opaque bytes; callers own
// their own serialization.
type Store interface {
	// Get returns the value for key. The second return is false when the key
	// does not exist.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set writes the value for key, overwriting any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// ForEach visits every key with the given prefix. Returning an error from
	// fn stops the iteration and is propagated to the caller.
	ForEach(ctx context.Context, prefix string, fn func(key string, value []byte) error) error
}
