// Package storage implements the gateway's flow tables (spec §3.1-3.4, §9):
// registered clients, authorization codes, device-authorization requests and
// refresh tokens. The reference implementation is an in-memory KVStore; a
// Redis-backed KVStore is provided for horizontal scale, behind the same
// small interface (spec §9: "put(key, value, ttl), get(key),
// compare_and_delete(key)").
package storage

import (
	"context"
	"time"
)

// KVStore is the minimal interface the OAuth flow tables are built on. All
// operations are safe for concurrent use.
type KVStore interface {
	// Put stores value under key with the given TTL (0 = no expiry).
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns the stored value, or ok=false if absent or expired.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Delete removes key unconditionally.
	Delete(ctx context.Context, key string) error
	// CompareAndDelete atomically reads the current value and deletes the
	// key only if it is present, returning the value that was deleted. This
	// backs the authorization-code "mark used and fetch" invariant: a
	// second caller racing for the same code observes ok=false.
	CompareAndDelete(ctx context.Context, key string) (value []byte, ok bool, err error)
}
