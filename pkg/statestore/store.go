// Package statestore defines the Shared State Store contract (§4.A) and its
// backends. The store is assumed process-external and HA; components only
// get monotonic reads within a single connection and must tolerate stale
// reads, retrying on CAS failure. Three backends satisfy the same interface:
// an in-memory one used by every other package's tests, a Redis-backed one
// used in production, and a BoltDB-backed one for single-process
// deployments without a Redis dependency.
package statestore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get/RemainingTTL when a key does not exist.
var ErrNotFound = errors.New("statestore: key not found")

// ErrAlreadyExists is returned by PutIfAbsent when the key is already set.
var ErrAlreadyExists = errors.New("statestore: key already exists")

// Store is the contract every component builds on. All timestamps are
// absolute wall-clock instants; TTLs are whole seconds.
type Store interface {
	// Get returns the raw value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put writes key unconditionally, with no expiry.
	Put(ctx context.Context, key string, value []byte) error

	// PutWithTTL writes key with an expiry ttl from now.
	PutWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// PutIfAbsent atomically writes key only if it does not already exist,
	// returning ErrAlreadyExists otherwise. Used by node registration (§4.B)
	// and module artifact uploads (§4.D) to avoid races.
	PutIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// CompareAndSwap atomically replaces key's value with newValue only if
	// its current value equals oldValue (byte-for-byte); a nil oldValue
	// requires the key to be absent. Returns ErrCASMismatch when the
	// expectation does not hold, including an absent key with a non-nil
	// oldValue.
	CompareAndSwap(ctx context.Context, key string, oldValue, newValue []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// ListByPrefix returns all keys (and values) whose key starts with prefix.
	ListByPrefix(ctx context.Context, prefix string) (map[string][]byte, error)

	// RemainingTTL returns the time left before key expires, or -1 if key
	// has no expiry, or ErrNotFound if key is absent.
	RemainingTTL(ctx context.Context, key string) (time.Duration, error)

	// Close releases the store's connections.
	Close() error
}

// ErrCASMismatch is returned by CompareAndSwap when the stored value does
// not match the expected oldValue.
var ErrCASMismatch = errors.New("statestore: compare-and-swap mismatch")
