// Package persistence provides pluggable key/value storage substrates.
//
// The core only depends on the four-method Adapter contract plus "eventually
// durable". One adapter is selected at startup; callers never branch on the
// concrete substrate. Adapter failures are reported as errors so callers can
// degrade to in-memory-only operation instead of failing the request.
package persistence

import "errors"

var (
	// ErrNotFound indicates the key does not exist. Absence is normal,
	// not fatal: callers treat it as an empty result.
	ErrNotFound = errors.New("key not found")

	// ErrUnavailable indicates the storage substrate failed. Callers log
	// the cause and continue with degraded, in-memory-only behavior.
	ErrUnavailable = errors.New("persistence adapter unavailable")
)

// Adapter is the storage substrate contract.
//
// Keys are slash-separated paths (e.g. "knowledge/entry/<id>"). List returns
// every stored key with the given prefix, in no particular order.
type Adapter interface {
	// Read returns the value stored under key, or ErrNotFound.
	Read(key string) ([]byte, error)

	// Write stores value under key, overwriting any previous value.
	Write(key string, value []byte) error

	// List returns all keys with the given prefix.
	List(prefix string) ([]string, error)

	// Delete removes key. Deleting a missing key is a no-op.
	Delete(key string) error
}
