// Package cache provides the durable stage cache: a key-value store of JSON
// payloads addressed by (stage, fingerprint). Entries are written once on the
// first successful generation for a fingerprint and read on every later run;
// nothing is ever evicted. Staleness is controlled entirely by fingerprint
// changes upstream.
package cache

import "context"

// Store is the stage cache contract. Implementations must publish entries
// atomically per key so a concurrent reader never observes a partial write,
// and must not block Get/Set calls on distinct keys against each other.
type Store interface {
	// Get returns the payload for (stage, key), with false when absent.
	Get(ctx context.Context, stage, key string) ([]byte, bool, error)
	// Set stores the payload for (stage, key). Concurrent writers to the
	// same key are last-writer-wins.
	Set(ctx context.Context, stage, key string, payload []byte) error
}
