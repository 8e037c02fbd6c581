package client

import (
	"fmt"
	"sync"

	"github.com/researchaccelerator-hub/song-tracker/metrics"
	"github.com/rs/zerolog/log"
)

// KeyRotator hands out API keys from a fixed pool and moves to the next key
// whenever the caller reports a failure. The pool itself is never mutated.
type KeyRotator struct {
	keys  []string
	mu    sync.Mutex
	index int
}

// NewKeyRotator creates a rotator over the given keys, starting at the first one.
func NewKeyRotator(keys []string) (*KeyRotator, error) {
	pool := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			pool = append(pool, k)
		}
	}
	if len(pool) == 0 {
		return nil, fmt.Errorf("at least one YouTube API key is required")
	}
	return &KeyRotator{keys: pool}, nil
}

// Current returns the active key.
func (r *KeyRotator) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.keys[r.index]
}

// Acquire returns the active key together with its index. Pass the index to
// AdvanceFrom when the key fails.
func (r *KeyRotator) Acquire() (string, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.keys[r.index], r.index
}

// Advance moves to the next key, wrapping around at the end of the pool, and
// returns the new index.
func (r *KeyRotator) Advance() int {
	r.mu.Lock()
	idx := r.rotate()
	r.mu.Unlock()

	r.logRotation(idx)
	return idx
}

// AdvanceFrom rotates only if failed is still the active index. Workers that
// report a key another worker already rotated away from leave the pool alone.
// It returns the active index.
func (r *KeyRotator) AdvanceFrom(failed int) int {
	r.mu.Lock()
	if r.index != failed {
		idx := r.index
		r.mu.Unlock()
		return idx
	}
	idx := r.rotate()
	r.mu.Unlock()

	r.logRotation(idx)
	return idx
}

func (r *KeyRotator) rotate() int {
	r.index = (r.index + 1) % len(r.keys)
	return r.index
}

func (r *KeyRotator) logRotation(idx int) {
	metrics.Metrics.KeyRotations.Inc()
	log.Info().Int("key_index", idx).Int("pool_size", len(r.keys)).Msg("Switched to next API key")
}

// Index returns the position of the active key in the pool.
func (r *KeyRotator) Index() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.index
}

// Size returns the number of keys in the pool.
func (r *KeyRotator) Size() int {
	return len(r.keys)
}
