package client

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKeyRotator(t *testing.T) {
	_, err := NewKeyRotator(nil)
	assert.Error(t, err)

	_, err = NewKeyRotator([]string{"", ""})
	assert.Error(t, err)

	r, err := NewKeyRotator([]string{"a", "", "b"})
	require.NoError(t, err)
	assert.Equal(t, 2, r.Size())
	assert.Equal(t, "a", r.Current())
	assert.Equal(t, 0, r.Index())
}

func TestKeyRotator_AdvanceWrapsAround(t *testing.T) {
	keys := []string{"k0", "k1", "k2"}
	r, err := NewKeyRotator(keys)
	require.NoError(t, err)

	for n := 1; n <= 10; n++ {
		r.Advance()
		assert.Equal(t, n%len(keys), r.Index())
		assert.Equal(t, keys[n%len(keys)], r.Current())
	}
}

func TestKeyRotator_SingleKey(t *testing.T) {
	r, err := NewKeyRotator([]string{"only"})
	require.NoError(t, err)

	r.Advance()
	r.Advance()
	assert.Equal(t, 0, r.Index())
	assert.Equal(t, "only", r.Current())
}

func TestKeyRotator_ConcurrentAdvance(t *testing.T) {
	r, err := NewKeyRotator([]string{"a", "b", "c", "d"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Advance()
		}()
	}
	wg.Wait()

	assert.Equal(t, 100%4, r.Index())
}

func TestKeyRotator_AdvanceFromRotatesOncePerFailedKey(t *testing.T) {
	r, err := NewKeyRotator([]string{"a", "b", "c"})
	require.NoError(t, err)

	key, idx := r.Acquire()
	assert.Equal(t, "a", key)
	assert.Equal(t, 0, idx)

	assert.Equal(t, 1, r.AdvanceFrom(idx))
	// a second report of the same exhausted key keeps the healthy one
	assert.Equal(t, 1, r.AdvanceFrom(idx))
	assert.Equal(t, "b", r.Current())

	assert.Equal(t, 2, r.AdvanceFrom(1))
}

func TestKeyRotator_ConcurrentAdvanceFromSameKey(t *testing.T) {
	r, err := NewKeyRotator([]string{"a", "b", "c", "d"})
	require.NoError(t, err)
	_, failed := r.Acquire()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.AdvanceFrom(failed)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, r.Index())
}

func TestErrorHelpers(t *testing.T) {
	te := &TransportError{Op: "search", StatusCode: 403, Err: errors.New("quota")}
	wrapped := errors.Join(errors.New("context"), te)
	assert.True(t, IsTransport(wrapped))
	assert.False(t, IsData(wrapped))
	assert.Contains(t, te.Error(), "status 403")

	de := &DataError{Op: "statistics", VideoID: "v1", Field: "statistics"}
	assert.True(t, IsData(de))
	assert.Equal(t, "youtube statistics: video v1: missing statistics", de.Error())
}
