package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTempPoolMintsAndReuses(t *testing.T) {
	w := newRecordingWriter()
	pool := NewTempPool(w)

	a, err := pool.Allocate()
	require.NoError(t, err)
	assert.Equal(t, "temp_0", a)

	b, err := pool.Allocate()
	require.NoError(t, err)
	assert.Equal(t, "temp_1", b)

	// Every minted cell was declared exactly once.
	assert.Equal(t, []string{"objective temp_0 ", "objective temp_1 "}, w.setup)

	// A freed cell is reused instead of minting a third.
	require.NoError(t, pool.Free(b))
	c, err := pool.Allocate()
	require.NoError(t, err)
	assert.Equal(t, "temp_1", c)
	assert.Len(t, w.setup, 2)
}

func TestTempPoolCheckoutDiscipline(t *testing.T) {
	pool := NewTempPool(newRecordingWriter())

	// Freeing something never allocated.
	assert.ErrorIs(t, pool.Free("temp_0"), ErrTempPool)

	a, err := pool.Allocate()
	require.NoError(t, err)

	// Double free.
	require.NoError(t, pool.Free(a))
	assert.ErrorIs(t, pool.Free(a), ErrTempPool)
}

func TestTempPoolFinish(t *testing.T) {
	pool := NewTempPool(newRecordingWriter())

	a, err := pool.Allocate()
	require.NoError(t, err)
	assert.ErrorIs(t, pool.Finish(), ErrTempPool)

	require.NoError(t, pool.Free(a))
	assert.NoError(t, pool.Finish())
}
