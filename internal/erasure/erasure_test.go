package erasure

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alexhalogen/crystalarchive/internal/types"
)

func randomBytes(n int, seed uint64) []byte {
	r := rand.New(rand.NewPCG(seed, 0))
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(r.Uint32())
	}
	return b
}

func TestPlan(t *testing.T) {
	tests := []struct {
		length   int
		overhead float64
		size     int
		parity   bool
		want     Layout
	}{
		{0, 0.25, 256, true, Layout{1, 1, 256}},
		{5030, 0.25, 256, true, Layout{20, 5, 256}},
		{5030, 0.125, 512, true, Layout{10, 2, 512}},
		{5030, 0.25, 256, false, Layout{20, 0, 256}},
		{256 * 256, 0.25, 256, true, Layout{128, 32, 512}},
	}
	for _, tc := range tests {
		got, err := Plan(tc.length, tc.overhead, tc.size, tc.parity)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
		assert.LessOrEqual(t, got.Total(), MaxShards)
		assert.GreaterOrEqual(t, got.DataShards*got.ShardSize, tc.length)
	}
	_, err := Plan(10, 0.1, 0, true)
	assert.Error(t, err)
}

func TestAnyKOfN(t *testing.T) {
	data := randomBytes(1000, 9)
	l, err := Plan(len(data), 0.5, 128, true)
	require.NoError(t, err)
	require.Equal(t, Layout{8, 4, 128}, l)

	n := l.Total()
	// every subset that drops exactly ParityShards shards
	var drop func(start int, chosen []int)
	count := 0
	drop = func(start int, chosen []int) {
		if len(chosen) == l.ParityShards {
			shards, err := Split(data, l)
			require.NoError(t, err)
			for _, c := range chosen {
				shards[c].Present = false
				shards[c].Data = nil
			}
			out, err := Reconstruct(shards, l, len(data))
			require.NoError(t, err, "dropped %v", chosen)
			require.Equal(t, data, out, "dropped %v", chosen)
			count++
			return
		}
		for i := start; i < n; i++ {
			drop(i+1, append(chosen, i))
		}
	}
	drop(0, nil)
	assert.Equal(t, 495, count)
}

func TestTooFewShards(t *testing.T) {
	data := randomBytes(700, 3)
	l, err := Plan(len(data), 0.25, 100, true)
	require.NoError(t, err)
	shards, err := Split(data, l)
	require.NoError(t, err)
	for _, i := range []int{0, 3, 5} {
		shards[i].Present = false
	}
	_, err = Reconstruct(shards, l, len(data))
	require.ErrorIs(t, err, types.ErrUnrecoverableErasure)
	var ee *types.ErasureError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, []int{0, 3, 5}, ee.Missing)
	assert.Equal(t, l.DataShards, ee.Required)

	ok, err := Recoverable(shards, l)
	assert.False(t, ok)
	assert.ErrorIs(t, err, types.ErrUnrecoverableErasure)
}

func TestNoParity(t *testing.T) {
	data := randomBytes(300, 4)
	l, err := Plan(len(data), 0.25, 128, false)
	require.NoError(t, err)
	shards, err := Split(data, l)
	require.NoError(t, err)
	require.Len(t, shards, 3)
	out, err := Reconstruct(shards, l, len(data))
	require.NoError(t, err)
	assert.Equal(t, data, out)

	shards[1].Present = false
	_, err = Reconstruct(shards, l, len(data))
	assert.ErrorIs(t, err, types.ErrUnrecoverableErasure)
}

func TestRecoverableDetectsCorruptParity(t *testing.T) {
	data := randomBytes(512, 5)
	l, err := Plan(len(data), 0.5, 128, true)
	require.NoError(t, err)
	shards, err := Split(data, l)
	require.NoError(t, err)

	ok, err := Recoverable(shards, l)
	require.NoError(t, err)
	assert.True(t, ok)

	shards[l.DataShards].Data[0] ^= 0xFF
	ok, err = Recoverable(shards, l)
	require.NoError(t, err)
	assert.False(t, ok)
}
