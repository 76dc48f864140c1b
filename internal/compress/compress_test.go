package compress

import (
	"bytes"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alexhalogen/crystalarchive/internal/types"
)

func TestRoundTrip(t *testing.T) {
	text := bytes.Repeat([]byte("crystal archive voxel plane "), 400)
	noise := make([]byte, 4096)
	r := rand.New(rand.NewPCG(1, 2))
	for i := range noise {
		noise[i] = byte(r.Uint32())
	}

	tests := []struct {
		name  string
		codec Codec
		level int
		data  []byte
	}{
		{"zstd text", Zstd, 19, text},
		{"zstd fast", Zstd, 1, text},
		{"zstd noise", Zstd, 3, noise},
		{"lz4 text", LZ4, 0, text},
		{"lz4 hc text", LZ4, 9, text},
		{"none", None, 0, text},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, info, err := Compress(tc.data, tc.codec, tc.level)
			require.NoError(t, err)
			assert.EqualValues(t, len(tc.data), info.OriginalSize)
			assert.EqualValues(t, len(out), info.CompressedSize)
			assert.NotEmpty(t, info.Version)
			back, err := Decompress(out, info)
			require.NoError(t, err)
			assert.Equal(t, tc.data, back)
		})
	}
}

func TestTextShrinks(t *testing.T) {
	text := bytes.Repeat([]byte("abcdefgh"), 1000)
	for _, c := range []Codec{Zstd, LZ4} {
		_, info, err := Compress(text, c, 3)
		require.NoError(t, err)
		assert.Equal(t, c, info.Codec)
		assert.Greater(t, info.Ratio(), 4.0)
	}
}

func TestLZ4IncompressibleFallsBack(t *testing.T) {
	noise := make([]byte, 512)
	r := rand.New(rand.NewPCG(3, 4))
	for i := range noise {
		noise[i] = byte(r.Uint32())
	}
	out, info, err := Compress(noise, LZ4, 0)
	require.NoError(t, err)
	assert.Equal(t, None, info.Codec)
	back, err := Decompress(out, info)
	require.NoError(t, err)
	assert.Equal(t, noise, back)
}

func TestEmptyInput(t *testing.T) {
	for _, c := range []Codec{None, Zstd, LZ4} {
		out, info, err := Compress(nil, c, 5)
		require.NoError(t, err)
		assert.Empty(t, out)
		assert.Zero(t, info.CompressedSize)
		back, err := Decompress(out, info)
		require.NoError(t, err)
		assert.Empty(t, back)
	}
}

func TestDecompressFaults(t *testing.T) {
	out, info, err := Compress(bytes.Repeat([]byte("x"), 1000), Zstd, 3)
	require.NoError(t, err)

	_, err = Decompress(out[:len(out)-1], info)
	assert.ErrorIs(t, err, types.ErrCompression)

	corrupt := append([]byte(nil), out...)
	for i := range corrupt {
		corrupt[i] ^= 0x5A
	}
	_, err = Decompress(corrupt, info)
	assert.ErrorIs(t, err, types.ErrCompression)

	_, _, err = Compress([]byte("x"), Codec("brotli"), 0)
	assert.ErrorIs(t, err, types.ErrCompression)
}

func TestParseCodec(t *testing.T) {
	c, err := ParseCodec(" ZSTD ")
	require.NoError(t, err)
	assert.Equal(t, Zstd, c)
	c, err = ParseCodec("")
	require.NoError(t, err)
	assert.Equal(t, None, c)
	_, err = ParseCodec("xz")
	assert.Error(t, err)
}
