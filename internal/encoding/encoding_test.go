package encoding

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alexhalogen/crystalarchive/internal/integrity"
	"alexhalogen/crystalarchive/internal/manifest"
	"alexhalogen/crystalarchive/internal/types"
)

func entries() []types.Entry {
	text := make([]byte, 0, 20000)
	for len(text) < 20000 {
		text = append(text, "the quick brown fox jumps over the lazy dog\n"...)
	}
	return []types.Entry{
		{Path: "docs/readme.txt", Data: text},
		{Path: "a.txt", Data: []byte("0123456789")},
	}
}

func TestEncodeLayout(t *testing.T) {
	for _, p := range []types.ProfileID{types.Conservative, types.Aggressive} {
		t.Run(p.String(), func(t *testing.T) {
			params, err := p.Params()
			require.NoError(t, err)
			s, m, err := Encode(context.Background(), entries(), p, types.DefaultEncodeOptions())
			require.NoError(t, err)

			require.NoError(t, m.Validate())
			require.NoError(t, m.VerifyDigest())
			require.NoError(t, s.Validate())
			assert.Equal(t, params.PlaneCount, s.Planes)
			assert.Equal(t, m.Voxel.TotalVoxels, len(s.Voxels))
			assert.Equal(t, params.BitsPerVoxel(), m.Voxel.BitsPerVoxel)
			assert.Equal(t, p.String(), m.ErrorCorrectionLevel)
			assert.Equal(t, "zstd", m.Compression.Codec)
			assert.Less(t, m.Compression.CompressedSize, m.Compression.OriginalSize)
			assert.Equal(t, []string{"a.txt", "docs/readme.txt"}, []string{m.Files[0].Path, m.Files[1].Path})
			assert.Equal(t, integrity.SHA256Hex([]byte("0123456789")), m.Files[0].SHA256)
			assert.Zero(t, s.LostFraction())
			assert.Zero(t, s.OutOfRange())
		})
	}
}

func TestEncodeDeterministic(t *testing.T) {
	a, ma, err := Encode(context.Background(), entries(), types.Conservative, types.DefaultEncodeOptions())
	require.NoError(t, err)
	b, mb, err := Encode(context.Background(), entries(), types.Conservative, types.DefaultEncodeOptions())
	require.NoError(t, err)
	assert.Equal(t, a.Voxels, b.Voxels)
	assert.Equal(t, ma.Integrity.MerkleRoot, mb.Integrity.MerkleRoot)
	assert.NotEqual(t, ma.ArchiveID, mb.ArchiveID)

	opts := types.DefaultEncodeOptions()
	opts.Seed = 7
	c, _, err := Encode(context.Background(), entries(), types.Conservative, opts)
	require.NoError(t, err)
	assert.NotEqual(t, a.Voxels, c.Voxels)
}

func TestEncodeLayersOff(t *testing.T) {
	opts := types.DefaultEncodeOptions()
	opts.Compression, opts.ErrorCorrection, opts.Interleaving = false, false, false
	s, m, err := Encode(context.Background(), entries(), types.Aggressive, opts)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Planes)
	assert.Equal(t, "none", m.ErrorCorrectionLevel)
	assert.Equal(t, "none", m.Compression.Codec)
	assert.False(t, m.Inner.Enabled)
	assert.False(t, m.Outer.Enabled)
	assert.False(t, m.Interleaving.Enabled)
	assert.Equal(t, m.Outer.ShardSize*8, m.Voxel.CodewordBits)

	params, err := types.Aggressive.Params()
	require.NoError(t, err)
	recorded, err := m.Params()
	require.NoError(t, err)
	assert.Equal(t, params, recorded)
	assert.Zero(t, m.Inner.Rate)
	assert.Equal(t, 1, m.Interleaving.PlaneCount)

	// with everything off the first shard's bytes appear in order
	mapper, err := m.Mapper()
	require.NoError(t, err)
	bits := mapper.HardBits(s.Voxels[:m.Voxel.SymbolsPerShard], m.Voxel.CodewordBits)
	assert.Equal(t, byte('0'), packByte(bits[:8]))
}

func packByte(bits []uint8) byte {
	var b byte
	for _, x := range bits {
		b = b<<1 | x
	}
	return b
}

func TestEncodeCodecOverride(t *testing.T) {
	opts := types.DefaultEncodeOptions()
	opts.Codec, opts.Level = "lz4", 0
	_, m, err := Encode(context.Background(), entries(), types.Conservative, opts)
	require.NoError(t, err)
	assert.Equal(t, "lz4", m.Compression.Codec)

	opts.Codec = "brotli"
	_, _, err = Encode(context.Background(), entries(), types.Conservative, opts)
	assert.True(t, errors.Is(err, types.ErrCompression))
}

func TestEncodeRejects(t *testing.T) {
	opts := types.DefaultEncodeOptions()
	opts.MaxArchiveBytes = 100
	_, _, err := Encode(context.Background(), entries(), types.Conservative, opts)
	assert.True(t, errors.Is(err, types.ErrPack))

	dup := append(entries(), types.Entry{Path: "./a.txt", Data: []byte("x")})
	_, _, err = Encode(context.Background(), dup, types.Conservative, types.DefaultEncodeOptions())
	assert.True(t, errors.Is(err, types.ErrPack))

	_, _, err = Encode(context.Background(), entries(), types.ProfileID(9), types.DefaultEncodeOptions())
	assert.Error(t, err)
}

func TestEncodeSigned(t *testing.T) {
	_, key, err := integrity.GenerateKey()
	require.NoError(t, err)
	opts := types.DefaultEncodeOptions()
	opts.SigningKey = key
	_, m, err := Encode(context.Background(), entries(), types.Aggressive, opts)
	require.NoError(t, err)
	assert.True(t, m.Signed())
	assert.NoError(t, m.VerifySignature(nil))
}

func TestEncodeFillerVoxels(t *testing.T) {
	s, m, err := Encode(context.Background(), entries(), types.Conservative, types.DefaultEncodeOptions())
	require.NoError(t, err)
	mapper, err := m.Mapper()
	require.NoError(t, err)
	units := m.Interleaving.Units
	if units%s.Planes == 0 {
		t.Skip("no plane padding in this layout")
	}
	filler := mapper.Voxel(FillerSymbol)
	count := 0
	for _, v := range s.Voxels {
		if v == filler {
			count++
		}
	}
	padded := s.Planes - units%s.Planes
	assert.GreaterOrEqual(t, count, padded*m.Interleaving.SymbolsPerUnit)
}

func TestEncodeCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := Encode(ctx, entries(), types.Conservative, types.DefaultEncodeOptions())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEncodeManifestBinary(t *testing.T) {
	bin := make([]byte, 5000)
	for i := range bin {
		bin[i] = byte(i * 7)
	}
	in := []types.Entry{
		{Path: "a.txt", Data: []byte("0123456789")},
		{Path: "b.bin", Data: bin},
	}
	_, m, err := Encode(context.Background(), in, types.Conservative, types.DefaultEncodeOptions())
	require.NoError(t, err)
	require.NoError(t, m.VerifyDigest())

	data, err := m.MarshalBinary()
	require.NoError(t, err)
	back, err := manifest.UnmarshalBinary(data)
	require.NoError(t, err)
	assert.Equal(t, m.Integrity.ManifestDigest, back.Integrity.ManifestDigest)
	assert.Equal(t, m.Files, back.Files)
	assert.Equal(t, uint64(5010), back.TotalSize)
}

func TestEncodeSmallArchiveKeepsProfilePlanes(t *testing.T) {
	in := []types.Entry{{Path: "a.txt", Data: []byte("0123456789")}}
	s, m, err := Encode(context.Background(), in, types.Conservative, types.DefaultEncodeOptions())
	require.NoError(t, err)
	require.Less(t, m.Interleaving.Units, s.Planes)

	// one slot per plane; planes past the last unit hold only filler
	assert.Equal(t, 16, s.Planes)
	assert.Equal(t, m.Interleaving.SymbolsPerUnit, s.VoxelsPerPlane)
	assert.Equal(t, s.Planes*m.Interleaving.SymbolsPerUnit, m.Voxel.TotalVoxels)
	mapper, err := m.Mapper()
	require.NoError(t, err)
	filler := mapper.Voxel(FillerSymbol)
	for x, v := range s.Voxels {
		if x%s.Planes >= m.Interleaving.Units {
			require.Equal(t, filler, v, "position %d", x)
		}
	}
}
