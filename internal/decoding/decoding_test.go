package decoding

import (
	"bytes"
	"context"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alexhalogen/crystalarchive/internal/encoding"
	"alexhalogen/crystalarchive/internal/erasure"
	"alexhalogen/crystalarchive/internal/filehelper"
	"alexhalogen/crystalarchive/internal/integrity"
	"alexhalogen/crystalarchive/internal/interleave"
	"alexhalogen/crystalarchive/internal/manifest"
	"alexhalogen/crystalarchive/internal/types"
	"alexhalogen/crystalarchive/internal/voxel"
)

func sampleEntries() []types.Entry {
	r := rand.New(rand.NewPCG(7, 0))
	b := make([]byte, 5000)
	for i := range b {
		b[i] = byte(r.Uint32())
	}
	return []types.Entry{
		{Path: "b.bin", Data: b},
		{Path: "a.txt", Data: []byte("0123456789")},
	}
}

func encode(t *testing.T, profile types.ProfileID, opts types.EncodeOptions) (*voxel.Stream, *manifest.Manifest) {
	t.Helper()
	s, m, err := encoding.Encode(context.Background(), sampleEntries(), profile, opts)
	require.NoError(t, err)
	return s, m
}

func requireFiles(t *testing.T, res *Result) {
	t.Helper()
	want := sampleEntries()
	require.Len(t, res.Files, len(want))
	got := map[string][]byte{}
	for _, f := range res.Files {
		got[f.Path] = f.Data
	}
	for _, e := range want {
		assert.Equal(t, e.Data, got[e.Path], e.Path)
	}
}

// loseShard flags every voxel of one shard as lost.
func loseShard(t *testing.T, s *voxel.Stream, m *manifest.Manifest, shard int) {
	t.Helper()
	plan, err := interleave.NewPlan(m.InterleaveLayout())
	require.NoError(t, err)
	for off := 0; off < plan.UnitLen; off++ {
		s.Voxels[plan.Index(shard, off)].Lost = true
	}
}

func loseRandom(s *voxel.Stream, fraction float64, seed uint64) {
	r := rand.New(rand.NewPCG(seed, 1))
	for i := range s.Voxels {
		if r.Float64() < fraction {
			s.Voxels[i].Lost = true
		}
	}
}

func TestRoundTrip(t *testing.T) {
	for _, p := range []types.ProfileID{types.Conservative, types.Aggressive} {
		t.Run(p.String(), func(t *testing.T) {
			s, m := encode(t, p, types.DefaultEncodeOptions())
			res, err := Decode(context.Background(), s, m, types.DefaultDecodeOptions())
			require.NoError(t, err)
			requireFiles(t, res)
			assert.True(t, res.ArchiveOK)
			for _, st := range res.Status {
				assert.Equal(t, types.FileOK, st.State, st.Path)
			}
			assert.Zero(t, res.Scan.Damage.Count())
			for _, sh := range res.Scan.Shards {
				assert.Equal(t, ShardClean, sh.State)
			}
		})
	}
}

func TestRoundTripLayersOff(t *testing.T) {
	tests := []struct {
		name                 string
		compress, ecc, inter bool
	}{
		{"bare", false, false, false},
		{"compression only", true, false, false},
		{"ecc only", false, true, false},
		{"no interleaving", true, true, false},
		{"no ecc", true, false, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			opts := types.DefaultEncodeOptions()
			opts.Compression, opts.ErrorCorrection, opts.Interleaving = tc.compress, tc.ecc, tc.inter
			s, m := encode(t, types.Aggressive, opts)
			if !tc.inter {
				assert.Equal(t, 1, s.Planes)
			}
			res, err := Decode(context.Background(), s, m, types.DefaultDecodeOptions())
			require.NoError(t, err)
			requireFiles(t, res)
		})
	}
}

func TestEmptyArchive(t *testing.T) {
	s, m, err := encoding.Encode(context.Background(), nil, types.Conservative, types.DefaultEncodeOptions())
	require.NoError(t, err)
	res, err := Decode(context.Background(), s, m, types.DefaultDecodeOptions())
	require.NoError(t, err)
	assert.Empty(t, res.Files)
	assert.True(t, res.ArchiveOK)
}

func TestRandomLossConservative(t *testing.T) {
	s, m := encode(t, types.Conservative, types.DefaultEncodeOptions())
	assert.Equal(t, 2, m.TotalFiles)
	assert.Equal(t, "conservative", m.ErrorCorrectionLevel)

	loseRandom(s, 0.15, 3)
	res, err := Decode(context.Background(), s, m, types.DefaultDecodeOptions())
	require.NoError(t, err)
	requireFiles(t, res)
	assert.Empty(t, res.Failed())
}

func TestAnyDataShardsSuffice(t *testing.T) {
	clean, m := encode(t, types.Conservative, types.DefaultEncodeOptions())
	l := m.ErasureLayout()
	r := rand.New(rand.NewPCG(11, 0))
	for trial := 0; trial < 5; trial++ {
		s := clean.Clone()
		dropped := r.Perm(l.Total())[:l.ParityShards]
		for _, i := range dropped {
			loseShard(t, s, m, i)
		}
		res, err := Decode(context.Background(), s, m, types.DefaultDecodeOptions())
		require.NoError(t, err, "dropped %v", dropped)
		requireFiles(t, res)
		assert.Equal(t, l.ParityShards, res.Scan.Damage.Count())
	}
}

func TestTooManyShardsErased(t *testing.T) {
	s, m := encode(t, types.Conservative, types.DefaultEncodeOptions())
	l := m.ErasureLayout()
	opts := types.DefaultDecodeOptions()
	for i := 0; i <= l.ParityShards; i++ {
		opts.Erase = append(opts.Erase, i)
	}
	_, err := Decode(context.Background(), s, m, opts)
	require.Error(t, err)
	var ee *types.ErasureError
	require.True(t, errors.As(err, &ee), "got %v", err)
	assert.Equal(t, l.DataShards-1, ee.Present)
	assert.Equal(t, l.DataShards, ee.Required)
	assert.Equal(t, opts.Erase, ee.Missing)
	assert.True(t, errors.Is(err, types.ErrUnrecoverableErasure))
	// no voxel was lost, so the profile's tolerance was never exceeded
	assert.False(t, errors.Is(err, types.ErrCorruptionBoundExceeded))
}

func TestBoundExceeded(t *testing.T) {
	s, m := encode(t, types.Conservative, types.DefaultEncodeOptions())
	l := m.ErasureLayout()
	for i := 0; i < 2*l.ParityShards; i++ {
		loseShard(t, s, m, i)
	}
	_, err := Decode(context.Background(), s, m, types.DefaultDecodeOptions())
	var be *types.BoundError
	require.True(t, errors.As(err, &be), "got %v", err)
	assert.Greater(t, be.Observed, be.Tolerance)
	assert.True(t, errors.Is(err, types.ErrCorruptionBoundExceeded))
	assert.True(t, errors.Is(err, types.ErrUnrecoverableErasure))
}

func TestBurstLoss(t *testing.T) {
	s, m := encode(t, types.Conservative, types.DefaultEncodeOptions())
	// a run many planes long costs each codeword a small share of symbols
	start, n := 1000, 200*s.Planes
	for i := start; i < start+n; i++ {
		s.Voxels[i].Lost = true
	}
	res, err := Decode(context.Background(), s, m, types.DefaultDecodeOptions())
	require.NoError(t, err)
	requireFiles(t, res)
	assert.Zero(t, res.Scan.Damage.Count())
}

func TestNoisyReadout(t *testing.T) {
	s, m := encode(t, types.Conservative, types.DefaultEncodeOptions())
	r := rand.New(rand.NewPCG(5, 5))
	for i := range s.Voxels {
		s.Voxels[i].Orientation += float32(r.NormFloat64() * 8)
		s.Voxels[i].Retardance += float32(r.NormFloat64() * 0.05)
	}
	res, err := Decode(context.Background(), s, m, types.DefaultDecodeOptions())
	require.NoError(t, err)
	requireFiles(t, res)
}

// tamper rewrites the recorded hash of one file and reseals the manifest,
// so that file fails verification after an otherwise clean decode.
func tamper(t *testing.T, m *manifest.Manifest, path string) {
	t.Helper()
	for i := range m.Files {
		if m.Files[i].Path == path {
			m.Files[i].SHA256 = integrity.SHA256Hex([]byte("something else"))
		}
	}
	require.NoError(t, m.Seal(nil))
}

func TestRepairErrors(t *testing.T) {
	s, m := encode(t, types.Conservative, types.DefaultEncodeOptions())
	tamper(t, m, "a.txt")

	t.Run("abort", func(t *testing.T) {
		_, err := Decode(context.Background(), s, m, types.DefaultDecodeOptions())
		var ie *types.IntegrityError
		require.True(t, errors.As(err, &ie), "got %v", err)
		assert.Equal(t, []string{"a.txt"}, ie.Files)
		assert.True(t, errors.Is(err, types.ErrIntegrityMismatch))
	})

	t.Run("repair", func(t *testing.T) {
		opts := types.DefaultDecodeOptions()
		opts.RepairErrors = true
		res, err := Decode(context.Background(), s, m, opts)
		require.NoError(t, err)
		require.Len(t, res.Files, 1)
		assert.Equal(t, "b.bin", res.Files[0].Path)
		assert.Equal(t, []string{"a.txt"}, res.Failed())
	})

	t.Run("unverified", func(t *testing.T) {
		opts := types.DefaultDecodeOptions()
		opts.VerifyIntegrity = false
		res, err := Decode(context.Background(), s, m, opts)
		require.NoError(t, err)
		assert.Len(t, res.Files, 2)
		for _, st := range res.Status {
			assert.Equal(t, types.FileUnverified, st.State)
		}
	})
}

func TestDecodeFromSerializedManifest(t *testing.T) {
	s, m := encode(t, types.Aggressive, types.DefaultEncodeOptions())
	doc, err := m.Marshal()
	require.NoError(t, err)
	back, err := manifest.Unmarshal(doc)
	require.NoError(t, err)

	res, err := Decode(context.Background(), s, back, types.DefaultDecodeOptions())
	require.NoError(t, err)
	requireFiles(t, res)
}

func TestDecodeFromStreamFile(t *testing.T) {
	s, m := encode(t, types.Conservative, types.DefaultEncodeOptions())
	cbor, err := m.MarshalBinary()
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, filehelper.WriteStream(&buf, s, cbor))

	rr, err := filehelper.ReadStream(&buf)
	require.NoError(t, err)
	assert.True(t, rr.ChecksumOK)
	embedded, err := manifest.UnmarshalBinary(rr.Manifest)
	require.NoError(t, err)
	res, err := Decode(context.Background(), rr.Stream, embedded, types.DefaultDecodeOptions())
	require.NoError(t, err)
	requireFiles(t, res)
}

func TestEraseList(t *testing.T) {
	s, m := encode(t, types.Conservative, types.DefaultEncodeOptions())
	opts := types.DefaultDecodeOptions()
	opts.Erase = []int{0, 1, m.Outer.DataShards}
	res, err := Decode(context.Background(), s, m, opts)
	require.NoError(t, err)
	requireFiles(t, res)
	assert.Equal(t, []int{0, 1}, res.Scan.Damage.DataDamage)
	assert.Equal(t, []int{0}, res.Scan.Damage.EccDamage)
	assert.Equal(t, opts.Erase, res.Scan.Damage.Shards(m.Outer.DataShards))

	opts.Erase = []int{-1}
	_, err = Decode(context.Background(), s, m, opts)
	assert.Error(t, err)
}

func TestSignedManifest(t *testing.T) {
	pub, key, err := integrity.GenerateKey()
	require.NoError(t, err)
	opts := types.DefaultEncodeOptions()
	opts.SigningKey = key
	s, m := encode(t, types.Aggressive, opts)

	dopts := types.DefaultDecodeOptions()
	dopts.PublicKey = pub
	_, err = Decode(context.Background(), s, m, dopts)
	require.NoError(t, err)

	other, _, err := integrity.GenerateKey()
	require.NoError(t, err)
	dopts.PublicKey = other
	_, err = Decode(context.Background(), s, m, dopts)
	assert.True(t, errors.Is(err, types.ErrIntegrityMismatch), "got %v", err)
}

func TestGeometryMismatch(t *testing.T) {
	s, m := encode(t, types.Conservative, types.DefaultEncodeOptions())
	s.Planes, s.VoxelsPerPlane = s.VoxelsPerPlane, s.Planes
	_, err := Decode(context.Background(), s, m, types.DefaultDecodeOptions())
	assert.True(t, errors.Is(err, types.ErrInvalidManifest), "got %v", err)

	_, err = Decode(context.Background(), nil, m, types.DefaultDecodeOptions())
	assert.Error(t, err)
	_, err = Decode(context.Background(), s, nil, types.DefaultDecodeOptions())
	assert.True(t, errors.Is(err, types.ErrInvalidManifest))
}

func TestDecodeCanceled(t *testing.T) {
	s, m := encode(t, types.Conservative, types.DefaultEncodeOptions())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Decode(ctx, s, m, types.DefaultDecodeOptions())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCheckRebuiltLocalizes(t *testing.T) {
	data := []byte("rebuilt outer stream")
	l := erasure.Layout{DataShards: 3, ParityShards: 1, ShardSize: 8}
	shards, err := erasure.Split(data, l)
	require.NoError(t, err)
	leaves := make([]integrity.Hash, len(shards))
	for i, sh := range shards {
		leaves[i] = integrity.LeafHash(i, sh.Data)
	}
	assert.Empty(t, checkRebuilt(data, l, leaves))

	data[9] ^= 0xff
	assert.Equal(t, []int{1}, checkRebuilt(data, l, leaves))
}
