package manifest

import (
	"time"

	"github.com/google/uuid"

	"alexhalogen/crystalarchive/internal/compress"
	"alexhalogen/crystalarchive/internal/erasure"
	"alexhalogen/crystalarchive/internal/integrity"
	"alexhalogen/crystalarchive/internal/interleave"
	"alexhalogen/crystalarchive/internal/ldpc"
	"alexhalogen/crystalarchive/internal/prng"
	"alexhalogen/crystalarchive/internal/types"
	"alexhalogen/crystalarchive/internal/voxel"
)

// Layout gathers the stage parameters an encode settled on.
type Layout struct {
	Profile            types.Params
	CompressionEnabled bool
	Compression        compress.Info
	Outer              erasure.Layout
	// Inner is nil when the inner code is disabled.
	Inner        *ldpc.Params
	Mapper       *voxel.Mapper
	Interleave   interleave.Layout
	FillerSymbol int
}

// New assembles an unsealed manifest.
func New(l Layout, files []types.FileEntry, totalSize uint64, archiveSHA256 string, shardHashes []integrity.Hash) *Manifest {
	m := &Manifest{
		FormatVersion:         FormatVersion,
		Generator:             Generator,
		ArchiveID:             uuid.NewString(),
		CreatedAt:             time.Now().UTC().Format(time.RFC3339Nano),
		Profile:               l.Profile.ID.String(),
		ErrorCorrectionLevel:  l.Profile.ID.String(),
		DesignedLossTolerance: l.Profile.LossTolerance,
		DecodingInstructions:  Instructions,
		ProfileParams:         recordParams(l.Profile),
		Compression: Compression{
			Enabled:        l.CompressionEnabled,
			Codec:          string(l.Compression.Codec),
			Level:          l.Compression.Level,
			Version:        l.Compression.Version,
			OriginalSize:   l.Compression.OriginalSize,
			CompressedSize: l.Compression.CompressedSize,
		},
		Outer: OuterCode{
			Enabled:      l.Outer.ParityShards > 0,
			Scheme:       erasure.Scheme,
			DataShards:   l.Outer.DataShards,
			ParityShards: l.Outer.ParityShards,
			ShardSize:    l.Outer.ShardSize,
			Padding:      "last data shard zero padded; stream truncated to compression.compressed_size",
		},
		Inner: InnerCode{
			Scheme:     "none",
			Convention: ldpc.Convention,
			BitOrder:   "shard bytes unpacked most significant bit first; codeword = data bits then parity bits",
		},
		Interleaving: Interleaving{
			Enabled:        l.Interleave.Shuffle,
			Schedule:       interleave.Schedule,
			PlaneCount:     l.Interleave.Planes,
			VoxelsPerPlane: l.Interleave.Slots(),
			Seed:           l.Interleave.Seed,
			Units:          l.Interleave.Units,
			SymbolsPerUnit: l.Interleave.UnitLen,
			FillerSymbol:   l.FillerSymbol,
		},
		Voxel: VoxelTables(l.Mapper),
		PRNG: PRNG{
			Name:    prng.Name,
			Shuffle: prng.ShuffleRule,
		},
		TotalFiles: len(files),
		TotalSize:  totalSize,
		Files:      append([]types.FileEntry{}, files...),
		Integrity: Integrity{
			FileHash:        "sha256",
			ArchiveSHA256:   archiveSHA256,
			ShardLeafScheme: integrity.LeafScheme,
			ShardNodeScheme: integrity.NodeScheme,
			MerkleRoot:      integrity.FormatHash(integrity.MerkleRoot(shardHashes)),
			ShardHashes:     make([]string, len(shardHashes)),
		},
	}
	if l.Inner == nil && l.Outer.ParityShards == 0 {
		m.ErrorCorrectionLevel = "none"
	}
	for i, h := range shardHashes {
		m.Integrity.ShardHashes[i] = integrity.FormatHash(h)
	}

	codeword := l.Outer.ShardSize * 8
	if l.Inner != nil {
		m.Inner = InnerCode{
			Enabled:       true,
			Scheme:        ldpc.Scheme,
			Construction:  ldpc.Construction,
			Convention:    ldpc.Convention,
			Rate:          l.Profile.InnerRate,
			DataBits:      l.Inner.DataBits,
			ParityBits:    l.Inner.ParityBits,
			ColumnWeight:  l.Inner.ColumnWeight,
			Seed:          l.Inner.Seed,
			MaxIterations: l.Inner.MaxIterations,
			MinSumScale:   l.Inner.Scale,
			BitOrder:      m.Inner.BitOrder,
		}
		codeword += l.Inner.ParityBits
	}
	m.Voxel.CodewordBits = codeword
	m.Voxel.SymbolsPerShard = l.Mapper.SymbolsFor(codeword)
	m.Voxel.TotalVoxels = l.Interleave.Len()
	return m
}

func recordParams(p types.Params) ProfileParams {
	return ProfileParams{
		ID:              p.ID.String(),
		OrientationBits: p.OrientationBits,
		RetardanceBits:  p.RetardanceBits,
		InnerRate:       p.InnerRate,
		ColumnWeight:    p.ColumnWeight,
		MaxIterations:   p.MaxIterations,
		MinSumScale:     p.MinSumScale,
		OuterOverhead:   p.OuterOverhead,
		PlaneCount:      p.PlaneCount,
		MinShardSize:    p.MinShardSize,
		Codec:           p.Codec,
		Level:           p.Level,
		LossTolerance:   p.LossTolerance,
	}
}

// ShardLeaves parses the recorded shard hashes.
func (m *Manifest) ShardLeaves() ([]integrity.Hash, error) {
	leaves := make([]integrity.Hash, len(m.Integrity.ShardHashes))
	for i, s := range m.Integrity.ShardHashes {
		h, err := integrity.ParseHash(s)
		if err != nil {
			return nil, &types.ManifestError{Field: "integrity.shard_hashes", Reason: err.Error()}
		}
		leaves[i] = h
	}
	return leaves, nil
}
