package manifest

import (
	"fmt"
	"slices"

	"alexhalogen/crystalarchive/internal/compress"
	"alexhalogen/crystalarchive/internal/erasure"
	"alexhalogen/crystalarchive/internal/interleave"
	"alexhalogen/crystalarchive/internal/ldpc"
	"alexhalogen/crystalarchive/internal/types"
	"alexhalogen/crystalarchive/internal/voxel"
)

func (m *Manifest) ProfileID() (types.ProfileID, error) {
	return types.ParseProfile(m.Profile)
}

// Params returns the resolved profile the archive was written with.
func (m *Manifest) Params() (types.Params, error) {
	id, err := types.ParseProfile(m.ProfileParams.ID)
	if err != nil {
		return types.Params{}, &types.ManifestError{Field: "profile_params.id", Reason: err.Error()}
	}
	pp := m.ProfileParams
	return types.Params{
		ID:              id,
		OrientationBits: pp.OrientationBits,
		RetardanceBits:  pp.RetardanceBits,
		InnerRate:       pp.InnerRate,
		ColumnWeight:    pp.ColumnWeight,
		MaxIterations:   pp.MaxIterations,
		MinSumScale:     pp.MinSumScale,
		OuterOverhead:   pp.OuterOverhead,
		PlaneCount:      pp.PlaneCount,
		MinShardSize:    pp.MinShardSize,
		Codec:           pp.Codec,
		Level:           pp.Level,
		LossTolerance:   pp.LossTolerance,
	}, nil
}

func (m *Manifest) CompressInfo() compress.Info {
	return compress.Info{
		Codec:          compress.Codec(m.Compression.Codec),
		Level:          m.Compression.Level,
		Version:        m.Compression.Version,
		OriginalSize:   m.Compression.OriginalSize,
		CompressedSize: m.Compression.CompressedSize,
	}
}

func (m *Manifest) ErasureLayout() erasure.Layout {
	return erasure.Layout{
		DataShards:   m.Outer.DataShards,
		ParityShards: m.Outer.ParityShards,
		ShardSize:    m.Outer.ShardSize,
	}
}

func (m *Manifest) LDPCParams() ldpc.Params {
	return ldpc.Params{
		DataBits:      m.Inner.DataBits,
		ParityBits:    m.Inner.ParityBits,
		ColumnWeight:  m.Inner.ColumnWeight,
		Seed:          m.Inner.Seed,
		MaxIterations: m.Inner.MaxIterations,
		Scale:         m.Inner.MinSumScale,
	}
}

// InnerCode rebuilds the parity check structure, or returns nil when the
// inner layer was disabled.
func (m *Manifest) InnerCode() (*ldpc.Code, error) {
	if !m.Inner.Enabled {
		return nil, nil
	}
	code, err := ldpc.New(m.LDPCParams())
	if err != nil {
		return nil, &types.ManifestError{Field: "inner_code", Reason: err.Error()}
	}
	return code, nil
}

func (m *Manifest) InterleaveLayout() interleave.Layout {
	return interleave.Layout{
		Units:   m.Interleaving.Units,
		UnitLen: m.Interleaving.SymbolsPerUnit,
		Planes:  m.Interleaving.PlaneCount,
		Seed:    m.Interleaving.Seed,
		Shuffle: m.Interleaving.Enabled,
	}
}

// Mapper rebuilds the symbol mapper and checks it against the recorded
// level and gray tables.
func (m *Manifest) Mapper() (*voxel.Mapper, error) {
	v := m.Voxel
	mapper, err := voxel.NewMapper(v.OrientationBits, v.RetardanceBits)
	if err != nil {
		return nil, &types.ManifestError{Field: "voxel_layout", Reason: err.Error()}
	}
	if !floatsClose(mapper.OrientationLevels(), v.OrientationLevels) {
		return nil, &types.ManifestError{Field: "voxel_layout.orientation_levels", Reason: "do not match the orientation axis rule"}
	}
	if !floatsClose(mapper.RetardanceLevels(), v.RetardanceLevels) {
		return nil, &types.ManifestError{Field: "voxel_layout.retardance_levels", Reason: "do not match the retardance axis rule"}
	}
	if !slices.Equal(voxel.GrayTable(v.OrientationBits), v.OrientationGray) ||
		!slices.Equal(voxel.GrayTable(v.RetardanceBits), v.RetardanceGray) {
		return nil, &types.ManifestError{Field: "voxel_layout.gray", Reason: "tables are not reflected gray codes"}
	}
	return mapper, nil
}

// VoxelTables fills the voxel section tables from a mapper.
func VoxelTables(mapper *voxel.Mapper) VoxelLayout {
	return VoxelLayout{
		BitsPerVoxel:      mapper.Bits(),
		OrientationBits:   mapper.OrientationBits(),
		RetardanceBits:    mapper.RetardanceBits(),
		OrientationAxis:   voxel.OrientationAx,
		RetardanceAxis:    voxel.RetardanceAx,
		OrientationLevels: mapper.OrientationLevels(),
		RetardanceLevels:  mapper.RetardanceLevels(),
		OrientationGray:   voxel.GrayTable(mapper.OrientationBits()),
		RetardanceGray:    voxel.GrayTable(mapper.RetardanceBits()),
		BitOrder:          voxel.BitOrder,
		SymbolOrder:       voxel.SymbolOrder,
	}
}

func floatsClose(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		d := a[i] - b[i]
		if d > 1e-9 || d < -1e-9 {
			return false
		}
	}
	return true
}

// Summary is a one-line description for logs and CLI output.
func (m *Manifest) Summary() string {
	return fmt.Sprintf("%s archive %s: %d files, %d+%d shards of %d bytes, %d voxels in %d planes",
		m.Profile, m.ArchiveID, m.TotalFiles, m.Outer.DataShards, m.Outer.ParityShards,
		m.Outer.ShardSize, m.Voxel.TotalVoxels, m.Interleaving.PlaneCount)
}
