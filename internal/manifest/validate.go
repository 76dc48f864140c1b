package manifest

import (
	"fmt"

	"alexhalogen/crystalarchive/internal/compress"
	"alexhalogen/crystalarchive/internal/packer"
	"alexhalogen/crystalarchive/internal/types"
)

func invalid(field, format string, args ...any) error {
	return &types.ManifestError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks that the recorded parameters describe one consistent
// layout. It never fills in defaults.
func (m *Manifest) Validate() error {
	if m.FormatVersion != FormatVersion {
		return invalid("format_version", "unsupported version %d", m.FormatVersion)
	}
	if _, err := m.ProfileID(); err != nil {
		return invalid("profile", "%v", err)
	}
	params, err := m.Params()
	if err != nil {
		return err
	}
	if params.ID.String() != m.Profile {
		return invalid("profile_params.id", "%q, profile is %q", m.ProfileParams.ID, m.Profile)
	}
	if params.LossTolerance != m.DesignedLossTolerance {
		return invalid("profile_params.loss_tolerance", "%v, designed_loss_tolerance is %v",
			params.LossTolerance, m.DesignedLossTolerance)
	}
	if _, err := compress.ParseCodec(m.Compression.Codec); err != nil || m.Compression.Codec == "" {
		return invalid("compression.codec", "unknown codec %q", m.Compression.Codec)
	}
	if !m.Compression.Enabled && m.Compression.Codec != string(compress.None) {
		return invalid("compression.codec", "%q with compression disabled", m.Compression.Codec)
	}
	if m.Compression.OriginalSize != m.TotalSize {
		return invalid("compression.original_size", "%d, total_size is %d", m.Compression.OriginalSize, m.TotalSize)
	}

	layout := m.ErasureLayout()
	if err := layout.Validate(); err != nil {
		return invalid("outer_code", "%v", err)
	}
	if m.Outer.Enabled != (m.Outer.ParityShards > 0) {
		return invalid("outer_code.enabled", "%v with %d parity shards", m.Outer.Enabled, m.Outer.ParityShards)
	}
	if uint64(layout.DataShards*layout.ShardSize) < m.Compression.CompressedSize {
		return invalid("outer_code", "%d shards of %d bytes cannot hold %d bytes",
			layout.DataShards, layout.ShardSize, m.Compression.CompressedSize)
	}

	codeword := layout.ShardSize * 8
	if m.Inner.Enabled {
		if m.Inner.DataBits != codeword {
			return invalid("inner_code.data_bits", "%d, shard holds %d bits", m.Inner.DataBits, codeword)
		}
		if _, err := m.InnerCode(); err != nil {
			return err
		}
		codeword += m.Inner.ParityBits
	}
	if m.Voxel.CodewordBits != codeword {
		return invalid("voxel_layout.codeword_bits", "%d, want %d", m.Voxel.CodewordBits, codeword)
	}

	mapper, err := m.Mapper()
	if err != nil {
		return err
	}
	if params.OrientationBits != m.Voxel.OrientationBits || params.RetardanceBits != m.Voxel.RetardanceBits {
		return invalid("profile_params", "%d/%d bits, voxel layout carries %d/%d",
			params.OrientationBits, params.RetardanceBits, m.Voxel.OrientationBits, m.Voxel.RetardanceBits)
	}
	if m.Voxel.BitsPerVoxel != mapper.Bits() {
		return invalid("voxel_layout.bits_per_voxel", "%d, axes carry %d", m.Voxel.BitsPerVoxel, mapper.Bits())
	}
	if want := mapper.SymbolsFor(codeword); m.Voxel.SymbolsPerShard != want {
		return invalid("voxel_layout.symbols_per_shard", "%d, want %d", m.Voxel.SymbolsPerShard, want)
	}

	il := m.InterleaveLayout()
	if il.Planes < 1 {
		return invalid("interleaving.plane_count", "%d", il.Planes)
	}
	if il.Planes > params.PlaneCount {
		return invalid("interleaving.plane_count", "%d, profile allows %d", il.Planes, params.PlaneCount)
	}
	if !m.Interleaving.Enabled && il.Planes != 1 {
		return invalid("interleaving.plane_count", "%d planes with interleaving disabled", il.Planes)
	}
	if il.Units != layout.Total() {
		return invalid("interleaving.units", "%d, outer code has %d shards", il.Units, layout.Total())
	}
	if il.UnitLen != m.Voxel.SymbolsPerShard {
		return invalid("interleaving.symbols_per_unit", "%d, want %d", il.UnitLen, m.Voxel.SymbolsPerShard)
	}
	if m.Interleaving.VoxelsPerPlane != il.Slots() {
		return invalid("interleaving.voxels_per_plane", "%d, want %d", m.Interleaving.VoxelsPerPlane, il.Slots())
	}
	if m.Voxel.TotalVoxels != il.Len() {
		return invalid("voxel_layout.total_voxels", "%d, want %d", m.Voxel.TotalVoxels, il.Len())
	}
	if m.Interleaving.FillerSymbol < 0 || m.Interleaving.FillerSymbol >= 1<<mapper.Bits() {
		return invalid("interleaving.filler_symbol", "%d", m.Interleaving.FillerSymbol)
	}

	if m.TotalFiles != len(m.Files) {
		return invalid("total_files", "%d, index lists %d", m.TotalFiles, len(m.Files))
	}
	if err := packer.ValidateIndex(m.Files, m.TotalSize); err != nil {
		return invalid("files", "%v", err)
	}
	if len(m.Integrity.ShardHashes) != layout.Total() {
		return invalid("integrity.shard_hashes", "%d hashes for %d shards", len(m.Integrity.ShardHashes), layout.Total())
	}
	return nil
}
