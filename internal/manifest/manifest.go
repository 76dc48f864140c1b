// Package manifest defines the self-describing record stored next to every
// voxel stream. It carries each numeric rule the encoder used, so an
// archive decodes from the manifest and the voxels alone.
package manifest

import "alexhalogen/crystalarchive/internal/types"

const FormatVersion = 1

// Generator names the producer in new manifests.
const Generator = "crystalarchive"

type Manifest struct {
	FormatVersion         int     `json:"format_version"`
	Generator             string  `json:"generator"`
	ArchiveID             string  `json:"archive_id"`
	CreatedAt             string  `json:"created_at"`
	Profile               string  `json:"profile"`
	ErrorCorrectionLevel  string  `json:"error_correction_level"`
	DesignedLossTolerance float64 `json:"designed_loss_tolerance"`
	DecodingInstructions  string  `json:"decoding_instructions"`

	// ProfileParams is the resolved profile exactly as the encoder saw it,
	// independent of which layers were switched on.
	ProfileParams ProfileParams `json:"profile_params"`

	Compression  Compression  `json:"compression"`
	Outer        OuterCode    `json:"outer_code"`
	Inner        InnerCode    `json:"inner_code"`
	Interleaving Interleaving `json:"interleaving"`
	Voxel        VoxelLayout  `json:"voxel_layout"`
	PRNG         PRNG         `json:"prng"`

	TotalFiles int               `json:"total_files"`
	TotalSize  uint64            `json:"total_size"`
	Files      []types.FileEntry `json:"files"`

	Integrity Integrity `json:"integrity"`
}

type ProfileParams struct {
	ID              string  `json:"id"`
	OrientationBits int     `json:"orientation_bits"`
	RetardanceBits  int     `json:"retardance_bits"`
	InnerRate       float64 `json:"inner_rate"`
	ColumnWeight    int     `json:"column_weight"`
	MaxIterations   int     `json:"max_iterations"`
	MinSumScale     float64 `json:"min_sum_scale"`
	OuterOverhead   float64 `json:"outer_overhead"`
	PlaneCount      int     `json:"plane_count"`
	MinShardSize    int     `json:"min_shard_size"`
	Codec           string  `json:"codec"`
	Level           int     `json:"level"`
	LossTolerance   float64 `json:"loss_tolerance"`
}

type Compression struct {
	Enabled        bool   `json:"enabled"`
	Codec          string `json:"codec"`
	Level          int    `json:"level"`
	Version        string `json:"version"`
	OriginalSize   uint64 `json:"original_size"`
	CompressedSize uint64 `json:"compressed_size"`
}

type OuterCode struct {
	Enabled      bool   `json:"enabled"`
	Scheme       string `json:"scheme"`
	DataShards   int    `json:"data_shards"`
	ParityShards int    `json:"parity_shards"`
	ShardSize    int    `json:"shard_size"`
	Padding      string `json:"padding"`
}

type InnerCode struct {
	Enabled       bool    `json:"enabled"`
	Scheme        string  `json:"scheme"`
	Construction  string  `json:"construction"`
	Convention    string  `json:"llr_convention"`
	Rate          float64 `json:"rate"`
	DataBits      int     `json:"data_bits"`
	ParityBits    int     `json:"parity_bits"`
	ColumnWeight  int     `json:"column_weight"`
	Seed          uint64  `json:"seed"`
	MaxIterations int     `json:"max_iterations"`
	MinSumScale   float64 `json:"min_sum_scale"`
	BitOrder      string  `json:"bit_order"`
}

type Interleaving struct {
	Enabled        bool   `json:"enabled"`
	Schedule       string `json:"schedule"`
	PlaneCount     int    `json:"plane_count"`
	VoxelsPerPlane int    `json:"voxels_per_plane"`
	Seed           uint64 `json:"seed"`
	Units          int    `json:"units"`
	SymbolsPerUnit int    `json:"symbols_per_unit"`
	FillerSymbol   int    `json:"filler_symbol"`
}

type VoxelLayout struct {
	BitsPerVoxel      int       `json:"bits_per_voxel"`
	OrientationBits   int       `json:"orientation_bits"`
	RetardanceBits    int       `json:"retardance_bits"`
	OrientationAxis   string    `json:"orientation_axis"`
	RetardanceAxis    string    `json:"retardance_axis"`
	OrientationLevels []float64 `json:"orientation_levels"`
	RetardanceLevels  []float64 `json:"retardance_levels"`
	OrientationGray   []int     `json:"orientation_gray"`
	RetardanceGray    []int     `json:"retardance_gray"`
	BitOrder          string    `json:"bit_order"`
	SymbolOrder       string    `json:"symbol_order"`
	CodewordBits      int       `json:"codeword_bits"`
	SymbolsPerShard   int       `json:"symbols_per_shard"`
	TotalVoxels       int       `json:"total_voxels"`
}

type PRNG struct {
	Name    string `json:"name"`
	Shuffle string `json:"shuffle"`
}

type Integrity struct {
	FileHash        string   `json:"file_hash"`
	ArchiveSHA256   string   `json:"archive_sha256"`
	ShardLeafScheme string   `json:"shard_leaf_scheme"`
	ShardNodeScheme string   `json:"shard_node_scheme"`
	MerkleRoot      string   `json:"merkle_root"`
	ShardHashes     []string `json:"shard_hashes"`
	SignatureScheme string   `json:"signature_scheme,omitempty"`
	PublicKey       string   `json:"public_key,omitempty"`
	Signature       string   `json:"signature,omitempty"`
	ManifestDigest  string   `json:"manifest_digest"`
	DigestRule      string   `json:"digest_rule"`
}

// DigestRule explains how ManifestDigest is computed.
const DigestRule = "sha256 over the RFC 8949 core deterministic CBOR encoding of this record " +
	"(json field names as map keys) with manifest_digest and signature set to empty strings"

// Instructions is the human readable recovery procedure embedded in every
// manifest.
const Instructions = `Recovery procedure, reverse of encoding:
1. Read voxels in stream order. Position x lies in plane x mod plane_count.
2. Deinterleave with the interleaving schedule and prng to recover symbols_per_unit voxels per outer shard.
3. Demap each voxel to bits_per_voxel bits with the level and gray tables in voxel_layout; soft reads give per-bit log likelihood ratios.
4. If inner_code is enabled, rebuild the parity check matrix from its construction and seed and run min-sum belief propagation per shard; the first data_bits bits are the shard.
5. Hash each shard with shard_leaf_scheme and compare against shard_hashes; mismatching shards are erasures.
6. Rebuild missing shards with the outer code; any data_shards shards suffice. Check merkle_root.
7. Concatenate data shards, truncate to compression.compressed_size, decompress with the recorded codec and check archive_sha256.
8. Split the blob with files[] offsets and lengths and check every sha256.`
