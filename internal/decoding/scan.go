package decoding

import (
	"context"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"alexhalogen/crystalarchive/internal/erasure"
	"alexhalogen/crystalarchive/internal/integrity"
	"alexhalogen/crystalarchive/internal/interleave"
	"alexhalogen/crystalarchive/internal/ldpc"
	"alexhalogen/crystalarchive/internal/logging"
	"alexhalogen/crystalarchive/internal/manifest"
	"alexhalogen/crystalarchive/internal/types"
	"alexhalogen/crystalarchive/internal/voxel"
)

// DefaultLLRScale is the reliability given to a voxel read far from any
// decision boundary.
const DefaultLLRScale = 4.0

type ShardState string

const (
	ShardClean     ShardState = "clean"
	ShardCorrected ShardState = "corrected"
	// ShardDegraded did not converge but still matched its leaf hash.
	ShardDegraded ShardState = "degraded"
	ShardMismatch ShardState = "hash_mismatch"
	ShardLost     ShardState = "lost"
	ShardErased   ShardState = "erased"
)

// Usable reports whether a shard in this state can feed the outer code.
func (s ShardState) Usable() bool {
	return s == ShardClean || s == ShardCorrected || s == ShardDegraded
}

type ShardReport struct {
	Index       int
	Parity      bool
	State       ShardState
	Iterations  int
	Unsatisfied int
	Corrected   int
	LostVoxels  int
	Voxels      int
}

// DamageDesc lists the unusable shards, data and parity separately.
// Parity indices count from the first parity shard.
type DamageDesc struct {
	DataDamage []int
	EccDamage  []int
}

func (d DamageDesc) Count() int { return len(d.DataDamage) + len(d.EccDamage) }

// Shards returns the damaged shards as absolute indices.
func (d DamageDesc) Shards(dataShards int) []int {
	out := slices.Clone(d.DataDamage)
	for _, i := range d.EccDamage {
		out = append(out, dataShards+i)
	}
	return out
}

type ScanResult struct {
	Layout erasure.Layout
	Shards []ShardReport
	// Data holds each shard's decoded bytes, nil for shards that were
	// lost or erased.
	Data   [][]byte
	Damage DamageDesc

	leaves []integrity.Hash
}

// LostFraction is the share of data-bearing voxels flagged lost.
func (r *ScanResult) LostFraction() float64 {
	lost, total := 0, 0
	for _, sh := range r.Shards {
		lost += sh.LostVoxels
		total += sh.Voxels
	}
	if total == 0 {
		return 0
	}
	return float64(lost) / float64(total)
}

// Degraded counts codewords whose inner decode did not converge.
func (r *ScanResult) Degraded() int {
	n := 0
	for _, sh := range r.Shards {
		if sh.Unsatisfied > 0 {
			n++
		}
	}
	return n
}

func (r *ScanResult) Usable() int {
	n := 0
	for _, sh := range r.Shards {
		if sh.State.Usable() {
			n++
		}
	}
	return n
}

func (r *ScanResult) shards() []erasure.Shard {
	out := make([]erasure.Shard, len(r.Shards))
	for i, sh := range r.Shards {
		out[i] = erasure.Shard{Index: i, Parity: sh.Parity, Present: sh.State.Usable(), Data: r.Data[i]}
	}
	return out
}

func checkGeometry(s *voxel.Stream, m *manifest.Manifest) error {
	if s == nil {
		return fmt.Errorf("%w: no voxel stream", types.ErrInvalidManifest)
	}
	if err := s.Validate(); err != nil {
		return err
	}
	if s.Planes != m.Interleaving.PlaneCount || s.VoxelsPerPlane != m.Interleaving.VoxelsPerPlane {
		return &types.ManifestError{
			Field: "interleaving",
			Reason: fmt.Sprintf("stream is %d planes of %d voxels, manifest records %d of %d",
				s.Planes, s.VoxelsPerPlane, m.Interleaving.PlaneCount, m.Interleaving.VoxelsPerPlane),
		}
	}
	return nil
}

// Scan soft-decodes every shard and checks it against its leaf hash. It
// does not touch the outer code.
func Scan(ctx context.Context, s *voxel.Stream, m *manifest.Manifest, opts types.DecodeOptions) (*ScanResult, error) {
	log := logging.OrNop(opts.Logger)
	if m == nil {
		return nil, &types.ManifestError{Field: "manifest", Reason: "missing"}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if err := checkGeometry(s, m); err != nil {
		return nil, err
	}

	leaves, err := m.ShardLeaves()
	if err != nil {
		return nil, err
	}
	if root := integrity.FormatHash(integrity.MerkleRoot(leaves)); root != m.Integrity.MerkleRoot {
		return nil, &types.IntegrityError{Scope: "merkle root", Expected: m.Integrity.MerkleRoot, Observed: root}
	}
	plan, err := interleave.NewPlan(m.InterleaveLayout())
	if err != nil {
		return nil, &types.ManifestError{Field: "interleaving", Reason: err.Error()}
	}
	units, err := interleave.Deinterleave(plan, s.Voxels)
	if err != nil {
		return nil, err
	}
	code, err := m.InnerCode()
	if err != nil {
		return nil, err
	}
	mapper, err := m.Mapper()
	if err != nil {
		return nil, err
	}

	layout := m.ErasureLayout()
	res := &ScanResult{
		Layout: layout,
		Shards: make([]ShardReport, layout.Total()),
		Data:   make([][]byte, layout.Total()),
		leaves: leaves,
	}
	erase := make(map[int]bool, len(opts.Erase))
	for _, i := range opts.Erase {
		if i < 0 || i >= layout.Total() {
			return nil, fmt.Errorf("erase list: shard %d outside 0..%d", i, layout.Total()-1)
		}
		erase[i] = true
	}
	scale := opts.LLRScale
	if scale <= 0 {
		scale = DefaultLLRScale
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(types.Workers(opts.Workers))
	for i := range units {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rep, data, err := scanShard(i, units[i], code, mapper, layout, leaves[i], scale, erase[i])
			if err != nil {
				return shardError(i, err)
			}
			res.Shards[i], res.Data[i] = rep, data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, rep := range res.Shards {
		if rep.State.Usable() {
			continue
		}
		log.Debug("shard unusable", "shard", rep.Index, "state", rep.State, "lost_voxels", rep.LostVoxels)
		if rep.Parity {
			res.Damage.EccDamage = append(res.Damage.EccDamage, rep.Index-layout.DataShards)
		} else {
			res.Damage.DataDamage = append(res.Damage.DataDamage, rep.Index)
		}
	}
	return res, nil
}

func scanShard(i int, unit []voxel.Voxel, code *ldpc.Code, mapper *voxel.Mapper, l erasure.Layout, leaf integrity.Hash, scale float64, erased bool) (ShardReport, []byte, error) {
	rep := ShardReport{Index: i, Parity: i >= l.DataShards, Voxels: len(unit)}
	for _, v := range unit {
		if v.Lost {
			rep.LostVoxels++
		}
	}
	switch {
	case erased:
		rep.State = ShardErased
		return rep, nil, nil
	case rep.LostVoxels == len(unit):
		rep.State = ShardLost
		return rep, nil, nil
	}

	var bits []uint8
	rep.State = ShardClean
	if code != nil {
		dec, err := code.Decode(mapper.CodewordLLR(unit, code.Len(), scale))
		if err != nil {
			return rep, nil, err
		}
		bits = dec.Bits
		rep.Iterations, rep.Unsatisfied, rep.Corrected = dec.Iterations, dec.Unsatisfied, dec.Corrected
		switch {
		case dec.Degraded():
			rep.State = ShardDegraded
		case dec.Corrected > 0:
			rep.State = ShardCorrected
		}
	} else {
		bits = mapper.HardBits(unit, l.ShardSize*8)
	}

	data := ldpc.Pack(bits)
	if len(data) != l.ShardSize {
		return rep, nil, fmt.Errorf("decoded %d bytes, want %d", len(data), l.ShardSize)
	}
	if integrity.LeafHash(i, data) != leaf {
		rep.State = ShardMismatch
	}
	return rep, data, nil
}
