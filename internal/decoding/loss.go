package decoding

import (
	"alexhalogen/crystalarchive/internal/interleave"
	"alexhalogen/crystalarchive/internal/voxel"
)

// PlaneLoss counts the data voxels of one plane and how many were flagged
// lost. Filler positions are not counted.
type PlaneLoss struct {
	Plane  int
	Lost   int
	Voxels int
}

func (p PlaneLoss) Fraction() float64 {
	if p.Voxels == 0 {
		return 0
	}
	return float64(p.Lost) / float64(p.Voxels)
}

// LossMap attributes every lost data voxel to its plane and shard.
type LossMap struct {
	Planes []PlaneLoss
	// Shards holds the lost voxel count per outer shard.
	Shards []int
	Lost   int
	Voxels int
}

// Fraction is the share of data voxels lost, the same basis a deep scan
// reports through ScanResult.LostFraction.
func (l LossMap) Fraction() float64 {
	if l.Voxels == 0 {
		return 0
	}
	return float64(l.Lost) / float64(l.Voxels)
}

// Above lists the planes whose own loss exceeds tolerance.
func (l LossMap) Above(tolerance float64) []int {
	var out []int
	for _, p := range l.Planes {
		if p.Fraction() > tolerance {
			out = append(out, p.Plane)
		}
	}
	return out
}

func lossMap(s *voxel.Stream, plan *interleave.Plan) LossMap {
	lm := LossMap{
		Planes: make([]PlaneLoss, plan.Planes),
		Shards: make([]int, plan.Units),
	}
	for q := range lm.Planes {
		lm.Planes[q].Plane = q
	}
	for x, v := range s.Voxels {
		unit, _, ok := plan.Owner(x)
		if !ok {
			continue
		}
		pl := &lm.Planes[plan.Plane(x)]
		pl.Voxels++
		lm.Voxels++
		if v.Lost {
			pl.Lost++
			lm.Shards[unit]++
			lm.Lost++
		}
	}
	return lm
}
