// Package interleave spreads codeword symbols over physical planes so that
// a contiguous run of damage lands in many codewords, one symbol each.
package interleave

import (
	"fmt"

	"alexhalogen/crystalarchive/internal/prng"
)

// Schedule is written into manifests verbatim.
const Schedule = "unit u goes to plane u mod p at ordinal u div p; plane position = ordinal*unit_len + offset; " +
	"every plane is padded with filler to slots = ceil(units/p)*unit_len; " +
	"physical slot s of plane q holds plane position perm_q[s], perm_q = permutation(slots, seed, stream=0x2e4a+q), identity when shuffle is off; " +
	"stream index = slot*p + q"

// Layout is everything needed to rebuild the permutation.
type Layout struct {
	Units   int
	UnitLen int
	Planes  int
	Seed    uint64
	Shuffle bool
}

// Slots is the number of voxels in each plane.
func (l Layout) Slots() int {
	perPlane := (l.Units + l.Planes - 1) / l.Planes
	return perPlane * l.UnitLen
}

// Len is the total stream length including filler.
func (l Layout) Len() int { return l.Slots() * l.Planes }

// Plan caches the per-plane permutations of a Layout.
type Plan struct {
	Layout
	perm [][]int32 // physical slot -> plane position
	inv  [][]int32 // plane position -> physical slot
}

func NewPlan(l Layout) (*Plan, error) {
	if l.Units < 1 || l.UnitLen < 1 || l.Planes < 1 {
		return nil, fmt.Errorf("interleave: bad layout %+v", l)
	}
	slots := l.Slots()
	p := &Plan{Layout: l, perm: make([][]int32, l.Planes), inv: make([][]int32, l.Planes)}
	for q := 0; q < l.Planes; q++ {
		p.perm[q] = make([]int32, slots)
		p.inv[q] = make([]int32, slots)
		if !l.Shuffle {
			for s := range p.perm[q] {
				p.perm[q][s] = int32(s)
				p.inv[q][s] = int32(s)
			}
			continue
		}
		for s, pos := range prng.Permutation(slots, l.Seed, prng.StreamInterleave+uint64(q)) {
			p.perm[q][s] = int32(pos)
			p.inv[q][pos] = int32(s)
		}
	}
	return p, nil
}

// Index returns the stream position of symbol offset of unit.
func (p *Plan) Index(unit, offset int) int {
	q := unit % p.Planes
	pos := (unit/p.Planes)*p.UnitLen + offset
	return int(p.inv[q][pos])*p.Planes + q
}

// Owner maps a stream position back to its unit and offset. ok is false
// for filler positions.
func (p *Plan) Owner(x int) (unit, offset int, ok bool) {
	q, s := x%p.Planes, x/p.Planes
	pos := int(p.perm[q][s])
	unit = (pos/p.UnitLen)*p.Planes + q
	if unit >= p.Units {
		return 0, 0, false
	}
	return unit, pos % p.UnitLen, true
}

// Plane returns the plane a stream position belongs to.
func (p *Plan) Plane(x int) int { return x % p.Planes }

// Interleave lays units out in stream order. Every unit must be UnitLen
// long; unused slots get filler.
func Interleave[T any](p *Plan, units [][]T, filler T) ([]T, error) {
	if len(units) != p.Units {
		return nil, fmt.Errorf("interleave: have %d units, layout wants %d", len(units), p.Units)
	}
	stream := make([]T, p.Len())
	for i := range stream {
		stream[i] = filler
	}
	for u, symbols := range units {
		if len(symbols) != p.UnitLen {
			return nil, fmt.Errorf("interleave: unit %d has %d symbols, want %d", u, len(symbols), p.UnitLen)
		}
		for off, sym := range symbols {
			stream[p.Index(u, off)] = sym
		}
	}
	return stream, nil
}

// Deinterleave is the exact inverse of Interleave.
func Deinterleave[T any](p *Plan, stream []T) ([][]T, error) {
	if len(stream) != p.Len() {
		return nil, fmt.Errorf("interleave: stream has %d symbols, layout wants %d", len(stream), p.Len())
	}
	units := make([][]T, p.Units)
	for u := range units {
		units[u] = make([]T, p.UnitLen)
		for off := range units[u] {
			units[u][off] = stream[p.Index(u, off)]
		}
	}
	return units, nil
}
