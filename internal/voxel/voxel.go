// Package voxel maps codeword bits onto (orientation, retardance) symbols
// and reads noisy symbols back as per-bit reliabilities.
package voxel

import (
	"fmt"
	"math"
)

// Voxel is one stored symbol. Orientation is in degrees on [0, 180),
// retardance in waves on [0, 1]. Lost marks a voxel that could not be
// read at all.
type Voxel struct {
	Orientation float32
	Retardance  float32
	Lost        bool
}

// Conventions written into manifests.
const (
	BitOrder      = "orientation gray code carries the high bits, retardance gray code the low bits; within a symbol the first codeword bit is the most significant"
	SymbolOrder   = "codeword bits zero padded to symbols*b; symbol s carries codeword bits s + j*symbols for j = 0 .. b-1, j = 0 most significant"
	OrientationAx = "level i at i*180/O degrees, circular modulo 180"
	RetardanceAx  = "level i at (2i+1)/(2R) waves"
)

// Mapper converts between b-bit symbols and voxels.
type Mapper struct {
	oBits, rBits int
	oLevels      []float64
	rLevels      []float64
}

func NewMapper(orientationBits, retardanceBits int) (*Mapper, error) {
	if orientationBits < 1 || retardanceBits < 0 || orientationBits+retardanceBits > 8 {
		return nil, fmt.Errorf("voxel: unsupported split %d+%d bits", orientationBits, retardanceBits)
	}
	m := &Mapper{oBits: orientationBits, rBits: retardanceBits}
	o, r := 1<<orientationBits, 1<<retardanceBits
	m.oLevels = make([]float64, o)
	for i := range m.oLevels {
		m.oLevels[i] = float64(i) * 180 / float64(o)
	}
	m.rLevels = make([]float64, r)
	for i := range m.rLevels {
		m.rLevels[i] = float64(2*i+1) / float64(2*r)
	}
	return m, nil
}

func (m *Mapper) Bits() int                    { return m.oBits + m.rBits }
func (m *Mapper) OrientationLevels() []float64 { return m.oLevels }
func (m *Mapper) RetardanceLevels() []float64  { return m.rLevels }
func (m *Mapper) OrientationBits() int         { return m.oBits }
func (m *Mapper) RetardanceBits() int          { return m.rBits }

// orientationStep is the angular spacing between adjacent levels.
func (m *Mapper) orientationStep() float64 { return 180 / float64(len(m.oLevels)) }

// Voxel returns the ideal voxel for symbol sym.
func (m *Mapper) Voxel(sym int) Voxel {
	oCode := sym >> m.rBits
	rCode := sym & (1<<m.rBits - 1)
	return Voxel{
		Orientation: float32(m.oLevels[InverseGray(oCode)]),
		Retardance:  float32(m.rLevels[InverseGray(rCode)]),
	}
}

// axisRead is the quantization of one axis: the nearest level, the
// neighbour across the nearest decision boundary (or -1) and the margin,
// 1 on a level and 0 on a boundary.
type axisRead struct {
	level, neighbour int
	margin           float64
}

func (m *Mapper) readOrientation(deg float64) axisRead {
	n := len(m.oLevels)
	u := math.Mod(deg/m.orientationStep(), float64(n))
	if u < 0 {
		u += float64(n)
	}
	nearest := math.Round(u)
	delta := u - nearest
	level := int(nearest) % n
	dir := 1
	if delta < 0 {
		dir = -1
	}
	if n == 1 {
		return axisRead{level: 0, neighbour: -1, margin: 1}
	}
	return axisRead{
		level:     level,
		neighbour: ((level+dir)%n + n) % n,
		margin:    1 - 2*math.Abs(delta),
	}
}

func (m *Mapper) readRetardance(waves float64) axisRead {
	n := len(m.rLevels)
	if n == 1 {
		return axisRead{level: 0, neighbour: -1, margin: 1}
	}
	u := waves*float64(n) - 0.5
	nearest := math.Max(0, math.Min(float64(n-1), math.Round(u)))
	delta := u - nearest
	level := int(nearest)
	dir := 1
	if delta < 0 {
		dir = -1
	}
	neighbour := level + dir
	if neighbour < 0 || neighbour >= n {
		return axisRead{level: level, neighbour: -1, margin: 1}
	}
	return axisRead{level: level, neighbour: neighbour, margin: 1 - 2*math.Abs(delta)}
}

// Demap returns the hard symbol and a confidence in [0, 1]: the smaller
// of the two axis margins. Lost voxels read as symbol 0 with confidence 0.
func (m *Mapper) Demap(v Voxel) (sym int, confidence float64) {
	if v.Lost {
		return 0, 0
	}
	o := m.readOrientation(float64(v.Orientation))
	r := m.readRetardance(float64(v.Retardance))
	sym = Gray(o.level)<<m.rBits | Gray(r.level)
	return sym, math.Min(o.margin, r.margin)
}

// SoftBits writes one LLR per symbol bit into out, most significant first.
// The bit that separates the nearest level from its neighbour across the
// nearest boundary gets scale*margin, every other bit gets scale. Lost
// voxels give zeros.
func (m *Mapper) SoftBits(v Voxel, scale float64, out []float64) {
	b := m.Bits()
	if v.Lost {
		for i := 0; i < b; i++ {
			out[i] = 0
		}
		return
	}
	o := m.readOrientation(float64(v.Orientation))
	r := m.readRetardance(float64(v.Retardance))
	fill := func(code, neighbourCode, bits, base int, margin float64) {
		diff := code ^ neighbourCode
		for j := 0; j < bits; j++ {
			shift := bits - 1 - j
			mag := scale
			if neighbourCode >= 0 && (diff>>shift)&1 == 1 {
				mag = scale * margin
			}
			if (code>>shift)&1 == 1 {
				mag = -mag
			}
			out[base+j] = mag
		}
	}
	oNeighbour, rNeighbour := -1, -1
	if o.neighbour >= 0 {
		oNeighbour = Gray(o.neighbour)
	}
	if r.neighbour >= 0 {
		rNeighbour = Gray(r.neighbour)
	}
	fill(Gray(o.level), oNeighbour, m.oBits, 0, o.margin)
	fill(Gray(r.level), rNeighbour, m.rBits, m.oBits, r.margin)
}

// SymbolsFor is the number of voxels needed for n codeword bits.
func (m *Mapper) SymbolsFor(n int) int { return (n + m.Bits() - 1) / m.Bits() }

// MapCodeword maps codeword bits to voxels in symbol order.
func (m *Mapper) MapCodeword(bits []uint8) []Voxel {
	b := m.Bits()
	symbols := m.SymbolsFor(len(bits))
	out := make([]Voxel, symbols)
	for s := range out {
		sym := 0
		for j := 0; j < b; j++ {
			sym <<= 1
			if i := s + j*symbols; i < len(bits) {
				sym |= int(bits[i] & 1)
			}
		}
		out[s] = m.Voxel(sym)
	}
	return out
}

// CodewordLLR reads voxels back into n codeword LLRs, the inverse of
// MapCodeword.
func (m *Mapper) CodewordLLR(voxels []Voxel, n int, scale float64) []float64 {
	b := m.Bits()
	symbols := len(voxels)
	llr := make([]float64, n)
	soft := make([]float64, b)
	for s, v := range voxels {
		m.SoftBits(v, scale, soft)
		for j := 0; j < b; j++ {
			if i := s + j*symbols; i < n {
				llr[i] = soft[j]
			}
		}
	}
	return llr
}

// HardBits demaps voxels into n codeword bits with no soft information.
func (m *Mapper) HardBits(voxels []Voxel, n int) []uint8 {
	b := m.Bits()
	symbols := len(voxels)
	bits := make([]uint8, n)
	for s, v := range voxels {
		sym, _ := m.Demap(v)
		for j := 0; j < b; j++ {
			if i := s + j*symbols; i < n {
				bits[i] = uint8(sym>>(b-1-j)) & 1
			}
		}
	}
	return bits
}
