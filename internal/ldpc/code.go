// Package ldpc implements the inner soft-decision code: a systematic
// irregular repeat-accumulate LDPC code decoded with normalized min-sum
// belief propagation.
//
// A codeword is the k data bits followed by m parity bits. Check j covers
// a sparse set of data bits, parity bit j and parity bit j-1, so parity
// bit j is parity bit j-1 xor the data bits of check j.
package ldpc

import (
	"fmt"
	"math"
	"sort"

	"alexhalogen/crystalarchive/internal/prng"
)

const Scheme = "ira-ldpc/normalized-min-sum"

// Construction is written into manifests verbatim.
const Construction = "data bit d owns sockets d*w .. d*w+w-1; perm = permutation(k*w, seed, stream=0x1d9c); " +
	"socket perm[t] joins check t mod m; duplicate (check, bit) pairs dropped; " +
	"check j = sorted data bits + parity j + parity j-1 (j > 0); parity j = parity j-1 xor data bits of check j"

// LLR convention: positive favours bit 0.
const Convention = "llr > 0 means bit 0; erased bits llr 0; hard decision bit = llr < 0"

type Params struct {
	DataBits      int
	ParityBits    int
	ColumnWeight  int
	Seed          uint64
	MaxIterations int
	Scale         float64
}

// ParityBitsFor returns the parity length giving code rate rate for
// dataBits data bits.
func ParityBitsFor(dataBits int, rate float64) int {
	return int(math.Ceil(float64(dataBits)*(1-rate)/rate - 1e-9))
}

func (p Params) validate() error {
	switch {
	case p.DataBits < 1 || p.ParityBits < 1:
		return fmt.Errorf("ldpc: need data and parity bits, have %d/%d", p.DataBits, p.ParityBits)
	case p.ColumnWeight < 1 || p.ColumnWeight > p.ParityBits:
		return fmt.Errorf("ldpc: column weight %d out of range", p.ColumnWeight)
	case p.ParityBits > p.DataBits*p.ColumnWeight:
		return fmt.Errorf("ldpc: %d checks cannot all receive a data bit", p.ParityBits)
	case p.MaxIterations < 1:
		return fmt.Errorf("ldpc: max iterations %d", p.MaxIterations)
	case p.Scale <= 0 || p.Scale > 1:
		return fmt.Errorf("ldpc: min-sum scale %v out of (0, 1]", p.Scale)
	}
	return nil
}

// Code is the Tanner graph in arena form. Edge e connects check c, with
// checkStart[c] <= e < checkStart[c+1], to variable checkVars[e]. The
// edges of variable v are varEdges[varStart[v]:varStart[v+1]].
type Code struct {
	params     Params
	checkStart []int32
	checkVars  []int32
	varStart   []int32
	varEdges   []int32
}

func New(p Params) (*Code, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	k, m, w := p.DataBits, p.ParityBits, p.ColumnWeight

	members := make([][]int32, m)
	perm := prng.Permutation(k*w, p.Seed, prng.StreamInner)
	for t, socket := range perm {
		c := t % m
		members[c] = append(members[c], int32(socket/w))
	}

	code := &Code{params: p, checkStart: make([]int32, m+1)}
	code.checkVars = make([]int32, 0, k*w+2*m)
	for c := 0; c < m; c++ {
		bits := members[c]
		sort.Slice(bits, func(i, j int) bool { return bits[i] < bits[j] })
		for i, b := range bits {
			if i > 0 && bits[i-1] == b {
				continue
			}
			code.checkVars = append(code.checkVars, b)
		}
		code.checkVars = append(code.checkVars, int32(k+c))
		if c > 0 {
			code.checkVars = append(code.checkVars, int32(k+c-1))
		}
		code.checkStart[c+1] = int32(len(code.checkVars))
	}

	n := k + m
	code.varStart = make([]int32, n+1)
	for _, v := range code.checkVars {
		code.varStart[v+1]++
	}
	for v := 0; v < n; v++ {
		code.varStart[v+1] += code.varStart[v]
	}
	code.varEdges = make([]int32, len(code.checkVars))
	cursor := append([]int32(nil), code.varStart[:n]...)
	for e, v := range code.checkVars {
		code.varEdges[cursor[v]] = int32(e)
		cursor[v]++
	}
	return code, nil
}

func (c *Code) Params() Params { return c.params }

// Len is the codeword length in bits.
func (c *Code) Len() int { return c.params.DataBits + c.params.ParityBits }

// Edges is the number of Tanner graph edges.
func (c *Code) Edges() int { return len(c.checkVars) }

// Encode appends the parity bits to data, one bit per byte.
func (c *Code) Encode(data []uint8) ([]uint8, error) {
	k := c.params.DataBits
	if len(data) != k {
		return nil, fmt.Errorf("ldpc: encode wants %d data bits, have %d", k, len(data))
	}
	cw := make([]uint8, c.Len())
	copy(cw, data)
	var acc uint8
	for ch := 0; ch < c.params.ParityBits; ch++ {
		x := acc
		for _, v := range c.checkVars[c.checkStart[ch]:c.checkStart[ch+1]] {
			if int(v) < k {
				x ^= data[v]
			}
		}
		cw[k+ch] = x
		acc = x
	}
	return cw, nil
}

// Unsatisfied counts the parity checks violated by a hard codeword.
func (c *Code) Unsatisfied(cw []uint8) int {
	bad := 0
	for ch := 0; ch < c.params.ParityBits; ch++ {
		var x uint8
		for _, v := range c.checkVars[c.checkStart[ch]:c.checkStart[ch+1]] {
			x ^= cw[v]
		}
		if x != 0 {
			bad++
		}
	}
	return bad
}
