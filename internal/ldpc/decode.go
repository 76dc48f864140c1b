package ldpc

import (
	"fmt"
	"math"

	"alexhalogen/crystalarchive/internal/types"
)

// Result of a soft decode. Bits holds the data part of the best
// hypothesis, one bit per byte.
type Result struct {
	Bits        []uint8
	Converged   bool
	Iterations  int
	Unsatisfied int
	// Corrected counts data bits whose decision differs from the channel.
	Corrected int
}

func (r Result) Degraded() bool { return !r.Converged }

// Err is nil for a converged decode and wraps ErrSoftDecodeDegraded
// otherwise.
func (r Result) Err() error {
	if r.Converged {
		return nil
	}
	return fmt.Errorf("%w: %d checks unsatisfied after %d iterations",
		types.ErrSoftDecodeDegraded, r.Unsatisfied, r.Iterations)
}

func hard(x float64) uint8 {
	if x < 0 {
		return 1
	}
	return 0
}

// Decode runs flooding normalized min-sum over the channel LLRs. It stops
// as soon as every check is satisfied or after MaxIterations rounds. A
// decode that does not converge still returns the hypothesis with the
// fewest unsatisfied checks, ties going to the larger total |LLR|.
func (c *Code) Decode(llr []float64) (Result, error) {
	n, k := c.Len(), c.params.DataBits
	if len(llr) != n {
		return Result{}, fmt.Errorf("ldpc: decode wants %d llrs, have %d", n, len(llr))
	}

	decision := make([]uint8, n)
	conf := 0.0
	for v, x := range llr {
		decision[v] = hard(x)
		conf += math.Abs(x)
	}
	channel := append([]uint8(nil), decision[:k]...)
	unsat := c.Unsatisfied(decision)
	if unsat == 0 {
		return Result{Bits: decision[:k], Converged: true}, nil
	}

	best := append([]uint8(nil), decision...)
	bestUnsat, bestConf := unsat, conf

	v2c := make([]float64, len(c.checkVars))
	c2v := make([]float64, len(c.checkVars))
	for e, v := range c.checkVars {
		v2c[e] = llr[v]
	}
	scale := c.params.Scale

	for it := 1; it <= c.params.MaxIterations; it++ {
		for ch := 0; ch < c.params.ParityBits; ch++ {
			lo, hi := c.checkStart[ch], c.checkStart[ch+1]
			min1, min2 := math.Inf(1), math.Inf(1)
			minEdge := int32(-1)
			negative := false
			for e := lo; e < hi; e++ {
				x := v2c[e]
				if x < 0 {
					negative = !negative
				}
				a := math.Abs(x)
				if a < min1 {
					min2, min1, minEdge = min1, a, e
				} else if a < min2 {
					min2 = a
				}
			}
			for e := lo; e < hi; e++ {
				mag := min1
				if e == minEdge {
					mag = min2
				}
				neg := negative
				if v2c[e] < 0 {
					neg = !neg
				}
				if neg {
					c2v[e] = -scale * mag
				} else {
					c2v[e] = scale * mag
				}
			}
		}

		conf = 0
		for v := 0; v < n; v++ {
			edges := c.varEdges[c.varStart[v]:c.varStart[v+1]]
			total := llr[v]
			for _, e := range edges {
				total += c2v[e]
			}
			for _, e := range edges {
				v2c[e] = total - c2v[e]
			}
			decision[v] = hard(total)
			conf += math.Abs(total)
		}

		unsat = c.Unsatisfied(decision)
		if unsat < bestUnsat || (unsat == bestUnsat && conf > bestConf) {
			copy(best, decision)
			bestUnsat, bestConf = unsat, conf
		}
		if unsat == 0 {
			return Result{Bits: best[:k], Converged: true, Iterations: it, Corrected: flips(channel, best[:k])}, nil
		}
	}

	return Result{
		Bits:        best[:k],
		Iterations:  c.params.MaxIterations,
		Unsatisfied: bestUnsat,
		Corrected:   flips(channel, best[:k]),
	}, nil
}

func flips(a, b []uint8) int {
	d := 0
	for i := range a {
		if a[i] != b[i] {
			d++
		}
	}
	return d
}
