// Package prng holds the deterministic permutation generator shared by the
// inner code construction and the interleaver. Its exact behavior is
// written into every manifest, so it must never change.
package prng

import "math/rand/v2"

// Name identifies the generator in manifests.
const Name = "pcg-dxsm-128(seed, stream)"

// ShuffleRule documents Permutation for manifest readers.
const ShuffleRule = "perm = [0..n); for i = n-1 down to 1: j = next() mod (i+1); swap perm[i], perm[j]"

// Stream identifiers keep independent uses of one seed apart.
const (
	StreamInner      uint64 = 0x1d9c
	StreamInterleave uint64 = 0x2e4a
	// StreamDamage seeds simulated corruption; trial t uses StreamDamage+t.
	StreamDamage uint64 = 0x3f5b
)

// New returns the generator for seed and stream.
func New(seed, stream uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, stream))
}

// Permutation returns a Fisher-Yates shuffle of [0, n).
func Permutation(n int, seed, stream uint64) []int {
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	src := rand.NewPCG(seed, stream)
	for i := n - 1; i > 0; i-- {
		j := int(src.Uint64() % uint64(i+1))
		perm[i], perm[j] = perm[j], perm[i]
	}
	return perm
}
