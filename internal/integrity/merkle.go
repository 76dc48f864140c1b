package integrity

// Tree is a binary Merkle tree over shard leaf hashes. levels[0] holds the
// leaves and the last level holds the root.
type Tree struct {
	levels [][]Hash
}

// NewTree builds the tree. An empty leaf list yields the zero root.
func NewTree(leaves []Hash) *Tree {
	level := make([]Hash, len(leaves))
	copy(level, leaves)
	t := &Tree{levels: [][]Hash{level}}
	if len(level) == 0 {
		return t
	}

	hasher := newKeyed(nodeDomainKey)
	for len(level) > 1 {
		next := make([]Hash, (len(level)+1)/2)
		for i := 0; i+1 < len(level); i += 2 {
			next[i/2] = hashPair(hasher, level[i], level[i+1])
		}
		if len(level)%2 == 1 {
			next[len(next)-1] = level[len(level)-1]
		}
		t.levels = append(t.levels, next)
		level = next
	}
	return t
}

func (t *Tree) Root() Hash {
	top := t.levels[len(t.levels)-1]
	if len(top) == 0 {
		return Hash{}
	}
	return top[0]
}

// MerkleRoot is a shorthand for NewTree(leaves).Root().
func MerkleRoot(leaves []Hash) Hash {
	return NewTree(leaves).Root()
}

// Localize rehashes the given shards and returns the indices whose leaf
// does not match. Nil entries are skipped.
func Localize(shards [][]byte, leaves []Hash) []int {
	var bad []int
	for i, data := range shards {
		if data == nil {
			continue
		}
		if i >= len(leaves) || LeafHash(i, data) != leaves[i] {
			bad = append(bad, i)
		}
	}
	return bad
}
