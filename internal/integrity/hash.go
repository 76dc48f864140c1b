// Package integrity computes the archive's content hashes: SHA-256 for
// files and the packed blob, a BLAKE3 Merkle tree over outer shards, and
// the optional Ed25519 manifest signature.
package integrity

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Hash is a 32-byte BLAKE3 digest.
type Hash [32]byte

type domainKey [32]byte

// Domain keys are ASCII names zero-padded to 32 bytes. Changing them
// invalidates every stored shard hash.
var (
	shardDomainKey = domainKey{
		'c', 'r', 'y', 's', 't', 'a', 'l', '.', 'a', 'r', 'c', 'h', 'i', 'v', 'e', '.',
		's', 'h', 'a', 'r', 'd', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	nodeDomainKey = domainKey{
		'c', 'r', 'y', 's', 't', 'a', 'l', '.', 'a', 'r', 'c', 'h', 'i', 'v', 'e', '.',
		'n', 'o', 'd', 'e', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
)

// LeafScheme and NodeScheme describe the tree hashing for manifest readers.
const (
	LeafScheme = "blake3-keyed(key=\"crystal.archive.shard\" zero padded to 32 bytes, u32le(index) || shard bytes)"
	NodeScheme = "blake3-keyed(key=\"crystal.archive.node\" zero padded to 32 bytes, left || right); odd node promoted unchanged"
)

// SHA256Hex returns the lowercase hex SHA-256 of data.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// LeafHash hashes one shard. The index is part of the input so two
// identical shards still get distinct leaves.
func LeafHash(index int, data []byte) Hash {
	hasher := newKeyed(shardDomainKey)
	var prefix [4]byte
	binary.LittleEndian.PutUint32(prefix[:], uint32(index))
	hasher.Write(prefix[:])
	hasher.Write(data)
	var h Hash
	copy(h[:], hasher.Sum(nil))
	return h
}

func hashPair(hasher *blake3.Hasher, left, right Hash) Hash {
	var combined [64]byte
	copy(combined[:32], left[:])
	copy(combined[32:], right[:])
	hasher.Reset()
	hasher.Write(combined[:])
	var h Hash
	copy(h[:], hasher.Sum(nil))
	return h
}

func newKeyed(key domainKey) *blake3.Hasher {
	// NewKeyed only fails on a key of the wrong length.
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic("integrity: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	return hasher
}

// FormatHash returns the hex form used in manifests and logs.
func FormatHash(h Hash) string {
	return hex.EncodeToString(h[:])
}

func ParseHash(s string) (Hash, error) {
	var h Hash
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("parsing hash: %w", err)
	}
	if len(decoded) != len(h) {
		return h, fmt.Errorf("hash is %d bytes, want %d", len(decoded), len(h))
	}
	copy(h[:], decoded)
	return h, nil
}
