package merkle

import (
	"crypto/sha256"
)

const (
	leafPrefix = 0x00
	nodePrefix = 0x01
)

// HashSize is the length in bytes of every digest in the tree.
const HashSize = sha256.Size

// LeafHash returns the hash of a leaf holding data.
func LeafHash(data []byte) []byte {
	h := sha256.New()
	h.Write([]byte{leafPrefix})
	h.Write(data)
	return h.Sum(nil)
}

// HashChildren returns the hash of an interior node.
func HashChildren(left, right []byte) []byte {
	h := sha256.New()
	h.Write([]byte{nodePrefix})
	h.Write(left)
	h.Write(right)
	return h.Sum(nil)
}

// EmptyRoot is the root of a tree without leaves.
func EmptyRoot() []byte {
	sum := sha256.Sum256(nil)
	return sum[:]
}

// largestPowerOfTwoBelow returns the largest power of two strictly smaller
// than n. n must be greater than 1.
func largestPowerOfTwoBelow(n uint64) uint64 {
	k := uint64(1)
	for k<<1 < n {
		k <<= 1
	}
	return k
}

// subtreeRoot computes MTH over a slice of leaf hashes.
func subtreeRoot(leaves [][]byte) []byte {
	switch len(leaves) {
	case 0:
		return EmptyRoot()
	case 1:
		return leaves[0]
	}
	k := largestPowerOfTwoBelow(uint64(len(leaves)))
	return HashChildren(subtreeRoot(leaves[:k]), subtreeRoot(leaves[k:]))
}

// RootOf computes the root of the tree formed by the given leaf hashes.
func RootOf(leafHashes [][]byte) []byte {
	return subtreeRoot(leafHashes)
}
