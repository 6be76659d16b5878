package merkle

import (
	"bytes"
	"errors"
	"fmt"
)

var (
	// ErrProofMismatch is returned when a consistency proof does not link
	// the two roots it claims to link.
	ErrProofMismatch = errors.New("consistency proof mismatch")

	// ErrBadRange is returned for proofs requested over an impossible range.
	ErrBadRange = errors.New("invalid tree sizes")
)

// ConsistencyProof returns the RFC 6962 consistency proof between the tree of
// size m and the tree of size n, both prefixes of leafHashes. Proofs from an
// empty tree, and between equal sizes, are empty.
func ConsistencyProof(leafHashes [][]byte, m, n uint64) ([][]byte, error) {
	if m > n || n > uint64(len(leafHashes)) {
		return nil, fmt.Errorf("%w: m=%d n=%d leaves=%d", ErrBadRange, m, n, len(leafHashes))
	}
	if m == 0 || m == n {
		return [][]byte{}, nil
	}
	return subproof(m, leafHashes[:n], true), nil
}

func subproof(m uint64, leaves [][]byte, complete bool) [][]byte {
	n := uint64(len(leaves))
	if m == n {
		if complete {
			return [][]byte{}
		}
		return [][]byte{subtreeRoot(leaves)}
	}

	k := largestPowerOfTwoBelow(n)
	if m <= k {
		return append(subproof(m, leaves[:k], complete), subtreeRoot(leaves[k:]))
	}
	return append(subproof(m-k, leaves[k:], false), subtreeRoot(leaves[:k]))
}

// VerifyConsistency checks that newRoot, the root of a tree of size n, is an
// append-only extension of oldRoot, the root of the same tree at size m.
func VerifyConsistency(m, n uint64, oldRoot, newRoot []byte, proof [][]byte) error {
	switch {
	case m > n:
		return fmt.Errorf("%w: m=%d n=%d", ErrBadRange, m, n)
	case m == n:
		if len(proof) != 0 || !bytes.Equal(oldRoot, newRoot) {
			return ErrProofMismatch
		}
		return nil
	case m == 0:
		// Every tree extends the empty tree.
		if len(proof) != 0 || !bytes.Equal(oldRoot, EmptyRoot()) {
			return ErrProofMismatch
		}
		return nil
	case len(proof) == 0:
		return ErrProofMismatch
	}

	path := proof
	if m&(m-1) == 0 {
		path = append([][]byte{oldRoot}, proof...)
	}

	fn, sn := m-1, n-1
	for fn&1 == 1 {
		fn >>= 1
		sn >>= 1
	}

	fr, sr := path[0], path[0]
	for _, c := range path[1:] {
		if sn == 0 {
			return ErrProofMismatch
		}
		if fn&1 == 1 || fn == sn {
			fr = HashChildren(c, fr)
			sr = HashChildren(c, sr)
			for fn&1 == 0 && fn != 0 {
				fn >>= 1
				sn >>= 1
			}
		} else {
			sr = HashChildren(sr, c)
		}
		fn >>= 1
		sn >>= 1
	}

	if sn != 0 || !bytes.Equal(fr, oldRoot) || !bytes.Equal(sr, newRoot) {
		return ErrProofMismatch
	}
	return nil
}
