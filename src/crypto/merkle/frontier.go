package merkle

import (
	"bytes"
)

// Frontier is the compact representation of an append-only merkle tree: the
// roots of the perfect subtrees that make up the tree, leftmost (largest)
// first. It is enough to compute the root and to keep appending.
type Frontier struct {
	size  uint64
	nodes [][]byte
}

// NewFrontier returns the frontier of an empty tree.
func NewFrontier() *Frontier {
	return &Frontier{}
}

// Size returns the number of leaves in the tree.
func (f *Frontier) Size() uint64 {
	return f.size
}

// Append adds a leaf hash (see LeafHash) to the right of the tree.
func (f *Frontier) Append(leafHash []byte) {
	h := leafHash
	for n := f.size; n&1 == 1; n >>= 1 {
		last := f.nodes[len(f.nodes)-1]
		f.nodes = f.nodes[:len(f.nodes)-1]
		h = HashChildren(last, h)
	}
	f.nodes = append(f.nodes, h)
	f.size++
}

// AppendData hashes data as a leaf and appends it.
func (f *Frontier) AppendData(data []byte) {
	f.Append(LeafHash(data))
}

// Root folds the frontier from the right.
func (f *Frontier) Root() []byte {
	if len(f.nodes) == 0 {
		return EmptyRoot()
	}
	acc := f.nodes[len(f.nodes)-1]
	for i := len(f.nodes) - 2; i >= 0; i-- {
		acc = HashChildren(f.nodes[i], acc)
	}
	return acc
}

// Clone returns an independent copy; appending to the copy leaves f intact.
func (f *Frontier) Clone() *Frontier {
	nodes := make([][]byte, len(f.nodes))
	copy(nodes, f.nodes)
	return &Frontier{
		size:  f.size,
		nodes: nodes,
	}
}

// Equal reports whether two frontiers describe the same tree.
func (f *Frontier) Equal(o *Frontier) bool {
	if f.size != o.size || len(f.nodes) != len(o.nodes) {
		return false
	}
	for i := range f.nodes {
		if !bytes.Equal(f.nodes[i], o.nodes[i]) {
			return false
		}
	}
	return true
}
