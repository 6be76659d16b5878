package merkle

import (
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func leaves(n int) [][]byte {
	res := make([][]byte, n)
	for i := range res {
		res[i] = LeafHash([]byte(fmt.Sprintf("txn-%d", i+1)))
	}
	return res
}

func TestKnownHashes(t *testing.T) {
	require.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		hex.EncodeToString(EmptyRoot()))
	require.Equal(t,
		"6e340b9cffb37a989ca544e6bb780a2c78901d3fb33738768511a30617afa01d",
		hex.EncodeToString(LeafHash(nil)))
}

func TestFrontierMatchesFullTree(t *testing.T) {
	all := leaves(33)

	f := NewFrontier()
	require.Equal(t, EmptyRoot(), f.Root())

	for i, l := range all {
		f.Append(l)
		require.Equal(t, uint64(i+1), f.Size())
		require.Equal(t, RootOf(all[:i+1]), f.Root(), "size %d", i+1)
	}
}

func TestFrontierClone(t *testing.T) {
	f := NewFrontier()
	for _, l := range leaves(5) {
		f.Append(l)
	}
	root := f.Root()

	c := f.Clone()
	require.True(t, c.Equal(f))

	c.AppendData([]byte("extra"))
	require.False(t, c.Equal(f))
	require.Equal(t, root, f.Root())
	require.Equal(t, uint64(5), f.Size())
	require.Equal(t, uint64(6), c.Size())
}

func TestConsistencyProofs(t *testing.T) {
	all := leaves(20)

	for n := uint64(0); n <= uint64(len(all)); n++ {
		newRoot := RootOf(all[:n])
		for m := uint64(0); m <= n; m++ {
			oldRoot := RootOf(all[:m])

			proof, err := ConsistencyProof(all, m, n)
			require.NoError(t, err)

			require.NoError(t, VerifyConsistency(m, n, oldRoot, newRoot, proof),
				"m=%d n=%d", m, n)
		}
	}
}

func TestConsistencyProofRejectsTampering(t *testing.T) {
	all := leaves(11)
	oldRoot := RootOf(all[:6])
	newRoot := RootOf(all)

	proof, err := ConsistencyProof(all, 6, 11)
	require.NoError(t, err)
	require.NotEmpty(t, proof)

	forged := RootOf(leaves(10))
	require.ErrorIs(t, VerifyConsistency(6, 11, oldRoot, forged, proof), ErrProofMismatch)
	require.ErrorIs(t, VerifyConsistency(5, 11, oldRoot, newRoot, proof), ErrProofMismatch)
	require.ErrorIs(t, VerifyConsistency(6, 11, oldRoot, newRoot, proof[1:]), ErrProofMismatch)

	bad := make([][]byte, len(proof))
	copy(bad, proof)
	bad[0] = LeafHash([]byte("evil"))
	require.ErrorIs(t, VerifyConsistency(6, 11, oldRoot, newRoot, bad), ErrProofMismatch)

	require.ErrorIs(t, VerifyConsistency(0, 11, oldRoot, newRoot, nil), ErrProofMismatch)
	require.ErrorIs(t, VerifyConsistency(6, 6, oldRoot, newRoot, nil), ErrProofMismatch)

	_, err = ConsistencyProof(all, 12, 11)
	require.ErrorIs(t, err, ErrBadRange)
	_, err = ConsistencyProof(all, 1, 12)
	require.ErrorIs(t, err, ErrBadRange)
}

func TestHashesEncoding(t *testing.T) {
	all := leaves(9)
	proof, err := ConsistencyProof(all, 3, 9)
	require.NoError(t, err)

	decoded, err := DecodeHashes(EncodeHashes(proof))
	require.NoError(t, err)
	require.Equal(t, proof, decoded)

	_, err = DecodeHashes([]string{"0OIl"})
	require.Error(t, err)
}
