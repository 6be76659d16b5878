package peers

import "fmt"

// Quorum is a minimum number of distinct peers.
type Quorum int

// IsReached reports whether count peers make the quorum.
func (q Quorum) IsReached(count int) bool {
	return count >= int(q)
}

// Quorums groups the thresholds used by the catch-up protocol for a given
// pool size.
type Quorums struct {
	N int
	F int

	// LedgerStatus is the number of peers (excluding ourselves) that must
	// report exactly our ledger for it to be considered up to date.
	LedgerStatus Quorum
	// LastOrdered3PC is the number of peers that must report the same 3PC
	// marker for it to be adopted.
	LastOrdered3PC Quorum
	// ConsistencyProof is the number of peers that must send the same
	// (seqNoEnd, newMerkleRoot) for it to become the catch-up target.
	ConsistencyProof Quorum

	Weak   Quorum
	Strong Quorum
}

// MaxFaulty returns f = floor((n-1)/3).
func MaxFaulty(n int) int {
	if n < 1 {
		return 0
	}
	return (n - 1) / 3
}

// NewQuorums computes the thresholds for a pool of n nodes.
func NewQuorums(n int) Quorums {
	f := MaxFaulty(n)
	return Quorums{
		N:                n,
		F:                f,
		LedgerStatus:     Quorum(n - f - 1),
		LastOrdered3PC:   Quorum(f + 1),
		ConsistencyProof: Quorum(f + 1),
		Weak:             Quorum(f + 1),
		Strong:           Quorum(n - f),
	}
}

func (q Quorums) String() string {
	return fmt.Sprintf("N=%d f=%d status=%d 3pc=%d proof=%d",
		q.N, q.F, q.LedgerStatus, q.LastOrdered3PC, q.ConsistencyProof)
}
