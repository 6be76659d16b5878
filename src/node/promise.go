package node

import (
	"github.com/mosaicnetworks/ledgersync/src/ledger"
)

// CommitPromise carries a batch ordered by the pool to the node's loop, and
// the result of its commit back to the caller.
type CommitPromise struct {
	LedgerID ledger.ID
	ThreePC  ledger.ThreePC
	Txns     [][]byte
	RespCh   chan error
}

// NewCommitPromise ...
func NewCommitPromise(id ledger.ID, tpc ledger.ThreePC, txns [][]byte) *CommitPromise {
	return &CommitPromise{
		LedgerID: id,
		ThreePC:  tpc,
		Txns:     txns,
		// buffered so the loop never waits for the caller
		RespCh: make(chan error, 1),
	}
}

// Respond ...
func (p *CommitPromise) Respond(err error) {
	p.RespCh <- err
}
