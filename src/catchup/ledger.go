package catchup

import (
	"github.com/mosaicnetworks/ledgersync/src/crypto/merkle"
	"github.com/mosaicnetworks/ledgersync/src/ledger"
)

// Ledger is the view of a ledger needed to catch it up and to serve it.
// *ledger.Ledger implements it.
type Ledger interface {
	ID() ledger.ID
	Size() uint64
	Root() string
	RootHash() []byte
	RootAt(size uint64) (string, error)
	Frontier() *merkle.Frontier
	ConsistencyProof(start, end uint64) ([][]byte, error)
	GetRange(start, end uint64) ([][]byte, error)
	AppendAt(startSeqNo uint64, txns [][]byte) error
}

// Sender sends a command to a peer without waiting for an answer.
// net.Transport implements it.
type Sender interface {
	Send(target string, cmd interface{}) error
}

var _ Ledger = (*ledger.Ledger)(nil)
