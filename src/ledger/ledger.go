package ledger

import (
	"fmt"
	"sync"

	cm "github.com/mosaicnetworks/ledgersync/src/common"
	"github.com/mosaicnetworks/ledgersync/src/crypto/merkle"
	"github.com/sirupsen/logrus"
)

// Ledger is an append-only, merkle-authenticated sequence of transactions.
// Writes are serialised by the node's event loop; reads may come from other
// goroutines (the HTTP service) and are protected by a RWMutex.
type Ledger struct {
	sync.RWMutex

	id       ID
	store    Store
	frontier *merkle.Frontier

	// leaf hashes of every txn, leaves[i] is that of seqNo i+1
	leaves [][]byte

	logger *logrus.Entry
}

// NewLedger opens ledger id in store, rebuilding the merkle frontier from the
// stored leaf hashes. The leaf hashes are kept in memory to serve proofs.
func NewLedger(id ID, store Store, logger *logrus.Entry) (*Ledger, error) {
	size, err := store.Size(id)
	if err != nil {
		return nil, err
	}

	frontier := merkle.NewFrontier()
	leaves := make([][]byte, 0, size)
	for seqNo := uint64(1); seqNo <= size; seqNo++ {
		leaf, err := store.GetLeafHash(id, seqNo)
		if err != nil {
			return nil, fmt.Errorf("rebuilding %s ledger: %w", id, err)
		}
		frontier.Append(leaf)
		leaves = append(leaves, leaf)
	}

	l := &Ledger{
		id:       id,
		store:    store,
		frontier: frontier,
		leaves:   leaves,
		logger:   logger.WithField("ledger", id.String()),
	}

	l.logger.WithFields(logrus.Fields{
		"size": size,
		"root": merkle.EncodeRoot(frontier.Root()),
	}).Debug("Ledger opened")

	return l, nil
}

// ID returns the identifier of the ledger.
func (l *Ledger) ID() ID {
	return l.id
}

// Size returns the seqNo of the last txn, which is also the number of txns.
func (l *Ledger) Size() uint64 {
	l.RLock()
	defer l.RUnlock()
	return l.frontier.Size()
}

// RootHash returns the raw current merkle root.
func (l *Ledger) RootHash() []byte {
	l.RLock()
	defer l.RUnlock()
	return l.frontier.Root()
}

// Root returns the current merkle root, base-58 encoded.
func (l *Ledger) Root() string {
	return merkle.EncodeRoot(l.RootHash())
}

// Frontier returns a copy of the merkle frontier, which callers may extend
// freely to compute candidate roots.
func (l *Ledger) Frontier() *merkle.Frontier {
	l.RLock()
	defer l.RUnlock()
	return l.frontier.Clone()
}

// RootAt returns the encoded root of the ledger as it was at size.
func (l *Ledger) RootAt(size uint64) (string, error) {
	l.RLock()
	defer l.RUnlock()

	if size == l.frontier.Size() {
		return merkle.EncodeRoot(l.frontier.Root()), nil
	}

	leaves, err := l.leafHashes(size)
	if err != nil {
		return "", err
	}
	return merkle.EncodeRoot(merkle.RootOf(leaves)), nil
}

// ConsistencyProof returns the audit path proving that the ledger at size end
// extends the ledger at size start.
func (l *Ledger) ConsistencyProof(start, end uint64) ([][]byte, error) {
	l.RLock()
	defer l.RUnlock()

	leaves, err := l.leafHashes(end)
	if err != nil {
		return nil, err
	}
	return merkle.ConsistencyProof(leaves, start, end)
}

func (l *Ledger) leafHashes(size uint64) ([][]byte, error) {
	if size > l.frontier.Size() {
		return nil, cm.NewStoreErr("Ledger", cm.KeyNotFound, fmt.Sprintf("%s/%d", l.id, size))
	}
	return l.leaves[:size:size], nil
}

// Append adds txns at the end of the ledger. Nothing is appended if the store
// fails.
func (l *Ledger) Append(txns [][]byte) error {
	l.Lock()
	defer l.Unlock()
	return l.appendAt(l.frontier.Size()+1, txns)
}

// AppendAt is Append for callers that know which seqNo the first txn must
// take. It fails with a PassedIndex or SkippedIndex StoreErr otherwise.
func (l *Ledger) AppendAt(startSeqNo uint64, txns [][]byte) error {
	l.Lock()
	defer l.Unlock()
	return l.appendAt(startSeqNo, txns)
}

func (l *Ledger) appendAt(startSeqNo uint64, txns [][]byte) error {
	if len(txns) == 0 {
		return nil
	}

	frontier := l.frontier.Clone()
	leaves := make([][]byte, len(txns))
	for i, txn := range txns {
		leaves[i] = merkle.LeafHash(txn)
		frontier.Append(leaves[i])
	}

	if err := l.store.Append(l.id, startSeqNo, txns, leaves); err != nil {
		return err
	}

	l.frontier = frontier
	l.leaves = append(l.leaves, leaves...)

	l.logger.WithFields(logrus.Fields{
		"from": startSeqNo,
		"to":   frontier.Size(),
	}).Debug("Appended txns")

	return nil
}

// GetTxn returns the txn at seqNo.
func (l *Ledger) GetTxn(seqNo uint64) ([]byte, error) {
	return l.store.GetTxn(l.id, seqNo)
}

// GetRange returns txns start..end, both included.
func (l *Ledger) GetRange(start, end uint64) ([][]byte, error) {
	if start == 0 || start > end {
		return nil, fmt.Errorf("invalid range [%d, %d]", start, end)
	}
	res := make([][]byte, 0, end-start+1)
	for seqNo := start; seqNo <= end; seqNo++ {
		txn, err := l.store.GetTxn(l.id, seqNo)
		if err != nil {
			return nil, err
		}
		res = append(res, txn)
	}
	return res, nil
}

// LastCommitted returns the last txn of the ledger, or an Empty StoreErr.
func (l *Ledger) LastCommitted() ([]byte, error) {
	size := l.Size()
	if size == 0 {
		return nil, cm.NewStoreErr("Ledger", cm.Empty, l.id.String())
	}
	return l.store.GetTxn(l.id, size)
}

// LastAuditEntry decodes the last committed txn as an AuditEntry. It returns
// nil, nil on an empty ledger.
func (l *Ledger) LastAuditEntry() (*AuditEntry, error) {
	data, err := l.LastCommitted()
	if cm.IsStore(err, cm.Empty) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	entry, err := DecodeAuditEntry(data)
	if err != nil {
		return nil, cm.NewStoreErr("Ledger", cm.Corrupted, fmt.Sprintf("%s/%d", l.id, l.Size()))
	}
	return entry, nil
}
