package ledger

import (
	"fmt"
	"sync"

	cm "github.com/mosaicnetworks/ledgersync/src/common"
)

type inmemLedger struct {
	txns   [][]byte
	leaves [][]byte
}

// InmemStore keeps every ledger in memory. Used by tests and by nodes started
// without a database.
type InmemStore struct {
	l       sync.RWMutex
	ledgers map[ID]*inmemLedger
	closed  bool
}

// NewInmemStore ...
func NewInmemStore() *InmemStore {
	return &InmemStore{
		ledgers: make(map[ID]*inmemLedger),
	}
}

func (s *InmemStore) ledger(id ID) *inmemLedger {
	l, ok := s.ledgers[id]
	if !ok {
		l = &inmemLedger{}
		s.ledgers[id] = l
	}
	return l
}

// Size implements the Store interface.
func (s *InmemStore) Size(id ID) (uint64, error) {
	s.l.Lock()
	defer s.l.Unlock()
	if s.closed {
		return 0, cm.NewStoreErr("InmemStore", cm.Closed, id.String())
	}
	return uint64(len(s.ledger(id).txns)), nil
}

// GetTxn implements the Store interface.
func (s *InmemStore) GetTxn(id ID, seqNo uint64) ([]byte, error) {
	return s.get(id, seqNo, func(l *inmemLedger) [][]byte { return l.txns })
}

// GetLeafHash implements the Store interface.
func (s *InmemStore) GetLeafHash(id ID, seqNo uint64) ([]byte, error) {
	return s.get(id, seqNo, func(l *inmemLedger) [][]byte { return l.leaves })
}

func (s *InmemStore) get(id ID, seqNo uint64, items func(*inmemLedger) [][]byte) ([]byte, error) {
	s.l.Lock()
	defer s.l.Unlock()

	key := fmt.Sprintf("%s/%d", id, seqNo)

	if s.closed {
		return nil, cm.NewStoreErr("InmemStore", cm.Closed, key)
	}

	list := items(s.ledger(id))
	if seqNo == 0 || seqNo > uint64(len(list)) {
		return nil, cm.NewStoreErr("InmemStore", cm.KeyNotFound, key)
	}
	return list[seqNo-1], nil
}

// Append implements the Store interface.
func (s *InmemStore) Append(id ID, startSeqNo uint64, txns [][]byte, leafHashes [][]byte) error {
	s.l.Lock()
	defer s.l.Unlock()

	if s.closed {
		return cm.NewStoreErr("InmemStore", cm.Closed, id.String())
	}

	l := s.ledger(id)
	if err := checkAppend(id, uint64(len(l.txns)), startSeqNo, txns, leafHashes); err != nil {
		return err
	}

	l.txns = append(l.txns, txns...)
	l.leaves = append(l.leaves, leafHashes...)
	return nil
}

// Close implements the Store interface.
func (s *InmemStore) Close() error {
	s.l.Lock()
	defer s.l.Unlock()
	s.closed = true
	return nil
}

// StorePath implements the Store interface.
func (s *InmemStore) StorePath() string {
	return ""
}
