package ledger

import (
	"errors"
	"fmt"
	"sync"

	cm "github.com/mosaicnetworks/ledgersync/src/common"
)

var errKVNotFound = errors.New("key not found")

type kvPair struct {
	key   []byte
	value []byte
}

// kvDB is what a key-value engine must provide to back a Store.
type kvDB interface {
	// get returns errKVNotFound for missing keys.
	get(key []byte) ([]byte, error)
	// write applies all pairs atomically.
	write(pairs []kvPair) error
	close() error
}

// kvStore implements Store over any kvDB. Ledger sizes are cached in memory.
type kvStore struct {
	l      sync.Mutex
	name   string
	path   string
	db     kvDB
	sizes  map[ID]uint64
	closed bool
}

func newKVStore(name, path string, db kvDB) *kvStore {
	return &kvStore{
		name:  name,
		path:  path,
		db:    db,
		sizes: make(map[ID]uint64),
	}
}

// Size implements the Store interface.
func (s *kvStore) Size(id ID) (uint64, error) {
	s.l.Lock()
	defer s.l.Unlock()
	return s.size(id)
}

func (s *kvStore) size(id ID) (uint64, error) {
	if s.closed {
		return 0, cm.NewStoreErr(s.name, cm.Closed, id.String())
	}
	if size, ok := s.sizes[id]; ok {
		return size, nil
	}

	val, err := s.db.get(sizeKey(id))
	if errors.Is(err, errKVNotFound) {
		s.sizes[id] = 0
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	size, err := decodeSize(val)
	if err != nil {
		return 0, cm.NewStoreErr(s.name, cm.Corrupted, string(sizeKey(id)))
	}

	s.sizes[id] = size
	return size, nil
}

// GetTxn implements the Store interface.
func (s *kvStore) GetTxn(id ID, seqNo uint64) ([]byte, error) {
	return s.getAt(id, seqNo, txnKey(id, seqNo))
}

// GetLeafHash implements the Store interface.
func (s *kvStore) GetLeafHash(id ID, seqNo uint64) ([]byte, error) {
	return s.getAt(id, seqNo, leafKey(id, seqNo))
}

func (s *kvStore) getAt(id ID, seqNo uint64, key []byte) ([]byte, error) {
	s.l.Lock()
	defer s.l.Unlock()

	if s.closed {
		return nil, cm.NewStoreErr(s.name, cm.Closed, string(key))
	}

	val, err := s.db.get(key)
	if errors.Is(err, errKVNotFound) {
		return nil, cm.NewStoreErr(s.name, cm.KeyNotFound, fmt.Sprintf("%s/%d", id, seqNo))
	}
	return val, err
}

// Append implements the Store interface.
func (s *kvStore) Append(id ID, startSeqNo uint64, txns [][]byte, leafHashes [][]byte) error {
	s.l.Lock()
	defer s.l.Unlock()

	size, err := s.size(id)
	if err != nil {
		return err
	}

	if err := checkAppend(id, size, startSeqNo, txns, leafHashes); err != nil {
		return err
	}

	pairs := make([]kvPair, 0, 2*len(txns)+1)
	for i, txn := range txns {
		seqNo := startSeqNo + uint64(i)
		pairs = append(pairs,
			kvPair{txnKey(id, seqNo), txn},
			kvPair{leafKey(id, seqNo), leafHashes[i]},
		)
	}
	newSize := size + uint64(len(txns))
	pairs = append(pairs, kvPair{sizeKey(id), encodeSize(newSize)})

	if err := s.db.write(pairs); err != nil {
		return err
	}

	s.sizes[id] = newSize
	return nil
}

// Close implements the Store interface.
func (s *kvStore) Close() error {
	s.l.Lock()
	defer s.l.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.close()
}

// StorePath implements the Store interface.
func (s *kvStore) StorePath() string {
	return s.path
}
