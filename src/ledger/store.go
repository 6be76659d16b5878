package ledger

import (
	"encoding/binary"
	"fmt"
	"path/filepath"

	cm "github.com/mosaicnetworks/ledgersync/src/common"
	"github.com/sirupsen/logrus"
)

// Store is the persistence layer shared by the ledgers of a node. Sequence
// numbers start at 1.
type Store interface {
	// Size returns the number of txns stored for a ledger.
	Size(id ID) (uint64, error)
	// GetTxn returns the txn at seqNo.
	GetTxn(id ID, seqNo uint64) ([]byte, error)
	// GetLeafHash returns the merkle leaf hash of the txn at seqNo.
	GetLeafHash(id ID, seqNo uint64) ([]byte, error)
	// Append atomically writes txns and their leaf hashes starting at
	// startSeqNo, which must be Size(id)+1.
	Append(id ID, startSeqNo uint64, txns [][]byte, leafHashes [][]byte) error
	// Close releases the underlying resources.
	Close() error
	// StorePath returns the location of the database, empty for inmem.
	StorePath() string
}

// Backends accepted by NewStore.
const (
	InmemBackend   = "inmem"
	BadgerBackend  = "badger"
	LevelDBBackend = "leveldb"
	PebbleBackend  = "pebble"
)

// NewStore opens, or creates, a Store of the given backend under path.
func NewStore(backend string, path string, logger *logrus.Entry) (Store, error) {
	switch backend {
	case InmemBackend:
		return NewInmemStore(), nil
	case BadgerBackend:
		return NewBadgerStore(filepath.Clean(path), logger)
	case LevelDBBackend:
		return NewLevelDBStore(filepath.Clean(path))
	case PebbleBackend:
		return NewPebbleStore(filepath.Clean(path))
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

//==============================================================================
//Keys

const (
	txnPrefix  = "txn"
	leafPrefix = "leaf"
	sizePrefix = "size"
)

func txnKey(id ID, seqNo uint64) []byte {
	return []byte(fmt.Sprintf("%d_%s_%020d", id, txnPrefix, seqNo))
}

func leafKey(id ID, seqNo uint64) []byte {
	return []byte(fmt.Sprintf("%d_%s_%020d", id, leafPrefix, seqNo))
}

func sizeKey(id ID) []byte {
	return []byte(fmt.Sprintf("%d_%s", id, sizePrefix))
}

func encodeSize(size uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, size)
	return b
}

func decodeSize(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("size record of %d bytes", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

func checkAppend(id ID, size, startSeqNo uint64, txns, leafHashes [][]byte) error {
	if len(txns) != len(leafHashes) {
		return fmt.Errorf("%d txns but %d leaf hashes", len(txns), len(leafHashes))
	}
	key := fmt.Sprintf("%s/%d", id, startSeqNo)
	switch {
	case startSeqNo <= size:
		return cm.NewStoreErr("Ledger", cm.PassedIndex, key)
	case startSeqNo > size+1:
		return cm.NewStoreErr("Ledger", cm.SkippedIndex, key)
	}
	return nil
}
