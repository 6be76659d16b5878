package ledger

import (
	"os"

	"github.com/dgraph-io/badger"
	badger_options "github.com/dgraph-io/badger/options"
	"github.com/sirupsen/logrus"
)

// BadgerStore is the default persistent Store.
type BadgerStore struct {
	*kvStore
	db *badger.DB
}

// NewBadgerStore opens an existing database or creates a new one if nothing is
// found in path.
func NewBadgerStore(path string, logger *logrus.Entry) (*BadgerStore, error) {
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(path).
		WithSyncWrites(false).
		WithTruncate(true).
		WithTableLoadingMode(badger_options.FileIO).
		WithValueLogLoadingMode(badger_options.FileIO)

	if logger != nil {
		sub := logger.WithFields(logrus.Fields{"ns": "badger"})
		opts = opts.WithLogger(sub)
	}

	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	store := &BadgerStore{
		db: handle,
	}
	store.kvStore = newKVStore("BadgerStore", path, store)

	return store, nil
}

func (s *BadgerStore) get(key []byte) ([]byte, error) {
	var val []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})

	if err == badger.ErrKeyNotFound {
		return nil, errKVNotFound
	}

	return val, err
}

func (s *BadgerStore) write(pairs []kvPair) error {
	tx := s.db.NewTransaction(true)
	defer tx.Discard()

	for _, p := range pairs {
		if err := tx.Set(p.key, p.value); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *BadgerStore) close() error {
	return s.db.Close()
}
