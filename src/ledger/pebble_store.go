package ledger

import (
	"github.com/cockroachdb/pebble"
)

// PebbleStore is a Store backed by Pebble.
type PebbleStore struct {
	*kvStore
	db *pebble.DB
}

// NewPebbleStore opens (or creates) a Pebble database at the given path.
func NewPebbleStore(path string) (*PebbleStore, error) {
	opts := &pebble.Options{
		MemTableSize:                16 << 20,
		MemTableStopWritesThreshold: 2,
	}

	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, err
	}

	store := &PebbleStore{
		db: db,
	}
	store.kvStore = newKVStore("PebbleStore", path, store)

	return store, nil
}

func (s *PebbleStore) get(key []byte) ([]byte, error) {
	value, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, errKVNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	// value is only valid until closer.Close()
	result := make([]byte, len(value))
	copy(result, value)

	return result, nil
}

func (s *PebbleStore) write(pairs []kvPair) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	for _, p := range pairs {
		if err := batch.Set(p.key, p.value, nil); err != nil {
			return err
		}
	}

	return batch.Commit(pebble.Sync)
}

func (s *PebbleStore) close() error {
	return s.db.Close()
}
