package ledger

import (
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// LevelDBStore is a Store backed by goleveldb.
type LevelDBStore struct {
	*kvStore
	conn *leveldb.DB
}

// NewLevelDBStore opens (or creates) a LevelDB instance at the given path.
func NewLevelDBStore(path string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}

	store := &LevelDBStore{
		conn: db,
	}
	store.kvStore = newKVStore("LevelDBStore", path, store)

	return store, nil
}

func (s *LevelDBStore) get(key []byte) ([]byte, error) {
	val, err := s.conn.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, errKVNotFound
	}
	return val, err
}

func (s *LevelDBStore) write(pairs []kvPair) error {
	batch := new(leveldb.Batch)
	for _, p := range pairs {
		batch.Put(p.key, p.value)
	}
	return s.conn.Write(batch, &opt.WriteOptions{Sync: false})
}

func (s *LevelDBStore) close() error {
	return s.conn.Close()
}
