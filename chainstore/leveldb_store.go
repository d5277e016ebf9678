package chainstore

import (
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDBOptions configures the on-disk store.
type LevelDBOptions struct {
	DataDirectoryPath string `yaml:"DataDirectoryPath"`
}

// LevelDBStore is the persistent Store implementation, used when the
// node's store type is "leveldb". Grounded on the teacher's
// pkg/core/storage.LevelDBStore; adds Delete and Close, which the
// retrieved teacher file omitted but the Store contract requires.
type LevelDBStore struct {
	db   *leveldb.DB
	path string
}

// NewLevelDBStore opens (creating if absent) the database at
// cfg.DataDirectoryPath.
func NewLevelDBStore(cfg LevelDBOptions) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(cfg.DataDirectoryPath, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDBStore{path: cfg.DataDirectoryPath, db: db}, nil
}

// Put implements Store.
func (s *LevelDBStore) Put(key, value []byte) error {
	return s.db.Put(key, value, nil)
}

// Get implements Store.
func (s *LevelDBStore) Get(key []byte) ([]byte, error) {
	v, err := s.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrKeyNotFound
	}
	return v, err
}

// Delete implements Store.
func (s *LevelDBStore) Delete(key []byte) error {
	return s.db.Delete(key, nil)
}

// PutBatch implements Store.
func (s *LevelDBStore) PutBatch(batch Batch) error {
	lvldbBatch := batch.(*leveldb.Batch)
	return s.db.Write(lvldbBatch, nil)
}

// Seek implements Store.
func (s *LevelDBStore) Seek(key []byte, f func(k, v []byte)) {
	iter := s.db.NewIterator(util.BytesPrefix(key), nil)
	for iter.Next() {
		f(iter.Key(), iter.Value())
	}
	iter.Release()
}

// Batch implements Store.
func (s *LevelDBStore) Batch() Batch {
	return new(leveldb.Batch)
}

// Close implements Store.
func (s *LevelDBStore) Close() error {
	return s.db.Close()
}
