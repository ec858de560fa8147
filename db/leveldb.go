package db

import (
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// GoLevelDB is a DB backed by a goleveldb store on disk.
type GoLevelDB struct {
	db *leveldb.DB
}

var _ DB = (*GoLevelDB)(nil)

// NewGoLevelDB opens (or creates) a LevelDB database at path.
func NewGoLevelDB(path string) (*GoLevelDB, error) {
	return NewGoLevelDBWithOpts(path, &opt.Options{})
}

func NewGoLevelDBWithOpts(path string, o *opt.Options) (*GoLevelDB, error) {
	ldb, err := leveldb.OpenFile(path, o)
	if err != nil {
		return nil, fmt.Errorf("opening leveldb at %s, %w", path, err)
	}
	return &GoLevelDB{db: ldb}, nil
}

func (db *GoLevelDB) Get(key []byte) ([]byte, error) {
	value, err := db.db.Get(key, nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	return value, nil
}

func (db *GoLevelDB) Has(key []byte) (bool, error) {
	return db.db.Has(key, nil)
}

func (db *GoLevelDB) Set(key, value []byte) error {
	return db.db.Put(key, value, nil)
}

func (db *GoLevelDB) Delete(key []byte) error {
	return db.db.Delete(key, nil)
}

func (db *GoLevelDB) PrefixIterator(prefix []byte) (Iterator, error) {
	it := db.db.NewIterator(util.BytesPrefix(prefix), nil)
	lit := &levelDBIterator{it: it}
	lit.valid = it.Next()
	return lit, nil
}

func (db *GoLevelDB) Close() error { return db.db.Close() }

type levelDBIterator struct {
	it    iterator.Iterator
	valid bool
}

func (it *levelDBIterator) Valid() bool { return it.valid }

func (it *levelDBIterator) Next() { it.valid = it.it.Next() }

func (it *levelDBIterator) Key() []byte {
	// goleveldb reuses the key buffer between steps.
	return append([]byte(nil), it.it.Key()...)
}

func (it *levelDBIterator) Value() []byte {
	return append([]byte(nil), it.it.Value()...)
}

func (it *levelDBIterator) Error() error { return it.it.Error() }

func (it *levelDBIterator) Close() error {
	it.it.Release()
	return it.it.Error()
}
