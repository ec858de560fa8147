package db

import (
	"bytes"
	"sync"

	"github.com/tidwall/btree"
)

type memItem struct {
	key   []byte
	value []byte
}

func memItemLess(a, b memItem) bool {
	return bytes.Compare(a.key, b.key) < 0
}

// MemDB is an in-memory ordered database backed by a btree. It is primarily
// used in tests and for ephemeral trees.
type MemDB struct {
	mtx  sync.RWMutex
	tree *btree.BTreeG[memItem]
}

var _ DB = (*MemDB)(nil)

func NewMemDB() *MemDB {
	return &MemDB{tree: btree.NewBTreeG(memItemLess)}
}

func (db *MemDB) Get(key []byte) ([]byte, error) {
	db.mtx.RLock()
	defer db.mtx.RUnlock()

	item, ok := db.tree.Get(memItem{key: key})
	if !ok {
		return nil, nil
	}
	return item.value, nil
}

func (db *MemDB) Has(key []byte) (bool, error) {
	db.mtx.RLock()
	defer db.mtx.RUnlock()

	_, ok := db.tree.Get(memItem{key: key})
	return ok, nil
}

func (db *MemDB) Set(key, value []byte) error {
	db.mtx.Lock()
	defer db.mtx.Unlock()

	db.tree.Set(memItem{
		key:   bytes.Clone(key),
		value: bytes.Clone(value),
	})
	return nil
}

func (db *MemDB) Delete(key []byte) error {
	db.mtx.Lock()
	defer db.mtx.Unlock()

	db.tree.Delete(memItem{key: key})
	return nil
}

func (db *MemDB) PrefixIterator(prefix []byte) (Iterator, error) {
	db.mtx.RLock()
	defer db.mtx.RUnlock()

	// Snapshot the matching entries so the iterator stays valid across
	// concurrent writes.
	var items []memItem
	db.tree.Ascend(memItem{key: prefix}, func(item memItem) bool {
		if !bytes.HasPrefix(item.key, prefix) {
			return false
		}
		items = append(items, item)
		return true
	})
	return &memIterator{items: items}, nil
}

func (db *MemDB) Close() error { return nil }

// Len returns the number of stored entries.
func (db *MemDB) Len() int {
	db.mtx.RLock()
	defer db.mtx.RUnlock()
	return db.tree.Len()
}

type memIterator struct {
	items []memItem
	pos   int
}

func (it *memIterator) Valid() bool   { return it.pos < len(it.items) }
func (it *memIterator) Next()         { it.pos++ }
func (it *memIterator) Key() []byte   { return it.items[it.pos].key }
func (it *memIterator) Value() []byte { return it.items[it.pos].value }
func (it *memIterator) Error() error  { return nil }
func (it *memIterator) Close() error  { return nil }
