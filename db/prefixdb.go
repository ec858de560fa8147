package db

// PrefixDB wraps a DB and namespaces every key under a fixed prefix, letting
// multiple trees share one physical store.
type PrefixDB struct {
	db     DB
	prefix []byte
}

var _ DB = (*PrefixDB)(nil)

func NewPrefixDB(db DB, prefix []byte) *PrefixDB {
	return &PrefixDB{db: db, prefix: prefix}
}

func (pdb *PrefixDB) prefixed(key []byte) []byte {
	out := make([]byte, 0, len(pdb.prefix)+len(key))
	out = append(out, pdb.prefix...)
	return append(out, key...)
}

func (pdb *PrefixDB) Get(key []byte) ([]byte, error) {
	return pdb.db.Get(pdb.prefixed(key))
}

func (pdb *PrefixDB) Has(key []byte) (bool, error) {
	return pdb.db.Has(pdb.prefixed(key))
}

func (pdb *PrefixDB) Set(key, value []byte) error {
	return pdb.db.Set(pdb.prefixed(key), value)
}

func (pdb *PrefixDB) Delete(key []byte) error {
	return pdb.db.Delete(pdb.prefixed(key))
}

func (pdb *PrefixDB) PrefixIterator(prefix []byte) (Iterator, error) {
	it, err := pdb.db.PrefixIterator(pdb.prefixed(prefix))
	if err != nil {
		return nil, err
	}
	return &prefixIterator{it: it, skip: len(pdb.prefix)}, nil
}

// Close is a no-op; the underlying DB is owned by the caller.
func (pdb *PrefixDB) Close() error { return nil }

type prefixIterator struct {
	it   Iterator
	skip int
}

func (it *prefixIterator) Valid() bool   { return it.it.Valid() }
func (it *prefixIterator) Next()         { it.it.Next() }
func (it *prefixIterator) Key() []byte   { return it.it.Key()[it.skip:] }
func (it *prefixIterator) Value() []byte { return it.it.Value() }
func (it *prefixIterator) Error() error  { return it.it.Error() }
func (it *prefixIterator) Close() error  { return it.it.Close() }
