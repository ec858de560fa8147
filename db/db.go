// Package db defines the ordered byte-string key-value database the tree
// engine persists into, together with in-memory and LevelDB-backed
// implementations.
package db

// DB is an ordered key-value store. Keys and values are arbitrary byte
// strings; iteration order is ascending lexicographic key order.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type DB interface {
	// Get returns the value for key, or nil if the key is absent.
	Get(key []byte) ([]byte, error)

	// Has reports whether key is present.
	Has(key []byte) (bool, error)

	// Set stores value under key, overwriting any previous value.
	Set(key, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(key []byte) error

	// PrefixIterator iterates over all entries whose key starts with prefix,
	// in ascending key order.
	PrefixIterator(prefix []byte) (Iterator, error)

	Close() error
}

// Iterator walks a key range in ascending order. It is positioned on the
// first entry at creation; callers check Valid before Key/Value and call
// Close when done.
type Iterator interface {
	Valid() bool
	Next()
	Key() []byte
	Value() []byte
	Error() error
	Close() error
}
