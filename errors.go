package iavl

import (
	"errors"
	"fmt"
)

var (
	// ErrVersionNotFound is returned when a requested version was never saved.
	ErrVersionNotFound = errors.New("version not found")

	// ErrOverwrite is returned by SaveVersion when the working root differs
	// from a root already committed under the same version number.
	ErrOverwrite = errors.New("cannot overwrite existing version with different content")

	// ErrNodeDeserialize is returned when stored node bytes are truncated or
	// otherwise malformed.
	ErrNodeDeserialize = errors.New("malformed node bytes")

	// ErrRotate means a rotation was attempted on a shape that cannot rotate
	// (a leaf, or a branch whose pivot child is a leaf). It indicates a bug
	// in the balancing logic and never occurs in correct operation.
	ErrRotate = errors.New("cannot rotate node")
)

// corrupt panics with a description of an integrity violation. A node hash
// referenced by the tree but absent from the store, or undecodable stored
// bytes, mean the database itself is damaged; callers are not expected to
// recover from that.
func corrupt(format string, args ...any) {
	panic(fmt.Sprintf("database corruption: "+format, args...))
}
