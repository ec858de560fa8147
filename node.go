// Package iavl implements a versioned, AVL-balanced, content-addressed Merkle
// key-value tree. Mutations build an in-memory working copy; SaveVersion
// persists every new node into a NodeDB keyed by its hash and records one
// root hash per version, so any saved version can be reloaded for historical
// reads.
package iavl

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Hash is a SHA-256 node digest.
type Hash = [32]byte

// EmptyHash is the canonical root hash of an empty tree.
var EmptyHash = Hash{}

// Node is a single tree node. A node with height 0 is a leaf carrying a
// key/value pair; any other node is a branch whose key equals the key of the
// leftmost leaf in its right subtree. Branch children are either resident in
// memory (left/right non-nil) or referenced by hash alone and fetched from
// the NodeDB on demand.
//
// Nodes are immutable once persisted: mutating a persisted node is modeled as
// building a replacement with a new version and hash, never editing stored
// bytes.
type Node struct {
	key       []byte
	value     []byte // leaves only
	version   uint32
	persisted bool

	// branch fields
	height    uint8
	size      uint32 // leaf count of the subtree; 1 for leaves
	leftHash  Hash
	rightHash Hash
	left      *Node // nil means fetch by leftHash when needed
	right     *Node
}

func newLeafNode(key, value []byte, version uint32) *Node {
	return &Node{
		key:     key,
		value:   value,
		version: version,
		size:    1,
	}
}

func (node *Node) isLeaf() bool { return node.height == 0 }

// shallowClone copies the node without its resident children.
func (node *Node) shallowClone() *Node {
	c := *node
	c.left = nil
	c.right = nil
	return &c
}

// writeHashBytes writes the node's hash preimage. Heights, sizes and versions
// are signed 64-bit varints and the leaf value is hashed rather than written
// raw, for compatibility with the wider IAVL ecosystem. Branch keys are not
// part of the preimage, unlike the storage encoding.
func (node *Node) writeHashBytes(w io.Writer) error {
	var (
		n   int
		buf [binary.MaxVarintLen64]byte
	)

	n = binary.PutVarint(buf[:], int64(node.height))
	if _, err := w.Write(buf[0:n]); err != nil {
		return fmt.Errorf("writing height, %w", err)
	}
	n = binary.PutVarint(buf[:], int64(node.size))
	if _, err := w.Write(buf[0:n]); err != nil {
		return fmt.Errorf("writing size, %w", err)
	}
	n = binary.PutVarint(buf[:], int64(node.version))
	if _, err := w.Write(buf[0:n]); err != nil {
		return fmt.Errorf("writing version, %w", err)
	}

	if node.isLeaf() {
		if err := encodeBytes(w, node.key); err != nil {
			return fmt.Errorf("writing key, %w", err)
		}
		// Indirection needed to provide proofs without values.
		valueHash := sha256.Sum256(node.value)
		if err := encodeBytes(w, valueHash[:]); err != nil {
			return fmt.Errorf("writing value, %w", err)
		}
	} else {
		if err := encodeBytes(w, node.leftHash[:]); err != nil {
			return fmt.Errorf("writing left hash, %w", err)
		}
		if err := encodeBytes(w, node.rightHash[:]); err != nil {
			return fmt.Errorf("writing right hash, %w", err)
		}
	}

	return nil
}

// hash computes the node's content hash. Two nodes with the same hash are
// semantically identical and interchangeable.
func (node *Node) hash() Hash {
	h := sha256.New()
	if err := node.writeHashBytes(h); err != nil {
		panic(err)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// serialize produces the storage encoding: unsigned varints for height, size
// and version, then the length-prefixed key, then either the raw value (leaf)
// or the length-prefixed child hashes (branch). It deliberately differs from
// the hash preimage: raw values and direct child hashes make decoding cheap.
func (node *Node) serialize() []byte {
	buf := make([]byte, 0, 16+len(node.key)+len(node.value))
	buf = binary.AppendUvarint(buf, uint64(node.height))
	buf = binary.AppendUvarint(buf, uint64(node.size))
	buf = binary.AppendUvarint(buf, uint64(node.version))
	buf = appendBytes(buf, node.key)
	if node.isLeaf() {
		buf = appendBytes(buf, node.value)
	} else {
		buf = appendBytes(buf, node.leftHash[:])
		buf = appendBytes(buf, node.rightHash[:])
	}
	return buf
}

// deserializeNode decodes a storage encoding produced by serialize. The
// returned node is marked persisted. Truncated or malformed input returns
// ErrNodeDeserialize.
func deserializeNode(bz []byte) (*Node, error) {
	height, n := binary.Uvarint(bz)
	if n <= 0 || height > math.MaxUint8 {
		return nil, fmt.Errorf("%w: height", ErrNodeDeserialize)
	}
	bz = bz[n:]
	size, n := binary.Uvarint(bz)
	if n <= 0 || size > math.MaxUint32 {
		return nil, fmt.Errorf("%w: size", ErrNodeDeserialize)
	}
	bz = bz[n:]
	version, n := binary.Uvarint(bz)
	if n <= 0 || version > math.MaxUint32 {
		return nil, fmt.Errorf("%w: version", ErrNodeDeserialize)
	}
	bz = bz[n:]
	key, n, err := decodeBytes(bz)
	if err != nil {
		return nil, fmt.Errorf("%w: key", ErrNodeDeserialize)
	}
	bz = bz[n:]

	node := &Node{
		key:       key,
		version:   uint32(version),
		persisted: true,
		height:    uint8(height),
		size:      uint32(size),
	}

	if node.isLeaf() {
		value, _, err := decodeBytes(bz)
		if err != nil {
			return nil, fmt.Errorf("%w: value", ErrNodeDeserialize)
		}
		node.value = value
		return node, nil
	}

	leftHash, n, err := decodeBytes(bz)
	if err != nil || len(leftHash) != len(Hash{}) {
		return nil, fmt.Errorf("%w: left hash", ErrNodeDeserialize)
	}
	bz = bz[n:]
	rightHash, _, err := decodeBytes(bz)
	if err != nil || len(rightHash) != len(Hash{}) {
		return nil, fmt.Errorf("%w: right hash", ErrNodeDeserialize)
	}
	copy(node.leftHash[:], leftHash)
	copy(node.rightHash[:], rightHash)
	return node, nil
}

// encodeBytes writes a varint length-prefixed byte slice, the framing shared
// by both the hash preimage and the storage encoding.
func encodeBytes(w io.Writer, bz []byte) error {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], uint64(len(bz)))
	if _, err := w.Write(buf[0:n]); err != nil {
		return err
	}
	_, err := w.Write(bz)
	return err
}

func appendBytes(buf, bz []byte) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(bz)))
	return append(buf, bz...)
}

func decodeBytes(bz []byte) ([]byte, int, error) {
	length, n := binary.Uvarint(bz)
	if n <= 0 {
		return nil, 0, ErrNodeDeserialize
	}
	end := n + int(length)
	if end < n || end > len(bz) {
		return nil, 0, ErrNodeDeserialize
	}
	return append([]byte(nil), bz[n:end]...), end, nil
}
