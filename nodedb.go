package iavl

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync/atomic"

	"cosmossdk.io/log"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/SupperZum/iavl/db"
)

var (
	rootsPrefix = []byte{0x01}
	nodesPrefix = []byte{0x02}
)

// NodeDB is the content-addressed node store: a bounded LRU cache of decoded
// nodes in front of an ordered key-value database. It also holds the
// version -> root hash records.
//
// The cache is safe for concurrent readers; a NodeDB may be shared across
// goroutines for reads even though a Tree's working copy may not.
type NodeDB struct {
	db     db.DB
	cache  *lru.Cache[Hash, *Node]
	logger log.Logger
	stats  nodeDBStats
}

type nodeDBStats struct {
	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
	nodesSaved  atomic.Int64
	bytesSaved  atomic.Int64
}

// NodeDBStats is a point-in-time snapshot of store counters.
type NodeDBStats struct {
	CacheHits   int64
	CacheMisses int64
	NodesSaved  int64
	BytesSaved  int64
}

// NewNodeDB creates a node store over database with an LRU cache of cacheSize
// decoded nodes. Panics if cacheSize is not positive.
func NewNodeDB(database db.DB, cacheSize int, logger log.Logger) *NodeDB {
	cache, err := lru.New[Hash, *Node](cacheSize)
	if err != nil {
		panic(fmt.Sprintf("iavl: node cache size must be positive, got %d: %s", cacheSize, err))
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &NodeDB{
		db:     database,
		cache:  cache,
		logger: logger,
	}
}

func rootKey(version uint32) []byte {
	return binary.AppendUvarint(append([]byte(nil), rootsPrefix...), uint64(version))
}

func nodeKey(hash Hash) []byte {
	return append(append([]byte(nil), nodesPrefix...), hash[:]...)
}

// GetNode returns the node stored under hash, or nil if the hash is entirely
// absent. Callers that hold a hash reference out of the tree structure treat
// nil as corruption, not as a normal miss. The returned node is a private
// copy; callers may mutate it freely.
func (ndb *NodeDB) GetNode(hash Hash) *Node {
	if node, ok := ndb.cache.Get(hash); ok {
		ndb.stats.cacheHits.Add(1)
		c := *node
		return &c
	}
	ndb.stats.cacheMisses.Add(1)

	bz, err := ndb.db.Get(nodeKey(hash))
	if err != nil {
		corrupt("reading node %X: %s", hash, err)
	}
	if bz == nil {
		return nil
	}
	node, err := deserializeNode(bz)
	if err != nil {
		corrupt("decoding node %X: %s", hash, err)
	}
	ndb.cache.Add(hash, node)

	c := *node
	return &c
}

// SaveNode writes the node's encoding under its hash and refreshes the cache.
// The node is marked persisted.
func (ndb *NodeDB) SaveNode(node *Node, hash Hash) {
	bz := node.serialize()
	if err := ndb.db.Set(nodeKey(hash), bz); err != nil {
		corrupt("writing node %X: %s", hash, err)
	}
	node.persisted = true
	ndb.cache.Add(hash, node.shallowClone())

	ndb.stats.nodesSaved.Add(1)
	ndb.stats.bytesSaved.Add(int64(len(bz)))
}

// SaveTree persists root and every resident descendant, children before
// parents, and returns the root hash. The root's in-memory child pointers are
// cleared afterwards to bound memory growth across versions.
func (ndb *NodeDB) SaveTree(root *Node) Hash {
	rootHash := root.hash()
	ndb.recursiveSave(root, rootHash)
	root.left = nil
	root.right = nil
	return rootHash
}

func (ndb *NodeDB) recursiveSave(node *Node, hash Hash) {
	if !node.isLeaf() {
		if node.left != nil {
			ndb.recursiveSave(node.left, node.leftHash)
		}
		if node.right != nil {
			ndb.recursiveSave(node.right, node.rightHash)
		}
	}
	ndb.SaveNode(node, hash)
}

// GetRootHash returns the root hash recorded for version, or
// ErrVersionNotFound. An empty stored value denotes the empty-tree sentinel.
func (ndb *NodeDB) GetRootHash(version uint32) (Hash, error) {
	bz, err := ndb.db.Get(rootKey(version))
	if err != nil {
		corrupt("reading root of version %d: %s", version, err)
	}
	if bz == nil {
		return Hash{}, fmt.Errorf("%w: %d", ErrVersionNotFound, version)
	}
	if len(bz) == 0 {
		return EmptyHash, nil
	}
	if len(bz) != len(Hash{}) {
		corrupt("root record of version %d has length %d", version, len(bz))
	}
	var hash Hash
	copy(hash[:], bz)
	return hash, nil
}

// GetRootNode loads the root node of version. A nil node with nil error means
// the version committed an empty tree.
func (ndb *NodeDB) GetRootNode(version uint32) (*Node, error) {
	rootHash, err := ndb.GetRootHash(version)
	if err != nil {
		return nil, err
	}
	if rootHash == EmptyHash {
		return nil, nil
	}
	node := ndb.GetNode(rootHash)
	if node == nil {
		// The record references the node, so it must be present.
		corrupt("root node %X of version %d not in store", rootHash, version)
	}
	return node, nil
}

// SaveVersion records the root hash for a version.
func (ndb *NodeDB) SaveVersion(version uint32, hash Hash) {
	if err := ndb.db.Set(rootKey(version), hash[:]); err != nil {
		corrupt("writing root of version %d: %s", version, err)
	}
	ndb.logger.Debug("saved version root", "version", version, "hash", fmt.Sprintf("%X", hash))
}

// Versions scans all recorded root entries and returns their version numbers
// in ascending numeric order.
func (ndb *NodeDB) Versions() []uint32 {
	it, err := ndb.db.PrefixIterator(rootsPrefix)
	if err != nil {
		corrupt("scanning versions: %s", err)
	}
	defer it.Close()

	var versions []uint32
	for ; it.Valid(); it.Next() {
		suffix := it.Key()[len(rootsPrefix):]
		version, n := binary.Uvarint(suffix)
		if n <= 0 {
			corrupt("undecodable version key %X", it.Key())
		}
		versions = append(versions, uint32(version))
	}
	if err := it.Error(); err != nil {
		corrupt("scanning versions: %s", err)
	}
	// Varint encodings do not sort lexicographically past one byte.
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })
	return versions
}

// Stats returns a snapshot of the store's counters.
func (ndb *NodeDB) Stats() NodeDBStats {
	return NodeDBStats{
		CacheHits:   ndb.stats.cacheHits.Load(),
		CacheMisses: ndb.stats.cacheMisses.Load(),
		NodesSaved:  ndb.stats.nodesSaved.Load(),
		BytesSaved:  ndb.stats.bytesSaved.Load(),
	}
}
