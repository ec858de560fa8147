package iavl

import (
	"bytes"
	"fmt"

	"cosmossdk.io/log"
	"github.com/tidwall/btree"

	"github.com/SupperZum/iavl/db"
)

// Options configure a Tree.
type Options struct {
	// CacheSize bounds the NodeDB's decoded-node LRU cache. Must be positive.
	CacheSize int

	// SkipUpgrade disables the pending-removal read shadow in Get.
	SkipUpgrade bool

	// Logger defaults to a no-op logger.
	Logger log.Logger
}

// DefaultCacheSize is a reasonable node cache bound for most stores.
const DefaultCacheSize = 10_000

// Tree is the mutable working copy of a versioned Merkle-AVL tree plus the
// commit protocol that freezes it into immutable per-version snapshots.
//
// A Tree is not safe for concurrent mutation; callers serialize Set, Remove
// and SaveVersion (single-writer discipline). The NodeDB underneath may be
// shared for reads.
type Tree struct {
	ndb           *NodeDB
	root          *Node
	loadedVersion uint32
	versions      *btree.BTreeG[uint32]

	// orphans records persisted nodes superseded by removals, keyed by hash,
	// valued by the working version that superseded them. Collected for an
	// eventual pruning pass; nothing consumes it yet.
	orphans map[Hash]uint32

	// unsavedRemovals shadows reads of keys deleted since the last save.
	unsavedRemovals map[string]struct{}

	skipUpgrade bool
	logger      log.Logger
}

// New opens a tree over database at the latest saved version, or empty if
// nothing has been saved yet. Panics if opts.CacheSize is not positive.
func New(database db.DB, opts Options) (*Tree, error) {
	t := newTree(database, opts)
	if latest, ok := t.versions.Max(); ok {
		root, err := t.ndb.GetRootNode(latest)
		if err != nil {
			// The version came out of the store's own scan.
			corrupt("loading latest version %d: %s", latest, err)
		}
		t.root = root
		t.loadedVersion = latest
	}
	t.logger.Debug("loaded tree", "version", t.loadedVersion)
	return t, nil
}

// Load opens a tree over database at an explicit target version. Returns
// ErrVersionNotFound if that version was never saved.
func Load(database db.DB, version uint32, opts Options) (*Tree, error) {
	t := newTree(database, opts)
	root, err := t.ndb.GetRootNode(version)
	if err != nil {
		return nil, err
	}
	t.root = root
	t.loadedVersion = version
	t.logger.Debug("loaded tree", "version", version)
	return t, nil
}

func newTree(database db.DB, opts Options) *Tree {
	if opts.CacheSize <= 0 {
		panic(fmt.Sprintf("iavl: cache size must be positive, got %d", opts.CacheSize))
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	ndb := NewNodeDB(database, opts.CacheSize, logger)

	versions := btree.NewBTreeG(func(a, b uint32) bool { return a < b })
	for _, v := range ndb.Versions() {
		versions.Set(v)
	}

	return &Tree{
		ndb:             ndb,
		versions:        versions,
		orphans:         make(map[Hash]uint32),
		unsavedRemovals: make(map[string]struct{}),
		skipUpgrade:     opts.SkipUpgrade,
		logger:          logger,
	}
}

// LoadedVersion returns the version the working copy is based on; 0 means
// nothing has been saved yet.
func (t *Tree) LoadedVersion() uint32 { return t.loadedVersion }

// Versions returns all saved versions in ascending order.
func (t *Tree) Versions() []uint32 {
	out := make([]uint32, 0, t.versions.Len())
	t.versions.Scan(func(v uint32) bool {
		out = append(out, v)
		return true
	})
	return out
}

// NodeDB returns the tree's node store.
func (t *Tree) NodeDB() *NodeDB { return t.ndb }

// RootHash returns the hash of the current working root, or EmptyHash if the
// tree is empty.
func (t *Tree) RootHash() Hash {
	if t.root == nil {
		return EmptyHash
	}
	return t.root.hash()
}

// Get returns the value stored under key, or nil if the key is absent.
func (t *Tree) Get(key []byte) []byte {
	if t.root == nil {
		return nil
	}
	if !t.skipUpgrade {
		if _, removed := t.unsavedRemovals[string(key)]; removed {
			return nil
		}
	}

	node := t.root
	for {
		if node.isLeaf() {
			if bytes.Equal(node.key, key) {
				// The node may be a shared cache entry; hand out a copy.
				return bytes.Clone(node.value)
			}
			return nil
		}
		if bytes.Compare(key, node.key) < 0 {
			node = t.readChild(node.left, node.leftHash)
		} else {
			node = t.readChild(node.right, node.rightHash)
		}
	}
}

// readChild resolves a child for a read without attaching it to the parent.
func (t *Tree) readChild(child *Node, hash Hash) *Node {
	if child != nil {
		return child
	}
	return t.fetch(hash)
}

// fetch loads a node the tree structure references by hash; absence is
// corruption, not a miss.
func (t *Tree) fetch(hash Hash) *Node {
	node := t.ndb.GetNode(hash)
	if node == nil {
		corrupt("node %X referenced by tree but not in store", hash)
	}
	return node
}

// leftNode resolves and attaches the left child of a branch.
func (t *Tree) leftNode(node *Node) *Node {
	if node.left == nil {
		node.left = t.fetch(node.leftHash)
	}
	return node.left
}

func (t *Tree) rightNode(node *Node) *Node {
	if node.right == nil {
		node.right = t.fetch(node.rightHash)
	}
	return node.right
}

// Set stores value under key in the working copy. Every node on the path is
// stamped with the working version (loadedVersion + 1).
func (t *Tree) Set(key, value []byte) {
	key = bytes.Clone(key)
	value = bytes.Clone(value)
	delete(t.unsavedRemovals, string(key))

	version := t.loadedVersion + 1
	if t.root == nil {
		t.root = newLeafNode(key, value, version)
		return
	}
	t.recursiveSet(t.root, key, value, version)
}

func (t *Tree) recursiveSet(node *Node, key, value []byte, version uint32) {
	if node.isLeaf() {
		switch bytes.Compare(key, node.key) {
		case -1:
			old := *node
			leaf := newLeafNode(key, value, version)
			*node = Node{
				key:       old.key,
				version:   version,
				height:    1,
				size:      2,
				leftHash:  leaf.hash(),
				rightHash: old.hash(),
				left:      leaf,
				right:     &old,
			}
		case 1:
			old := *node
			leaf := newLeafNode(key, value, version)
			*node = Node{
				key:       key,
				version:   version,
				height:    1,
				size:      2,
				leftHash:  old.hash(),
				rightHash: leaf.hash(),
				left:      &old,
				right:     leaf,
			}
		default:
			// Value overwrite must not grow the tree.
			node.value = value
			node.version = version
			node.persisted = false
		}
		return
	}

	if bytes.Compare(key, node.key) < 0 {
		t.recursiveSet(t.leftNode(node), key, value, version)
		node.leftHash = node.left.hash()
	} else {
		t.recursiveSet(t.rightNode(node), key, value, version)
		node.rightHash = node.right.hash()
	}

	balance := t.updateHeightSize(node)
	node.version = version
	node.persisted = false

	// The usual four cases, picked by where the inserted key landed.
	if balance > 1 {
		left := t.leftNode(node)
		if bytes.Compare(key, left.key) < 0 {
			// left left
			t.mustRotate(t.rotateRight(node, version))
		} else {
			// left right
			t.mustRotate(t.rotateLeft(left, version))
			t.mustRotate(t.rotateRight(node, version))
		}
	} else if balance < -1 {
		right := t.rightNode(node)
		if bytes.Compare(key, right.key) > 0 {
			// right right
			t.mustRotate(t.rotateLeft(node, version))
		} else {
			// right left
			t.mustRotate(t.rotateRight(right, version))
			t.mustRotate(t.rotateLeft(node, version))
		}
	}
}

// mustRotate asserts a rotation that the preceding imbalance guarantees to be
// structurally possible.
func (t *Tree) mustRotate(err error) {
	if err != nil {
		panic(fmt.Sprintf("iavl: %s despite imbalance", err))
	}
}

// Remove deletes key from the working copy and returns its value, or nil if
// the key was absent (in which case nothing changes). Superseded persisted
// nodes along the path are recorded as orphans of the working version.
func (t *Tree) Remove(key []byte) []byte {
	if t.root == nil {
		return nil
	}
	version := t.loadedVersion + 1

	orphaned := make([]*Node, 0, 3+int(t.root.height))
	newHash, newRoot, _, value := t.recursiveRemove(t.root, key, &orphaned, version)
	if len(orphaned) == 0 {
		return nil
	}

	for _, node := range orphaned {
		// Nodes that were never persisted need no orphan record.
		if node.persisted {
			t.orphans[node.hash()] = node.version
		}
	}
	t.unsavedRemovals[string(key)] = struct{}{}

	switch {
	case newHash == nil && newRoot == nil:
		// The last leaf is gone.
		t.root = nil
	case newRoot == nil:
		t.root = t.fetch(*newHash)
	default:
		t.root = newRoot
	}
	return value
}

// recursiveRemove returns the replacement subtree for node after removing
// key, as a (hash, node) pair: the node may be nil when the replacement is
// only known by hash (collapse onto a non-resident child), and both are nil
// when node itself was the removed leaf. newKey propagates the new split key
// to ancestors whose branch key pointed at the removed leaf. Whether anything
// was removed at all is signaled through growth of orphaned.
func (t *Tree) recursiveRemove(node *Node, key []byte, orphaned *[]*Node, version uint32) (newHash *Hash, newNode *Node, newKey []byte, value []byte) {
	if node.isLeaf() {
		if !bytes.Equal(node.key, key) {
			return nil, node, nil, nil
		}
		*orphaned = append(*orphaned, node.shallowClone())
		return nil, nil, nil, node.value
	}

	mark := len(*orphaned)

	if bytes.Compare(key, node.key) < 0 {
		childHash, child, childKey, value := t.recursiveRemove(t.leftNode(node), key, orphaned, version)
		if len(*orphaned) == mark {
			return nil, node, nil, nil
		}
		*orphaned = append(*orphaned, node.shallowClone())

		if childHash == nil && child == nil {
			// Left leaf removed; this branch collapses onto its right child,
			// whose leftmost leaf carries the branch's split key.
			rightHash := node.rightHash
			return &rightHash, node.right, node.key, value
		}

		newNode := t.replaceBranch(node, version)
		newNode.leftHash = *childHash
		newNode.left = child
		t.balance(newNode, version)
		h := newNode.hash()
		return &h, newNode, childKey, value
	}

	childHash, child, childKey, value := t.recursiveRemove(t.rightNode(node), key, orphaned, version)
	if len(*orphaned) == mark {
		return nil, node, nil, nil
	}
	*orphaned = append(*orphaned, node.shallowClone())

	if childHash == nil && child == nil {
		leftHash := node.leftHash
		return &leftHash, node.left, nil, value
	}

	newNode = t.replaceBranch(node, version)
	newNode.rightHash = *childHash
	newNode.right = child
	if childKey != nil {
		// The right subtree's leftmost leaf changed; it is this branch's
		// split key, so the propagation stops here.
		newNode.key = childKey
	}
	t.balance(newNode, version)
	h := newNode.hash()
	return &h, newNode, nil, value
}

// replaceBranch builds the successor of a branch node for the working
// version, keeping resident children attached.
func (t *Tree) replaceBranch(node *Node, version uint32) *Node {
	c := *node
	c.version = version
	c.persisted = false
	return &c
}

// updateHeightSize recomputes a branch's height and size from its children
// and returns the balance factor. Children are fetched from the store when
// not resident. Leaves report balance 0.
func (t *Tree) updateHeightSize(node *Node) int {
	if node.isLeaf() {
		return 0
	}

	left := t.readChild(node.left, node.leftHash)
	right := t.readChild(node.right, node.rightHash)

	node.height = 1 + max(left.height, right.height)
	node.size = left.size + right.size
	return int(left.height) - int(right.height)
}

// balance restores the AVL invariant at node after a removal, picking the
// rotation case from the child balance factors.
func (t *Tree) balance(node *Node, version uint32) {
	switch bf := t.updateHeightSize(node); {
	case bf > 1:
		left := t.leftNode(node)
		if t.updateHeightSize(left) < 0 {
			// left right
			t.mustRotate(t.rotateLeft(left, version))
			node.leftHash = left.hash()
		}
		t.mustRotate(t.rotateRight(node, version))
	case bf < -1:
		right := t.rightNode(node)
		if t.updateHeightSize(right) > 0 {
			// right left
			t.mustRotate(t.rotateRight(right, version))
			node.rightHash = right.hash()
		}
		t.mustRotate(t.rotateLeft(node, version))
	}
}

// rotateRight rotates node's left child up, replacing node in place. Fails
// with ErrRotate on shapes that cannot rotate (a leaf, or a leaf pivot).
func (t *Tree) rotateRight(node *Node, version uint32) error {
	if node.isLeaf() {
		return fmt.Errorf("%w: rotate right on leaf", ErrRotate)
	}

	z := *node
	y := *t.leftNode(&z)
	if y.isLeaf() {
		return fmt.Errorf("%w: rotate right with leaf pivot", ErrRotate)
	}

	// y's right subtree moves under z.
	z.left = y.right
	z.leftHash = y.rightHash
	t.updateHeightSize(&z)
	z.version = version
	z.persisted = false

	y.rightHash = z.hash()
	y.right = &z
	t.updateHeightSize(&y)
	y.version = version
	y.persisted = false

	*node = y
	return nil
}

// rotateLeft is the mirror of rotateRight.
func (t *Tree) rotateLeft(node *Node, version uint32) error {
	if node.isLeaf() {
		return fmt.Errorf("%w: rotate left on leaf", ErrRotate)
	}

	z := *node
	y := *t.rightNode(&z)
	if y.isLeaf() {
		return fmt.Errorf("%w: rotate left with leaf pivot", ErrRotate)
	}

	z.right = y.left
	z.rightHash = y.leftHash
	t.updateHeightSize(&z)
	z.version = version
	z.persisted = false

	y.leftHash = z.hash()
	y.left = &z
	t.updateHeightSize(&y)
	y.version = version
	y.persisted = false

	*node = y
	return nil
}

// SaveVersion commits the working tree as loadedVersion + 1, persisting every
// node and recording the version's root hash. Re-saving an existing version
// with identical content is an idempotent no-op; rewriting it with different
// content fails with ErrOverwrite.
func (t *Tree) SaveVersion() (Hash, uint32, error) {
	version := t.loadedVersion + 1

	if _, exists := t.versions.Get(version); exists {
		saved, err := t.ndb.GetRootHash(version)
		if err != nil {
			corrupt("version %d in set but has no root record: %s", version, err)
		}
		if saved == t.RootHash() {
			t.loadedVersion = version
			if t.root != nil {
				t.root.left = nil
				t.root.right = nil
			}
			clear(t.unsavedRemovals)
			return saved, version, nil
		}
		return Hash{}, 0, fmt.Errorf("%w: version %d", ErrOverwrite, version)
	}

	rootHash := EmptyHash
	if t.root != nil {
		rootHash = t.ndb.SaveTree(t.root)
	}
	t.ndb.SaveVersion(version, rootHash)

	t.versions.Set(version)
	t.loadedVersion = version
	clear(t.unsavedRemovals)

	t.logger.Info("saved version", "version", version, "hash", fmt.Sprintf("%X", rootHash))
	return rootHash, version, nil
}
