package iavl

import "bytes"

// Bound is one end of a key range. A nil *Bound is unbounded.
type Bound struct {
	Key       []byte
	Inclusive bool
}

// IncludeKey bounds a range at key, inclusive.
func IncludeKey(key []byte) *Bound { return &Bound{Key: key, Inclusive: true} }

// ExcludeKey bounds a range at key, exclusive.
func ExcludeKey(key []byte) *Bound { return &Bound{Key: key} }

// Range lazily yields the tree's (key, value) pairs with keys inside
// [start, end] (each side independently inclusive, exclusive or unbounded),
// in ascending key order. It is one-shot: once exhausted it stays exhausted,
// and a fresh traversal means calling Tree.Range again.
//
// The iterator assumes exclusive access to the working copy for its duration.
type Range struct {
	start, end *Bound
	ndb        *NodeDB

	// delayedNodes is the explicit traversal stack; right children are pushed
	// before left so the left subtree pops first, giving in-order traversal.
	delayedNodes []*Node
}

// Range returns an iterator over the working copy's pairs within the bounds.
func (t *Tree) Range(start, end *Bound) *Range {
	r := &Range{start: start, end: end, ndb: t.ndb}
	if t.root != nil {
		r.delayedNodes = []*Node{t.root}
	}
	return r
}

// Next yields the next pair in ascending key order; ok is false once the
// range is exhausted.
func (r *Range) Next() (key, value []byte, ok bool) {
	for len(r.delayedNodes) > 0 {
		node := r.delayedNodes[len(r.delayedNodes)-1]
		r.delayedNodes = r.delayedNodes[:len(r.delayedNodes)-1]

		if node.isLeaf() {
			if r.contains(node.key) {
				// The node may be a shared cache entry; hand out copies.
				return bytes.Clone(node.key), bytes.Clone(node.value), true
			}
			continue
		}

		// A branch's key separates its subtrees, so it gives a conservative
		// bound check rather than an exact filter.
		if r.beforeEnd(node.key) {
			r.push(node.right, node.rightHash)
		}
		if r.afterStart(node.key) {
			r.push(node.left, node.leftHash)
		}
	}
	return nil, nil, false
}

func (r *Range) push(child *Node, hash Hash) {
	if child == nil {
		child = r.ndb.GetNode(hash)
		if child == nil {
			corrupt("node %X referenced by tree but not in store", hash)
		}
	}
	r.delayedNodes = append(r.delayedNodes, child)
}

// afterStart reports whether a subtree left of the split key may still hold
// in-range keys.
func (r *Range) afterStart(splitKey []byte) bool {
	return r.start == nil || bytes.Compare(splitKey, r.start.Key) > 0
}

// beforeEnd reports whether a subtree right of the split key may still hold
// in-range keys.
func (r *Range) beforeEnd(splitKey []byte) bool {
	if r.end == nil {
		return true
	}
	if r.end.Inclusive {
		return bytes.Compare(splitKey, r.end.Key) <= 0
	}
	return bytes.Compare(splitKey, r.end.Key) < 0
}

func (r *Range) contains(key []byte) bool {
	if r.start != nil {
		cmp := bytes.Compare(key, r.start.Key)
		if cmp < 0 || (cmp == 0 && !r.start.Inclusive) {
			return false
		}
	}
	if r.end != nil {
		cmp := bytes.Compare(key, r.end.Key)
		if cmp > 0 || (cmp == 0 && !r.end.Inclusive) {
			return false
		}
	}
	return true
}
