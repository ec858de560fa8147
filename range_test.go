package iavl

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type pair struct {
	key, value []byte
}

func collect(t *testing.T, r *Range) []pair {
	t.Helper()
	var pairs []pair
	for key, value, ok := r.Next(); ok; key, value, ok = r.Next() {
		pairs = append(pairs, pair{key, value})
	}
	return pairs
}

func newRangeTree(t *testing.T) *Tree {
	t.Helper()
	tree := newTestTree(t)
	for i := byte('1'); i <= '7'; i++ {
		tree.Set([]byte{i}, []byte{'a', 'b', 'c', i})
	}
	return tree
}

func TestBoundedRange(t *testing.T) {
	tree := newRangeTree(t)

	// [3, 6)
	pairs := collect(t, tree.Range(IncludeKey([]byte("3")), ExcludeKey([]byte("6"))))
	require.Equal(t, []pair{
		{[]byte("3"), []byte("abc3")},
		{[]byte("4"), []byte("abc4")},
		{[]byte("5"), []byte("abc5")},
	}, pairs)

	// [3, 6]
	pairs = collect(t, tree.Range(IncludeKey([]byte("3")), IncludeKey([]byte("6"))))
	require.Equal(t, []pair{
		{[]byte("3"), []byte("abc3")},
		{[]byte("4"), []byte("abc4")},
		{[]byte("5"), []byte("abc5")},
		{[]byte("6"), []byte("abc6")},
	}, pairs)

	// (3, 6)
	pairs = collect(t, tree.Range(ExcludeKey([]byte("3")), ExcludeKey([]byte("6"))))
	require.Equal(t, []pair{
		{[]byte("4"), []byte("abc4")},
		{[]byte("5"), []byte("abc5")},
	}, pairs)
}

func TestFullRange(t *testing.T) {
	tree := newTestTree(t)
	tree.Set([]byte("alice"), []byte("abc"))
	tree.Set([]byte("bob"), []byte("123"))
	tree.Set([]byte("c"), []byte("1"))
	tree.Set([]byte("q"), []byte("1"))

	pairs := collect(t, tree.Range(nil, nil))
	require.Equal(t, []pair{
		{[]byte("alice"), []byte("abc")},
		{[]byte("bob"), []byte("123")},
		{[]byte("c"), []byte("1")},
		{[]byte("q"), []byte("1")},
	}, pairs)
}

func TestFullRangeDuplicateSet(t *testing.T) {
	tree := newTestTree(t)
	tree.Set([]byte("alice"), []byte("abc"))
	tree.Set([]byte("alice"), []byte("abc"))

	pairs := collect(t, tree.Range(nil, nil))
	require.Equal(t, []pair{{[]byte("alice"), []byte("abc")}}, pairs)
}

func TestEmptyTreeRange(t *testing.T) {
	tree := newTestTree(t)
	require.Empty(t, collect(t, tree.Range(nil, nil)))
}

func TestRangeIsOneShot(t *testing.T) {
	tree := newRangeTree(t)

	r := tree.Range(nil, nil)
	require.Len(t, collect(t, r), 7)

	_, _, ok := r.Next()
	require.False(t, ok)

	// a fresh traversal needs a fresh iterator
	require.Len(t, collect(t, tree.Range(nil, nil)), 7)
}

func TestRangeAcrossSave(t *testing.T) {
	tree := newRangeTree(t)
	_, _, err := tree.SaveVersion()
	require.NoError(t, err)

	// the root's children are detached after a save; iteration resolves them
	// through the node store
	pairs := collect(t, tree.Range(IncludeKey([]byte("2")), ExcludeKey([]byte("5"))))
	require.Equal(t, []pair{
		{[]byte("2"), []byte("abc2")},
		{[]byte("3"), []byte("abc3")},
		{[]byte("4"), []byte("abc4")},
	}, pairs)
}

func TestRangeReturnsPrivateCopies(t *testing.T) {
	tree := newRangeTree(t)
	_, _, err := tree.SaveVersion()
	require.NoError(t, err)

	key, value, ok := tree.Range(nil, nil).Next()
	require.True(t, ok)
	key[0] = 99
	value[0] = 99

	key, value, ok = tree.Range(nil, nil).Next()
	require.True(t, ok)
	require.Equal(t, []byte("1"), key)
	require.Equal(t, []byte("abc1"), value)
}

func TestRangeUnboundedStart(t *testing.T) {
	tree := newRangeTree(t)

	pairs := collect(t, tree.Range(nil, ExcludeKey([]byte("3"))))
	require.Equal(t, []pair{
		{[]byte("1"), []byte("abc1")},
		{[]byte("2"), []byte("abc2")},
	}, pairs)

	pairs = collect(t, tree.Range(IncludeKey([]byte("6")), nil))
	require.Equal(t, []pair{
		{[]byte("6"), []byte("abc6")},
		{[]byte("7"), []byte("abc7")},
	}, pairs)
}
