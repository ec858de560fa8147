package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestLevelDB(t *testing.T) *GoLevelDB {
	t.Helper()
	ldb, err := NewGoLevelDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ldb.Close() })
	return ldb
}

func TestGoLevelDBGetSetDelete(t *testing.T) {
	ldb := newTestLevelDB(t)

	v, err := ldb.Get([]byte("missing"))
	require.NoError(t, err)
	require.Nil(t, v)

	require.NoError(t, ldb.Set([]byte("a"), []byte("1")))
	v, err = ldb.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), v)

	ok, err := ldb.Has([]byte("a"))
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, ldb.Delete([]byte("a")))
	ok, err = ldb.Has([]byte("a"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGoLevelDBPrefixIterator(t *testing.T) {
	ldb := newTestLevelDB(t)
	require.NoError(t, ldb.Set([]byte{1, 1}, []byte("a")))
	require.NoError(t, ldb.Set([]byte{1, 2}, []byte("b")))
	require.NoError(t, ldb.Set([]byte{2, 1}, []byte("c")))

	it, err := ldb.PrefixIterator([]byte{1})
	require.NoError(t, err)
	defer it.Close()

	var keys, values [][]byte
	for ; it.Valid(); it.Next() {
		keys = append(keys, it.Key())
		values = append(values, it.Value())
	}
	require.NoError(t, it.Error())
	require.Equal(t, [][]byte{{1, 1}, {1, 2}}, keys)
	require.Equal(t, [][]byte{[]byte("a"), []byte("b")}, values)
}

func TestGoLevelDBPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	ldb, err := NewGoLevelDB(path)
	require.NoError(t, err)
	require.NoError(t, ldb.Set([]byte("a"), []byte("1")))
	require.NoError(t, ldb.Close())

	reopened, err := NewGoLevelDB(path)
	require.NoError(t, err)
	defer reopened.Close()

	v, err := reopened.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), v)
}
