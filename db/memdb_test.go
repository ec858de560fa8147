package db

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemDBGetSetDelete(t *testing.T) {
	mdb := NewMemDB()

	v, err := mdb.Get([]byte("missing"))
	require.NoError(t, err)
	require.Nil(t, v)

	require.NoError(t, mdb.Set([]byte("a"), []byte("1")))
	v, err = mdb.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), v)

	ok, err := mdb.Has([]byte("a"))
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, mdb.Set([]byte("a"), []byte("2")))
	v, err = mdb.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("2"), v)

	require.NoError(t, mdb.Delete([]byte("a")))
	ok, err = mdb.Has([]byte("a"))
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 0, mdb.Len())
}

func TestMemDBIsolatesStoredBytes(t *testing.T) {
	mdb := NewMemDB()

	key := []byte("k")
	value := []byte("v")
	require.NoError(t, mdb.Set(key, value))
	value[0] = 'x'

	got, err := mdb.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), got)
}

func TestMemDBPrefixIterator(t *testing.T) {
	mdb := NewMemDB()
	require.NoError(t, mdb.Set([]byte{1, 1}, []byte("a")))
	require.NoError(t, mdb.Set([]byte{1, 2}, []byte("b")))
	require.NoError(t, mdb.Set([]byte{2, 1}, []byte("c")))
	require.NoError(t, mdb.Set([]byte{2, 2}, []byte("d")))

	it, err := mdb.PrefixIterator([]byte{1})
	require.NoError(t, err)
	defer it.Close()

	var keys [][]byte
	for ; it.Valid(); it.Next() {
		keys = append(keys, it.Key())
	}
	require.NoError(t, it.Error())
	require.Equal(t, [][]byte{{1, 1}, {1, 2}}, keys)
}

func TestMemDBPrefixIteratorEmpty(t *testing.T) {
	mdb := NewMemDB()
	require.NoError(t, mdb.Set([]byte{2}, []byte("a")))

	it, err := mdb.PrefixIterator([]byte{1})
	require.NoError(t, err)
	defer it.Close()
	require.False(t, it.Valid())
}
