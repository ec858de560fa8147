package db

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrefixDBNamespacing(t *testing.T) {
	mdb := NewMemDB()
	bank := NewPrefixDB(mdb, []byte("s/k:bank/"))
	gov := NewPrefixDB(mdb, []byte("s/k:gov/"))

	require.NoError(t, bank.Set([]byte("a"), []byte("1")))
	require.NoError(t, gov.Set([]byte("a"), []byte("2")))

	v, err := bank.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), v)

	v, err = gov.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("2"), v)

	// raw view carries the namespace
	v, err = mdb.Get([]byte("s/k:bank/a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), v)

	require.NoError(t, bank.Delete([]byte("a")))
	ok, err := bank.Has([]byte("a"))
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = gov.Has([]byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestPrefixDBIteratorStripsPrefix(t *testing.T) {
	mdb := NewMemDB()
	pdb := NewPrefixDB(mdb, []byte("p/"))

	require.NoError(t, pdb.Set([]byte{1, 1}, []byte("a")))
	require.NoError(t, pdb.Set([]byte{1, 2}, []byte("b")))
	require.NoError(t, pdb.Set([]byte{2, 1}, []byte("c")))
	require.NoError(t, mdb.Set([]byte("q/"), []byte("other namespace")))

	it, err := pdb.PrefixIterator([]byte{1})
	require.NoError(t, err)
	defer it.Close()

	var keys [][]byte
	for ; it.Valid(); it.Next() {
		keys = append(keys, it.Key())
	}
	require.NoError(t, it.Error())
	require.Equal(t, [][]byte{{1, 1}, {1, 2}}, keys)
}
