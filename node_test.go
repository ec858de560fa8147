package iavl

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSerializeBranch(t *testing.T) {
	leftHash := Hash{
		121, 226, 107, 73, 123, 135, 165, 82, 94, 53, 112, 50, 126, 200, 252, 137,
		235, 87, 205, 133, 96, 202, 94, 222, 39, 138, 231, 198, 189, 196, 49, 196,
	}
	rightHash := Hash{
		13, 181, 53, 227, 140, 38, 242, 22, 94, 152, 94, 71, 0, 89, 35, 122,
		129, 85, 55, 190, 253, 226, 35, 230, 65, 214, 244, 35, 69, 39, 223, 90,
	}
	node := &Node{
		key:       []byte{19},
		height:    3,
		size:      4,
		leftHash:  leftHash,
		rightHash: rightHash,
	}

	expected := []byte{3, 4, 0, 1, 19, 32}
	expected = append(expected, leftHash[:]...)
	expected = append(expected, 32)
	expected = append(expected, rightHash[:]...)

	bz := node.serialize()
	require.Equal(t, expected, bz)

	decoded, err := deserializeNode(bz)
	require.NoError(t, err)
	require.True(t, decoded.persisted)
	require.Equal(t, node.key, decoded.key)
	require.Equal(t, node.height, decoded.height)
	require.Equal(t, node.size, decoded.size)
	require.Equal(t, node.version, decoded.version)
	require.Equal(t, leftHash, decoded.leftHash)
	require.Equal(t, rightHash, decoded.rightHash)
	require.Nil(t, decoded.value)
}

func TestSerializeLeaf(t *testing.T) {
	node := newLeafNode([]byte{19}, []byte{1, 2, 3}, 0)

	bz := node.serialize()
	require.Equal(t, []byte{0, 1, 0, 1, 19, 3, 1, 2, 3}, bz)

	decoded, err := deserializeNode(bz)
	require.NoError(t, err)
	require.True(t, decoded.persisted)
	require.True(t, decoded.isLeaf())
	require.Equal(t, node.key, decoded.key)
	require.Equal(t, node.value, decoded.value)
	require.Equal(t, uint32(1), decoded.size)
}

func TestDeserializeMalformed(t *testing.T) {
	leaf := newLeafNode([]byte("alice"), []byte("abc"), 4)
	bz := leaf.serialize()

	// every truncation of a valid encoding must fail, never panic
	for i := 0; i < len(bz); i++ {
		_, err := deserializeNode(bz[:i])
		require.ErrorIs(t, err, ErrNodeDeserialize, "truncated at %d", i)
	}

	// a branch needs two full hashes
	branch := &Node{key: []byte{1}, height: 1, size: 2}
	bz = branch.serialize()
	_, err := deserializeNode(bz[:len(bz)-1])
	require.ErrorIs(t, err, ErrNodeDeserialize)

	// declared length past the end of the buffer
	_, err = deserializeNode([]byte{0, 1, 0, 255, 19})
	require.ErrorIs(t, err, ErrNodeDeserialize)
}

func TestHashStableUnderSerializeRoundTrip(t *testing.T) {
	node := newLeafNode([]byte("bob"), []byte("123"), 7)
	decoded, err := deserializeNode(node.serialize())
	require.NoError(t, err)
	require.Equal(t, node.hash(), decoded.hash())
}

func TestLeafHashCoversValue(t *testing.T) {
	a := newLeafNode([]byte{1}, []byte{2}, 1)
	b := newLeafNode([]byte{1}, []byte{3}, 1)
	require.NotEqual(t, a.hash(), b.hash())
}

func TestShallowClone(t *testing.T) {
	left := newLeafNode([]byte{1}, []byte{2}, 1)
	right := newLeafNode([]byte{3}, []byte{4}, 1)
	branch := &Node{
		key:       []byte{3},
		height:    1,
		size:      2,
		leftHash:  left.hash(),
		rightHash: right.hash(),
		left:      left,
		right:     right,
	}

	c := branch.shallowClone()
	require.Nil(t, c.left)
	require.Nil(t, c.right)
	require.Equal(t, branch.hash(), c.hash())
}
