package iavl

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRenderDotGraph(t *testing.T) {
	tree := newTestTree(t)
	tree.Set([]byte{1}, []byte{4})
	tree.Set([]byte{2}, []byte{5})
	tree.Set([]byte{3}, []byte{6})

	out := tree.RenderDotGraph()

	require.Contains(t, out, "digraph")
	// 3 leaves and 2 branches
	require.Equal(t, 5, strings.Count(out, "ver:"))
	require.Equal(t, 4, strings.Count(out, "->"))
	require.Contains(t, out, "val:0x05")
	require.Contains(t, out, `"l"`)
	require.Contains(t, out, `"r"`)
}

func TestRenderDotGraphEmpty(t *testing.T) {
	tree := newTestTree(t)

	out := tree.RenderDotGraph()
	require.Contains(t, out, "digraph")
	require.NotContains(t, out, "ver:")
	require.NotContains(t, out, "->")
}

func TestRenderDotGraphAfterSave(t *testing.T) {
	tree := newTestTree(t)
	tree.Set([]byte{1}, []byte{4})
	tree.Set([]byte{2}, []byte{5})
	_, _, err := tree.SaveVersion()
	require.NoError(t, err)

	// children resolve through the store once detached
	out := tree.RenderDotGraph()
	require.Equal(t, 3, strings.Count(out, "ver:"))
}
