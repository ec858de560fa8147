package iavl

import (
	"fmt"

	"github.com/emicklei/dot"
)

// RenderDotGraph renders the working tree as a Graphviz digraph, resolving
// non-resident children through the node store. Debug aid.
func (t *Tree) RenderDotGraph() string {
	graph := dot.NewGraph(dot.Directed)

	if t.root == nil {
		return graph.String()
	}

	var traverse func(node *Node, parent *dot.Node, direction string)
	traverse = func(node *Node, parent *dot.Node, direction string) {
		var label string
		if node.isLeaf() {
			label = fmt.Sprintf("ver:%d key:0x%x val:0x%X", node.version, node.key, node.value)
		} else {
			label = fmt.Sprintf("ver:%d key:0x%x ht:%d sz:%d", node.version, node.key, node.height, node.size)
		}

		n := graph.Node(label)
		if parent != nil {
			parent.Edge(n, direction)
		}
		if node.isLeaf() {
			return
		}

		traverse(t.readChild(node.left, node.leftHash), &n, "l")
		traverse(t.readChild(node.right, node.rightHash), &n, "r")
	}

	traverse(t.root, nil, "")
	return graph.String()
}
