package avl

import (
	"fmt"
	"strings"
)

// String returns a depth-first, indented dump of the tree for debugging and
// test failure messages, grounded on avl_print/print_recursive's
// level-prefixed recursive walk ("`--" markers per depth).
func (t *Tree) String() string {
	var b strings.Builder
	printRecursive(&b, t.Root, "")
	return b.String()
}

func printRecursive(b *strings.Builder, n *Node, prefix string) {
	if n == nil {
		return
	}

	if prefix == "" {
		fmt.Fprintf(b, "%v\n", n.Data)
	} else {
		fmt.Fprintf(b, "%s `--%v\n", prefix, n.Data)
	}

	if n.Left != nil {
		printRecursive(b, n.Left, prefix+" |  ")
	}
	if n.Right != nil {
		printRecursive(b, n.Right, prefix+" |  ")
	}
}
