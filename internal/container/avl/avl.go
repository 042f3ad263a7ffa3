// Package avl implements a self-balancing ordered map used to index
// scheduler run queues, RPC handler registries, and shared-memory
// segments. Like the C library's collection/avl it is addressed
// through tree-supplied Compare/Lookup/Cleanup callbacks rather than a
// fixed key type, modeled as three function-valued Tree fields so one
// tree serves every ordered index in this module.
package avl

// CompareFunc orders two nodes' Data for insertion/lookup. It must return
// -1 if a sorts before b, 1 if a sorts after b, and 0 if they are equal.
// Mirrors avl_tree_t.compare in the C library.
type CompareFunc func(a, b interface{}) int

// LookupFunc compares a node's Data against an external key during
// Find/FindParent, so callers can look up by a lighter key type than the
// full Data value. Mirrors avl_tree_t.lookup; DefaultLookup reproduces
// avl_default_lookup's pointer-equality fallback for trees that look up by
// the same Data value they inserted.
type LookupFunc func(data interface{}, key interface{}) int

// CleanupFunc releases resources owned by a node's Data when its Node is
// destroyed. Mirrors avl_tree_t.cleanup; DefaultCleanup is a no-op, matching
// avl_default_cleanup.
type CleanupFunc func(data interface{})

// Node is a single tree node. Height is maintained incrementally by
// insert/remove, mirroring the C library's explicit height bookkeeping
// (rather than recomputing it from scratch on every rotation).
type Node struct {
	Data   interface{}
	Left   *Node
	Right  *Node
	height int32
}

// Tree is an AVL-balanced ordered map of Nodes.
type Tree struct {
	Root    *Node
	Compare CompareFunc
	Lookup  LookupFunc
	Cleanup CleanupFunc
}

// DefaultLookup compares by pointer/value equality, for trees whose Lookup
// key is the same Data value they inserted.
func DefaultLookup(data interface{}, key interface{}) int {
	if data == key {
		return 0
	}
	return -1
}

// DefaultCleanup does nothing.
func DefaultCleanup(interface{}) {}

// New constructs an empty Tree. lookup and cleanup may be nil, in which
// case DefaultLookup/DefaultCleanup are used, matching avl_create_tree's
// fallback to avl_default_lookup/avl_default_cleanup.
func New(compare CompareFunc, lookup LookupFunc, cleanup CleanupFunc) *Tree {
	if lookup == nil {
		lookup = DefaultLookup
	}
	if cleanup == nil {
		cleanup = DefaultCleanup
	}
	return &Tree{Compare: compare, Lookup: lookup, Cleanup: cleanup}
}

func height(n *Node) int32 {
	if n == nil {
		return 0
	}
	return n.height
}

func max32(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}

func updateHeight(n *Node) {
	n.height = 1 + max32(height(n.Left), height(n.Right))
}

func balanceFactor(n *Node) int32 {
	if n == nil {
		return 0
	}
	return height(n.Left) - height(n.Right)
}

func rotateRight(n *Node) *Node {
	left := n.Left
	n.Left = left.Right
	left.Right = n
	updateHeight(n)
	updateHeight(left)
	return left
}

func rotateLeft(n *Node) *Node {
	right := n.Right
	n.Right = right.Left
	right.Left = n
	updateHeight(n)
	updateHeight(right)
	return right
}

// balance rebalances node after an insert/remove touched it, matching the
// C library's balance() entry point: single rotation for the uniform-skew
// cases, double rotation (left-right / right-left) otherwise.
func balance(n *Node) *Node {
	if n == nil {
		return nil
	}
	updateHeight(n)
	bf := balanceFactor(n)

	if bf > 1 {
		if balanceFactor(n.Left) < 0 {
			n.Left = rotateLeft(n.Left)
		}
		return rotateRight(n)
	}
	if bf < -1 {
		if balanceFactor(n.Right) > 0 {
			n.Right = rotateRight(n.Right)
		}
		return rotateLeft(n)
	}
	return n
}

// Insert creates a new node holding data and inserts it into the tree.
func (t *Tree) Insert(data interface{}) *Node {
	n := &Node{Data: data, height: 1}
	t.InsertNode(n)
	return n
}

// InsertNode inserts an already-constructed node, mirroring
// avl_insert_by_node for callers that build the node ahead of time (e.g. to
// embed it inline in a larger struct, the intrusive style the C library
// uses throughout).
func (t *Tree) InsertNode(n *Node) {
	t.Root = insert(t, n, t.Root)
}

func insert(t *Tree, n *Node, root *Node) *Node {
	if root == nil {
		return n
	}
	if t.Compare(n.Data, root.Data) < 0 {
		root.Left = insert(t, n, root.Left)
	} else {
		root.Right = insert(t, n, root.Right)
	}
	return balance(root)
}

// Find returns the node whose Data matches key according to Lookup, or nil.
func (t *Tree) Find(key interface{}) *Node {
	return findByData(t, key, t.Root)
}

func findByData(t *Tree, key interface{}, root *Node) *Node {
	if root == nil {
		return nil
	}
	result := t.Lookup(root.Data, key)
	if result == 0 {
		return root
	}
	if result > 0 {
		return findByData(t, key, root.Left)
	}
	return findByData(t, key, root.Right)
}

// FindParent returns the parent of the node matching key, or nil if the key
// is not present or is at the root.
func (t *Tree) FindParent(key interface{}) *Node {
	return findParent(t, key, t.Root, nil)
}

func findParent(t *Tree, key interface{}, root *Node, parent *Node) *Node {
	if root == nil {
		return nil
	}
	result := t.Lookup(root.Data, key)
	if result == 0 {
		return parent
	}
	if result > 0 {
		return findParent(t, key, root.Left, root)
	}
	return findParent(t, key, root.Right, root)
}

// Min returns the leftmost (minimum) node of the subtree rooted at n, or
// nil if n is nil.
func Min(n *Node) *Node {
	if n == nil {
		return nil
	}
	for n.Left != nil {
		n = n.Left
	}
	return n
}

// Max returns the rightmost (maximum) node of the subtree rooted at n, or
// nil if n is nil.
func Max(n *Node) *Node {
	if n == nil {
		return nil
	}
	for n.Right != nil {
		n = n.Right
	}
	return n
}

// First returns the minimum node of the whole tree, mirroring
// avl_iterate_first.
func (t *Tree) First() *Node { return Min(t.Root) }

// Last returns the maximum node of the whole tree, mirroring
// avl_iterate_last.
func (t *Tree) Last() *Node { return Max(t.Root) }

// Next returns the in-order successor of n within the tree, mirroring
// avl_iterate_next: if n has a right child, the successor is that
// subtree's minimum; otherwise it is the nearest ancestor for which n lies
// in the left subtree.
func (t *Tree) Next(n *Node) *Node {
	if n == nil {
		return nil
	}
	if n.Right != nil {
		return Min(n.Right)
	}
	var successor *Node
	node := t.Root
	for node != nil {
		cmp := t.Compare(n.Data, node.Data)
		if cmp < 0 {
			successor = node
			node = node.Left
		} else if cmp > 0 {
			node = node.Right
		} else {
			break
		}
	}
	return successor
}

// Previous returns the in-order predecessor of n within the tree, mirroring
// avl_iterate_previous.
func (t *Tree) Previous(n *Node) *Node {
	if n == nil {
		return nil
	}
	if n.Left != nil {
		return Max(n.Left)
	}
	var predecessor *Node
	node := t.Root
	for node != nil {
		cmp := t.Compare(n.Data, node.Data)
		if cmp > 0 {
			predecessor = node
			node = node.Right
		} else if cmp < 0 {
			node = node.Left
		} else {
			break
		}
	}
	return predecessor
}

// Remove deletes the node matching key from the tree, calling Cleanup on
// its Data. Reports whether a matching node was found.
func (t *Tree) Remove(key interface{}) bool {
	n := t.Find(key)
	if n == nil {
		return false
	}
	t.RemoveNode(n)
	return true
}

// RemoveNode deletes n from the tree, calling Cleanup on its Data, mirroring
// avl_remove_by_node. The Data is captured before the unlink: removing a
// node with two children replaces the node's Data in place with its
// in-order predecessor's, so reading n.Data afterwards would hand Cleanup
// a value still present in the tree.
func (t *Tree) RemoveNode(n *Node) {
	data := n.Data
	t.Root = removeByNode(t, n, t.Root)
	t.Cleanup(data)
}

func removeByNode(t *Tree, target *Node, root *Node) *Node {
	if root == nil {
		return nil
	}

	result := t.Compare(target.Data, root.Data)
	switch {
	case result < 0:
		root.Left = removeByNode(t, target, root.Left)
	case result > 0:
		root.Right = removeByNode(t, target, root.Right)
	default:
		if root.Left == nil || root.Right == nil {
			if root.Left != nil {
				root = root.Left
			} else {
				root = root.Right
			}
		} else {
			pred := Max(root.Left)
			root.Data = pred.Data
			root.Left = removeByNode(t, pred, root.Left)
		}
	}

	return balance(root)
}
