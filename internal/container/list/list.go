// Package list implements an intrusive doubly-linked list, the FIFO
// backbone used by the scheduler's per-priority run queues and the message
// queue's pending-messages list. Adapted from
// driver/src/generic/core/vfs/list.c: same push/pop/peek/remove vocabulary
// and head/tail bookkeeping, with the lookup/cleanup callbacks modeled as
// Go function-valued fields rather than function pointers.
package list

// LookupFunc reports whether item's Data matches key. Mirrors
// list_lookup_func_t; DefaultLookup reproduces list_default_lookup's
// pointer/value equality check.
type LookupFunc func(data interface{}, key interface{}) bool

// CleanupFunc releases resources owned by an Item's Data when it leaves the
// list. Mirrors list_cleanup_func_t; DefaultCleanup is a no-op (the C code
// frees the node, which Go's GC makes unnecessary here).
type CleanupFunc func(data interface{})

// Item is a single list node.
type Item struct {
	Data     interface{}
	Next     *Item
	Previous *Item
}

// List is an intrusive doubly-linked list with O(1) push/pop at both ends.
type List struct {
	First   *Item
	Last    *Item
	Lookup  LookupFunc
	Cleanup CleanupFunc
}

// DefaultLookup compares by pointer/value equality.
func DefaultLookup(data interface{}, key interface{}) bool {
	return data == key
}

// DefaultCleanup does nothing.
func DefaultCleanup(interface{}) {}

// New constructs an empty List. lookup and cleanup may be nil, in which
// case DefaultLookup/DefaultCleanup apply, matching list_construct's
// fallback.
func New(lookup LookupFunc, cleanup CleanupFunc) *List {
	if lookup == nil {
		lookup = DefaultLookup
	}
	if cleanup == nil {
		cleanup = DefaultCleanup
	}
	return &List{Lookup: lookup, Cleanup: cleanup}
}

// Empty reports whether the list has no items, mirroring list_empty.
func (l *List) Empty() bool {
	return l.First == nil && l.Last == nil
}

// PushFront inserts data as a new head item, mirroring list_push_front.
func (l *List) PushFront(data interface{}) *Item {
	n := &Item{Data: data}
	l.PushFrontItem(n)
	return n
}

// PushFrontItem inserts an already-constructed item at the head, mirroring
// list_push_front_node (for callers that build the item separately, e.g. to
// keep a handle for a later Remove).
func (l *List) PushFrontItem(n *Item) {
	first := l.First
	n.Next = first
	n.Previous = nil
	if first != nil {
		first.Previous = n
	}
	l.First = n
	if l.Last == nil {
		l.Last = l.First
	}
}

// PushBack inserts data as a new tail item, mirroring list_push_back.
func (l *List) PushBack(data interface{}) *Item {
	n := &Item{Data: data}
	l.PushBackItem(n)
	return n
}

// PushBackItem inserts an already-constructed item at the tail, mirroring
// list_push_back_node.
func (l *List) PushBackItem(n *Item) {
	last := l.Last
	n.Previous = last
	n.Next = nil
	if last != nil {
		last.Next = n
	}
	l.Last = n
	if l.First == nil {
		l.First = l.Last
	}
}

// PeekFront returns the head item's Data without removing it, or nil if the
// list is empty, mirroring list_peek_front.
func (l *List) PeekFront() interface{} {
	if l.First == nil {
		return nil
	}
	return l.First.Data
}

// PeekBack returns the tail item's Data without removing it, or nil if the
// list is empty, mirroring list_peek_back.
func (l *List) PeekBack() interface{} {
	if l.Last == nil {
		return nil
	}
	return l.Last.Data
}

// PopFront removes and returns the head item's Data, or nil if the list is
// empty, mirroring list_pop_front.
func (l *List) PopFront() interface{} {
	first := l.First
	if first == nil {
		return nil
	}

	data := first.Data
	if first.Next != nil {
		first.Next.Previous = nil
	}
	l.First = first.Next
	if l.First == nil {
		l.Last = nil
	}

	l.Cleanup(first.Data)
	return data
}

// PopBack removes and returns the tail item's Data, or nil if the list is
// empty, mirroring list_pop_back.
func (l *List) PopBack() interface{} {
	last := l.Last
	if last == nil {
		return nil
	}

	data := last.Data
	if last.Previous != nil {
		last.Previous.Next = nil
	}
	l.Last = last.Previous
	if l.Last == nil {
		l.First = nil
	}

	l.Cleanup(last.Data)
	return data
}

// LookupData scans from the head for the first item whose Data matches key
// according to Lookup, mirroring list_lookup_data.
func (l *List) LookupData(key interface{}) *Item {
	for cur := l.First; cur != nil; cur = cur.Next {
		if l.Lookup(cur.Data, key) {
			return cur
		}
	}
	return nil
}

// LookupItem scans from the head for item by identity, mirroring
// list_lookup_item.
func (l *List) LookupItem(item *Item) *Item {
	for cur := l.First; cur != nil; cur = cur.Next {
		if cur == item {
			return cur
		}
	}
	return nil
}

// Remove unlinks item from the list and calls Cleanup on its Data. Reports
// whether item was found, mirroring list_remove.
func (l *List) Remove(item *Item) bool {
	if item == nil || l.LookupItem(item) == nil {
		return false
	}
	l.unlink(item)
	l.Cleanup(item.Data)
	return true
}

// RemoveData finds the first item whose Data matches key and removes it,
// mirroring list_remove_data.
func (l *List) RemoveData(key interface{}) bool {
	item := l.LookupData(key)
	if item == nil {
		return false
	}
	l.unlink(item)
	l.Cleanup(item.Data)
	return true
}

func (l *List) unlink(item *Item) {
	if item.Next != nil {
		item.Next.Previous = item.Previous
	}
	if item.Previous != nil {
		item.Previous.Next = item.Next
	}
	if item == l.First {
		l.First = item.Next
	}
	if item == l.Last {
		l.Last = item.Previous
	}
}

// Destruct empties the list, running Cleanup once per item, mirroring
// list_destruct. The list is reusable afterwards.
func (l *List) Destruct() {
	for cur := l.First; cur != nil; cur = cur.Next {
		l.Cleanup(cur.Data)
	}
	l.First = nil
	l.Last = nil
}

// Len counts the items in the list. Not present in the C list (which has
// no O(1) or O(n) size query); added because every consumer in this module
// needs queue depth for the message-queue/scheduler invariants.
func (l *List) Len() int {
	n := 0
	for cur := l.First; cur != nil; cur = cur.Next {
		n++
	}
	return n
}

// Each calls fn for every item's Data, from head to tail.
func (l *List) Each(fn func(data interface{})) {
	for cur := l.First; cur != nil; cur = cur.Next {
		fn(cur.Data)
	}
}
