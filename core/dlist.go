package core

// DNode is one element of a DList. Grounded on the sentinel-free
// node shape in other_examples' GhostDB LRU doubly-linked list, stripped
// of per-node locking: spec.md §5 makes the whole engine single-threaded
// cooperative, so no node needs its own mutex here.
type DNode struct {
	Value interface{}
	prev  *DNode
	next  *DNode
}

// Prev returns the node's predecessor, or nil at the head.
func (n *DNode) Prev() *DNode { return n.prev }

// Next returns the node's successor, or nil at the tail.
func (n *DNode) Next() *DNode { return n.next }

// DList is the generic intrusive doubly-linked list of spec.md §4.1:
// the fallback container above the ziplist threshold, and the engine's
// general-purpose queue. Dup/Free/Match are optional callbacks mirroring
// the function-pointer triple the spec calls for.
type DList struct {
	head, tail *DNode
	length     int

	Dup   func(v interface{}) interface{}
	Free  func(v interface{})
	Match func(a, b interface{}) bool
}

// NewDList constructs an empty list.
func NewDList() *DList {
	return &DList{}
}

// Len returns the number of nodes in the list.
func (l *DList) Len() int { return l.length }

// Head returns the first node, or nil if the list is empty.
func (l *DList) Head() *DNode { return l.head }

// Tail returns the last node, or nil if the list is empty.
func (l *DList) Tail() *DNode { return l.tail }

// PushHead inserts value as the new head of the list.
func (l *DList) PushHead(value interface{}) *DNode {
	n := &DNode{Value: value}
	if l.head == nil {
		l.head, l.tail = n, n
	} else {
		n.next = l.head
		l.head.prev = n
		l.head = n
	}
	l.length++
	return n
}

// PushTail inserts value as the new tail of the list.
func (l *DList) PushTail(value interface{}) *DNode {
	n := &DNode{Value: value}
	if l.tail == nil {
		l.head, l.tail = n, n
	} else {
		n.prev = l.tail
		l.tail.next = n
		l.tail = n
	}
	l.length++
	return n
}

// InsertBefore inserts value immediately before node old.
func (l *DList) InsertBefore(old *DNode, value interface{}) *DNode {
	if old == l.head {
		return l.PushHead(value)
	}
	n := &DNode{Value: value, prev: old.prev, next: old}
	old.prev.next = n
	old.prev = n
	l.length++
	return n
}

// InsertAfter inserts value immediately after node old.
func (l *DList) InsertAfter(old *DNode, value interface{}) *DNode {
	if old == l.tail {
		return l.PushTail(value)
	}
	n := &DNode{Value: value, prev: old, next: old.next}
	old.next.prev = n
	old.next = n
	l.length++
	return n
}

// Delete removes node from the list, invoking Free on its value if set.
func (l *DList) Delete(node *DNode) {
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		l.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		l.tail = node.prev
	}
	if l.Free != nil {
		l.Free(node.Value)
	}
	node.prev, node.next = nil, nil
	l.length--
}

// Rotate moves the tail node to become the new head, in O(1).
func (l *DList) Rotate() {
	if l.length <= 1 {
		return
	}
	n := l.tail
	l.tail = n.prev
	l.tail.next = nil

	n.prev = nil
	n.next = l.head
	l.head.prev = n
	l.head = n
}

// Join concatenates other onto the end of l, emptying other.
func (l *DList) Join(other *DList) {
	if other.length == 0 {
		return
	}
	if l.length == 0 {
		l.head, l.tail, l.length = other.head, other.tail, other.length
	} else {
		l.tail.next = other.head
		other.head.prev = l.tail
		l.tail = other.tail
		l.length += other.length
	}
	other.head, other.tail, other.length = nil, nil, 0
}

// Search scans the list from the head using Match (or == when Match is
// nil) and returns the first matching node, or nil.
func (l *DList) Search(value interface{}) *DNode {
	for n := l.head; n != nil; n = n.next {
		if l.matches(n.Value, value) {
			return n
		}
	}
	return nil
}

func (l *DList) matches(a, b interface{}) bool {
	if l.Match != nil {
		return l.Match(a, b)
	}
	return a == b
}

// Index returns the node at the given signed index: non-negative counts
// from the head (0-based), negative counts from the tail (-1 is the last
// node). Returns nil if out of range.
func (l *DList) Index(index int) *DNode {
	if index >= 0 {
		n := l.head
		for ; n != nil && index > 0; index-- {
			n = n.next
		}
		return n
	}

	n := l.tail
	index = -index - 1
	for ; n != nil && index > 0; index-- {
		n = n.prev
	}
	return n
}

// Duplicate deep-copies the list using Dup when set, otherwise copies
// values by assignment (shallow).
func (l *DList) Duplicate() *DList {
	dup := &DList{Dup: l.Dup, Free: l.Free, Match: l.Match}
	for n := l.head; n != nil; n = n.next {
		v := n.Value
		if dup.Dup != nil {
			v = dup.Dup(v)
		}
		dup.PushTail(v)
	}
	return dup
}

// DListDirection selects an iterator's traversal order.
type DListDirection int

const (
	// DListHeadToTail iterates from the head forward.
	DListHeadToTail DListDirection = iota
	// DListTailToHead iterates from the tail backward.
	DListTailToHead
)

// DListIterator walks a DList in either direction. Deleting the node
// most recently returned by Next is permitted; deleting any other node
// mid-iteration is not.
type DListIterator struct {
	next      *DNode
	direction DListDirection
}

// NewIterator constructs an iterator over l in the given direction.
func (l *DList) NewIterator(direction DListDirection) *DListIterator {
	it := &DListIterator{direction: direction}
	if direction == DListHeadToTail {
		it.next = l.head
	} else {
		it.next = l.tail
	}
	return it
}

// Next returns the next node, or nil when iteration is exhausted.
func (it *DListIterator) Next() *DNode {
	n := it.next
	if n == nil {
		return nil
	}
	if it.direction == DListHeadToTail {
		it.next = n.next
	} else {
		it.next = n.prev
	}
	return n
}
