package cache

// lruNode is a node in a doubly-linked LRU list.
// The node points back at its entry for O(1) eviction from the parent map.
type lruNode[T any] struct {
	value T
	prev  *lruNode[T]
	next  *lruNode[T]
}

// lruList is a doubly-linked list for LRU eviction.
// The list is not thread-safe; callers must handle synchronization.
//
// The head is the most recently used, tail is least recently used.
type lruList[T any] struct {
	head *lruNode[T]
	tail *lruNode[T]
	len  int
}

// Len returns the number of nodes in the list.
func (l *lruList[T]) Len() int {
	return l.len
}

// PushFront adds a new node at the front (most recently used).
// Returns the created node for later access.
func (l *lruList[T]) PushFront(v T) *lruNode[T] {
	node := &lruNode[T]{value: v}
	l.linkFront(node)
	return node
}

// MoveToFront moves an existing node to the front (most recently used).
func (l *lruList[T]) MoveToFront(node *lruNode[T]) {
	if node == nil || node == l.head {
		return
	}
	l.unlink(node)
	l.linkFront(node)
}

// Remove removes a node from the list.
func (l *lruList[T]) Remove(node *lruNode[T]) {
	if node == nil {
		return
	}
	l.unlink(node)
}

// Back returns the least recently used node, or nil for an empty list.
func (l *lruList[T]) Back() *lruNode[T] {
	return l.tail
}

// Clear removes all nodes from the list.
func (l *lruList[T]) Clear() {
	l.head = nil
	l.tail = nil
	l.len = 0
}

func (l *lruList[T]) linkFront(node *lruNode[T]) {
	node.prev = nil
	node.next = l.head
	if l.head != nil {
		l.head.prev = node
	}
	l.head = node
	if l.tail == nil {
		l.tail = node
	}
	l.len++
}

// unlink removes a node from the list and clears its links.
func (l *lruList[T]) unlink(node *lruNode[T]) {
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

	node.prev = nil
	node.next = nil
	l.len--
}
