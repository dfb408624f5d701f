package atlas

import "math/rand/v2"

type nodeState uint8

const (
	nodeAvailable nodeState = iota
	nodeDivided
	nodeOccupied
)

// sampleTries bounds the random probes of the occupied-leaf set before
// eviction falls back to a full walk of the tree.
const sampleTries = 16

// node is one rectangle of the R-tree. A divided node has two to four
// children covering (part of) its area; an occupied node is a leaf
// holding an allocation; an available node is a free leaf linked into the
// tree's available list.
type node struct {
	x, y, width, height int

	// usedW and usedH are the requested size of an occupied node, which may
	// be smaller than the node when the remainder was too small to split.
	usedW, usedH int

	state    nodeState
	parent   *node
	children [4]*node
	nchild   int

	// pins is the re-entrant pin count of an occupied node. pinnedBelow is
	// the number of pinned occupied nodes in the subtree rooted here,
	// including the node itself.
	pins        int
	pinnedBelow int

	owner  OwnerID
	serial uint64

	// available list links
	prev, next *node

	// leaf is the index in tree.leaves while occupied, -1 otherwise.
	leaf int
}

func (n *node) fits(width, height int) bool {
	return n.width >= width && n.height >= height
}

// tree is a quad-split rectangle packer over a fixed area.
//
// Packing scans the available list for the first free leaf large enough and
// splits it into the requested rectangle plus up to three remainders.
// Remainders not larger than minSize in a dimension are left as slack inside
// their sibling rather than becoming nodes of their own. Removing a leaf
// collapses any parent whose children are all free again.
type tree struct {
	width, height int
	minSize       int

	root   *node
	avail  *node
	leaves []*node

	rng    *rand.Rand
	serial uint64

	// evicted runs for every occupied node destroyed by eviction, before the
	// node is reset.
	evicted func(n *node)
}

func newTree(width, height, minSize int, rng *rand.Rand, evicted func(*node)) *tree {
	t := &tree{
		width:   width,
		height:  height,
		minSize: minSize,
		rng:     rng,
		evicted: evicted,
	}
	t.reset()
	return t
}

// reset drops every node without running eviction callbacks.
func (t *tree) reset() {
	t.avail = nil
	t.leaves = t.leaves[:0]
	t.root = t.newNode(nil, 0, 0, t.width, t.height)
}

func (t *tree) newNode(parent *node, x, y, width, height int) *node {
	n := &node{
		x:      x,
		y:      y,
		width:  width,
		height: height,
		parent: parent,
		leaf:   -1,
	}
	t.pushAvail(n)
	return n
}

func (t *tree) pushAvail(n *node) {
	n.prev = nil
	n.next = t.avail
	if t.avail != nil {
		t.avail.prev = n
	}
	t.avail = n
}

func (t *tree) unlinkAvail(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
	} else if t.avail == n {
		t.avail = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	n.prev = nil
	n.next = nil
}

// pack allocates a width x height rectangle from free space, or returns nil
// when no available leaf is large enough.
func (t *tree) pack(width, height int) *node {
	for n := t.avail; n != nil; n = n.next {
		if n.fits(width, height) {
			return t.insertAt(n, width, height)
		}
	}
	return nil
}

// insertAt occupies the available node n, splitting off the unused space.
// n must fit the request.
func (t *tree) insertAt(n *node, width, height int) *node {
	t.unlinkAvail(n)

	w := n.width - width
	h := n.height - height
	if w > t.minSize || h > t.minSize {
		n.state = nodeDivided
		n.nchild = 0
		// Created in this order the corner remainder ends up at the head
		// of the available list, so the next request packs next to this
		// one.
		n.addChild(t.newNode(n, n.x, n.y, width, height))
		if w > t.minSize {
			n.addChild(t.newNode(n, n.x+width, n.y, w, height))
		}
		if h > t.minSize {
			n.addChild(t.newNode(n, n.x, n.y+height, width, h))
			if w > t.minSize {
				n.addChild(t.newNode(n, n.x+width, n.y+height, w, h))
			}
		}
		n = n.children[0]
		t.unlinkAvail(n)
	}

	t.serial++
	n.usedW = width
	n.usedH = height
	n.state = nodeOccupied
	n.serial = t.serial
	n.leaf = len(t.leaves)
	t.leaves = append(t.leaves, n)
	return n
}

func (n *node) addChild(c *node) {
	n.children[n.nchild] = c
	n.nchild++
}

func (t *tree) dropLeaf(n *node) {
	last := len(t.leaves) - 1
	if n.leaf != last {
		moved := t.leaves[last]
		t.leaves[n.leaf] = moved
		moved.leaf = n.leaf
	}
	t.leaves[last] = nil
	t.leaves = t.leaves[:last]
	n.leaf = -1
}

// pin increments the pin count of an occupied node.
func (t *tree) pin(n *node) {
	n.pins++
	if n.pins == 1 {
		for p := n; p != nil; p = p.parent {
			p.pinnedBelow++
		}
	}
}

// unpin decrements the pin count. It reports false when n was not pinned.
func (t *tree) unpin(n *node) bool {
	if n.pins == 0 {
		return false
	}
	n.pins--
	if n.pins == 0 {
		for p := n; p != nil; p = p.parent {
			p.pinnedBelow--
		}
	}
	return true
}

// remove frees an occupied node regardless of its pin count and collapses
// parents left without allocations. No eviction callback runs.
func (t *tree) remove(n *node) {
	if n.pins > 0 {
		n.pins = 1
		t.unpin(n)
	}
	t.vacate(n)
	t.pushAvail(n)
	if n.parent != nil {
		t.collapse(n.parent)
	}
}

func (t *tree) vacate(n *node) {
	if n.state == nodeOccupied {
		t.dropLeaf(n)
	}
	n.state = nodeAvailable
	n.owner = 0
	n.serial = 0
	n.pins = 0
	n.pinnedBelow = 0
}

func (t *tree) collapse(n *node) {
	for ; n != nil; n = n.parent {
		for i := 0; i < n.nchild; i++ {
			if n.children[i].state != nodeAvailable {
				return
			}
		}
		for i := 0; i < n.nchild; i++ {
			c := n.children[i]
			t.unlinkAvail(c)
			c.parent = nil
			n.children[i] = nil
		}
		n.nchild = 0
		n.state = nodeAvailable
		t.pushAvail(n)
	}
}

// evictable reports whether n and everything below it can be discarded to
// free its rectangle.
func evictable(n *node) bool {
	switch n.state {
	case nodeOccupied:
		return n.pins == 0
	case nodeDivided:
		return n.pinnedBelow == 0
	default:
		return false
	}
}

// evictRandom frees a randomly chosen unpinned node large enough for the
// request and returns it as an available node, or nil when every node that
// fits is pinned or has pinned descendants.
//
// Occupied leaves are sampled first; when sampling finds nothing the whole
// tree is walked so that eviction fails only if no evictable node fits.
func (t *tree) evictRandom(width, height int) *node {
	for i := 0; i < sampleTries && len(t.leaves) > 0; i++ {
		n := t.leaves[t.rng.IntN(len(t.leaves))]
		if n.pins == 0 && n.fits(width, height) {
			t.evict(n)
			return n
		}
	}

	count := 0
	t.walk(t.root, func(n *node) bool {
		if n.fits(width, height) && evictable(n) {
			count++
		}
		return n.fits(width, height)
	})
	if count == 0 {
		return nil
	}

	k := t.rng.IntN(count)
	var victim *node
	t.walk(t.root, func(n *node) bool {
		if victim != nil || !n.fits(width, height) {
			return false
		}
		if evictable(n) {
			if k == 0 {
				victim = n
				return false
			}
			k--
		}
		return true
	})
	t.evict(victim)
	return victim
}

// walk visits n and its subtree depth first. Children of a node are visited
// only if visit returned true for it.
func (t *tree) walk(n *node, visit func(*node) bool) {
	if !visit(n) || n.state != nodeDivided {
		return
	}
	for i := 0; i < n.nchild; i++ {
		t.walk(n.children[i], visit)
	}
}

// evict discards n and its subtree, running the eviction callback for every
// occupied node, and leaves n available but not linked into the available
// list. The caller packs into it directly.
func (t *tree) evict(n *node) {
	if n.state == nodeOccupied {
		if t.evicted != nil {
			t.evicted(n)
		}
	} else {
		t.destroyChildren(n)
	}
	t.vacate(n)
}

func (t *tree) destroyChildren(n *node) {
	for i := 0; i < n.nchild; i++ {
		c := n.children[i]
		switch c.state {
		case nodeOccupied:
			if t.evicted != nil {
				t.evicted(c)
			}
		case nodeAvailable:
			t.unlinkAvail(c)
		case nodeDivided:
			t.destroyChildren(c)
		}
		t.vacate(c)
		c.parent = nil
		n.children[i] = nil
	}
	n.nchild = 0
}

// evictAll discards every allocation, running eviction callbacks, and
// returns the tree to a single free root.
func (t *tree) evictAll() {
	for len(t.leaves) > 0 {
		n := t.leaves[len(t.leaves)-1]
		if t.evicted != nil {
			t.evicted(n)
		}
		t.vacate(n)
	}
	t.reset()
}

// usedArea returns the total area of occupied leaves.
func (t *tree) usedArea() int {
	area := 0
	for _, n := range t.leaves {
		area += n.width * n.height
	}
	return area
}
