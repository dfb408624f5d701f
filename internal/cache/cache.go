package cache

// Key is implemented by cache keys. Entries are bucketed by Hash and matched
// by Equal, so two keys with equal hashes but different content stay
// distinct.
type Key[K any] interface {
	Hash() uint64
	Equal(other K) bool
}

// Entry is a resident cache entry.
//
// An entry is evictable only while its reference count is zero. The cache
// owns the entry; callers hold it between Acquire and Release.
type Entry[K Key[K], V any] struct {
	key   K
	hash  uint64
	cost  int
	refs  int
	value V
	node  *lruNode[*Entry[K, V]]
	dead  bool
}

// Key returns the entry key.
func (e *Entry[K, V]) Key() K { return e.key }

// Value returns the cached payload.
func (e *Entry[K, V]) Value() V { return e.value }

// Cost returns the size cost charged against the cache capacity.
func (e *Entry[K, V]) Cost() int { return e.cost }

// Refs returns the current reference count.
func (e *Entry[K, V]) Refs() int { return e.refs }

// Evicted reports whether the entry has left the cache.
func (e *Entry[K, V]) Evicted() bool { return e.dead }

// Cache is a cost-bounded LRU cache with reference-counted entries.
//
// When an insertion would push the resident cost over capacity, the least
// recently used entries with no references are destroyed until the new entry
// fits. If every resident entry is referenced the insertion still succeeds
// and the cache runs over capacity until references are released.
//
// Cache is not safe for concurrent use. The owning device serializes access.
type Cache[K Key[K], V any] struct {
	buckets  map[uint64][]*Entry[K, V]
	lru      lruList[*Entry[K, V]]
	capacity int
	cost     int
	destroy  func(K, V)

	hits      uint64
	misses    uint64
	evictions uint64
}

// New creates a cache bounded by capacity cost units. destroy, when non-nil,
// runs for every entry that leaves the cache.
func New[K Key[K], V any](capacity int, destroy func(K, V)) *Cache[K, V] {
	if capacity < 1 {
		capacity = 1
	}
	return &Cache[K, V]{
		buckets:  make(map[uint64][]*Entry[K, V]),
		capacity: capacity,
		destroy:  destroy,
	}
}

// Lookup returns the entry for key and marks it most recently used.
func (c *Cache[K, V]) Lookup(key K) (*Entry[K, V], bool) {
	e := c.find(key)
	if e == nil {
		c.misses++
		return nil, false
	}
	c.hits++
	c.lru.MoveToFront(e.node)
	return e, true
}

func (c *Cache[K, V]) find(key K) *Entry[K, V] {
	for _, e := range c.buckets[key.Hash()] {
		if e.key.Equal(key) {
			return e
		}
	}
	return nil
}

// Insert adds value under key with the given cost and returns the new
// entry with a reference count of zero. An existing entry with an equal key
// is replaced.
func (c *Cache[K, V]) Insert(key K, value V, cost int) *Entry[K, V] {
	if old := c.find(key); old != nil {
		c.remove(old)
	}
	c.shrink(cost)

	e := &Entry[K, V]{
		key:   key,
		hash:  key.Hash(),
		cost:  cost,
		value: value,
	}
	e.node = c.lru.PushFront(e)
	c.buckets[e.hash] = append(c.buckets[e.hash], e)
	c.cost += cost
	return e
}

// Acquire increments the reference count of e, making it non-evictable.
func (c *Cache[K, V]) Acquire(e *Entry[K, V]) {
	e.refs++
}

// Release decrements the reference count of e. At zero the entry becomes
// evictable, and an over-capacity cache sheds entries immediately.
func (c *Cache[K, V]) Release(e *Entry[K, V]) {
	if e.refs == 0 {
		return
	}
	e.refs--
	if e.refs == 0 && c.cost > c.capacity {
		c.shrink(0)
	}
}

// Remove destroys e regardless of its reference count.
func (c *Cache[K, V]) Remove(e *Entry[K, V]) {
	if e == nil || e.dead {
		return
	}
	c.remove(e)
}

// shrink evicts unreferenced entries, oldest first, until additional cost
// fits within capacity or nothing evictable remains.
func (c *Cache[K, V]) shrink(additional int) {
	node := c.lru.Back()
	for node != nil && c.cost+additional > c.capacity {
		prev := node.prev
		if node.value.refs == 0 {
			c.remove(node.value)
			c.evictions++
		}
		node = prev
	}
}

func (c *Cache[K, V]) remove(e *Entry[K, V]) {
	bucket := c.buckets[e.hash]
	for i, other := range bucket {
		if other == e {
			bucket[i] = bucket[len(bucket)-1]
			bucket[len(bucket)-1] = nil
			bucket = bucket[:len(bucket)-1]
			break
		}
	}
	if len(bucket) == 0 {
		delete(c.buckets, e.hash)
	} else {
		c.buckets[e.hash] = bucket
	}
	c.lru.Remove(e.node)
	c.cost -= e.cost
	e.dead = true
	if c.destroy != nil {
		c.destroy(e.key, e.value)
	}
}

// Clear destroys every entry, referenced or not.
func (c *Cache[K, V]) Clear() {
	for node := c.lru.Back(); node != nil; {
		prev := node.prev
		c.remove(node.value)
		node = prev
	}
	c.lru.Clear()
}

// Len returns the number of resident entries.
func (c *Cache[K, V]) Len() int {
	return c.lru.Len()
}

// Cost returns the resident cost.
func (c *Cache[K, V]) Cost() int {
	return c.cost
}

// Capacity returns the cost bound.
func (c *Cache[K, V]) Capacity() int {
	return c.capacity
}

// Stats returns cache statistics.
func (c *Cache[K, V]) Stats() Stats {
	var rate float64
	if total := c.hits + c.misses; total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return Stats{
		Len:       c.lru.Len(),
		Cost:      c.cost,
		Capacity:  c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		HitRate:   rate,
		Evictions: c.evictions,
	}
}

// Stats contains cache statistics.
type Stats struct {
	// Len is the current number of entries.
	Len int
	// Cost is the resident cost.
	Cost int
	// Capacity is the cost bound.
	Capacity int
	// Hits is the number of successful lookups.
	Hits uint64
	// Misses is the number of failed lookups.
	Misses uint64
	// HitRate is the hit rate 0.0 to 1.0.
	HitRate float64
	// Evictions is the number of entries destroyed to make room.
	Evictions uint64
}
