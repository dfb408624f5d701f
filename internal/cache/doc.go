// Package cache provides the generic cache-entry contract shared by the
// compositor's program and gradient-ramp caches.
//
// # Cache[K, V]
//
// A cost-bounded LRU cache whose entries carry a reference count. An entry
// is evictable only while no caller references it:
//
//	c := cache.New[sigKey, *program](64, destroyProgram)
//	e, ok := c.Lookup(key)
//	if !ok {
//	    e = c.Insert(key, compile(key), 1)
//	}
//	c.Acquire(e)       // in flight: cannot be evicted
//	defer c.Release(e) // evictable again
//
// Keys hash into buckets and compare with Equal, so content-addressed keys
// whose hashes collide still resolve to distinct entries.
//
// # Thread Safety
//
// Cache is not safe for concurrent use; the owning device context
// serializes all access.
package cache
