// Package ttlcache provides a generic, thread-safe key/value store whose
// entries expire at an absolute time fixed when they are inserted.
//
// # Expiration
//
// Every Set computes expiresAt = now + ttl. Reads never extend an entry's
// lifetime. An expired entry is treated as a miss by Get and GetOrCreate and
// is removed lazily on that read; Sweep removes every expired entry at once,
// and Run calls Sweep on an interval until its context is cancelled. No
// background goroutine is started by New.
//
// # Capacity
//
// The cache holds at most maxSize entries. Inserting a new key into a full
// cache evicts the oldest insertion first (O(1) via an ordered list).
//
// # Creation
//
// GetOrCreate runs its create function outside the cache lock. Callers
// asking for the same key meanwhile wait for that one call; other keys are
// unaffected.
//
// # Usage
//
//	agents := ttlcache.New[*agent.Agent](60*24*time.Hour, 100_000)
//	agents.Set("alice|$evt", a)
//	if a, ok := agents.Get("alice|$evt"); ok {
//	    ...
//	}
package ttlcache
