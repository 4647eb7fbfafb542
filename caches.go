package dbus

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
)

// cache is a concurrency-safe cache of per-reflect.Type information.
type cache[V any] struct {
	m sync.Map
}

func (c *cache[V]) Get(t reflect.Type) (val V, found bool) {
	ent, ok := c.m.Load(t)
	if !ok {
		return val, false
	}
	if val, ok := ent.(V); ok {
		return val, true
	}
	panic(fmt.Sprintf("mystery value %v (%T) in cache", ent, ent))
}

func (c *cache[V]) Put(t reflect.Type, val V) {
	c.m.LoadOrStore(t, val)
}

// maxCachedSignatures bounds the number of distinct signatures a
// SignatureCache remembers. Signatures beyond the limit are parsed
// every time.
const maxCachedSignatures = 4096

// A SignatureCache memoizes [ParseSignature], including parse
// failures.
//
// A SignatureCache is safe for concurrent use. The zero value is an
// empty cache ready for use.
type SignatureCache struct {
	m sync.Map
	n atomic.Int64
}

type cacheEntry struct {
	sig Signature
	err error
}

// Parse is like [ParseSignature], but returns a cached result if sig
// has been parsed before.
func (c *SignatureCache) Parse(sig string) (Signature, error) {
	if ent, ok := c.m.Load(sig); ok {
		e := ent.(cacheEntry)
		return e.sig, e.err
	}
	ret, err := ParseSignature(sig)
	if c.n.Load() < maxCachedSignatures {
		if _, loaded := c.m.LoadOrStore(sig, cacheEntry{ret, err}); !loaded {
			c.n.Add(1)
		}
	}
	return ret, err
}

// Len returns the number of signatures in the cache.
func (c *SignatureCache) Len() int {
	return int(c.n.Load())
}
