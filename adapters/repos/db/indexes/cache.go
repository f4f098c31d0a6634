//                           _       _
// __      _____  __ ___   ___  __ _| |_ ___
// \ \ /\ / / _ \/ _` \ \ / / |/ _` | __/ _ \
//  \ V  V /  __/ (_| |\ V /| | (_| | ||  __/
//   \_/\_/ \___|\__,_| \_/ |_|\__,_|\__\___|
//
//  Copyright © 2016 - 2024 Weaviate B.V. All rights reserved.
//
//  CONTACT: hello@weaviate.io
//

package indexes

import (
	"container/list"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/weaviate/kestrel/entities/payload"
	"github.com/weaviate/kestrel/entities/query"
)

// idsetCache is a bounded LRU over SelectKey answers, keyed by the
// condition, the sort id and the key values. Any mutation of the owning
// index clears it wholesale: re-validating entries piecemeal costs more
// than re-running the hot selects.
type idsetCache struct {
	mu       sync.Mutex
	entries  map[string]*list.Element
	order    *list.List
	maxItems int
	hits     uint64
	misses   uint64
}

type cacheItem struct {
	key string
	ids []int
}

const defaultIdsetCacheItems = 1024

func newIdsetCache(maxItems int) *idsetCache {
	if maxItems <= 0 {
		maxItems = defaultIdsetCacheItems
	}
	return &idsetCache{
		entries:  map[string]*list.Element{},
		order:    list.New(),
		maxItems: maxItems,
	}
}

func cacheKey(keys payload.Variants, cond query.CondType, sortID int) string {
	var b strings.Builder
	b.WriteByte(byte(cond))
	b.WriteByte(byte(sortID))
	for _, v := range keys {
		b.WriteString(v.String())
		b.WriteByte(0)
	}
	return b.String()
}

func (c *idsetCache) get(key string) ([]int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		atomic.AddUint64(&c.misses, 1)
		return nil, false
	}
	c.order.MoveToFront(el)
	atomic.AddUint64(&c.hits, 1)
	return el.Value.(*cacheItem).ids, true
}

func (c *idsetCache) put(key string, ids []int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		el.Value.(*cacheItem).ids = ids
		c.order.MoveToFront(el)
		return
	}
	el := c.order.PushFront(&cacheItem{key: key, ids: ids})
	c.entries[key] = el
	for c.order.Len() > c.maxItems {
		last := c.order.Back()
		c.order.Remove(last)
		delete(c.entries, last.Value.(*cacheItem).key)
	}
}

func (c *idsetCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[string]*list.Element{}
	c.order.Init()
}

func (c *idsetCache) stats() (hits, misses uint64) {
	return atomic.LoadUint64(&c.hits), atomic.LoadUint64(&c.misses)
}
