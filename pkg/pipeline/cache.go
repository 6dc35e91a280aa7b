package pipeline

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"

	"github.com/kadirpekel/forge/pkg/tool"
)

// cacheStore is a size-bounded least-recently-used cache keyed by a
// canonicalized fingerprint of (tool_name, args). Grounded on the
// touch/prune mutex-and-map shape of haasonsaas-nexus's
// internal/cache/dedupe.go, extended with a container/list to give
// genuine O(1) move-to-front LRU ordering rather than dedupe's
// delete-and-reinsert approximation.
type cacheStore struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	order    *list.List // front = most recently used

	hits, misses int64
}

type cacheEntry struct {
	key    string
	result *tool.Result
}

func newCacheStore(capacity int) *cacheStore {
	if capacity <= 0 {
		capacity = 1
	}
	return &cacheStore{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

func (c *cacheStore) get(key string) (*tool.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	c.order.MoveToFront(el)
	c.hits++
	return el.Value.(*cacheEntry).result, true
}

func (c *cacheStore) put(key string, result *tool.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		el.Value.(*cacheEntry).result = result
		c.order.MoveToFront(el)
		return
	}
	el := c.order.PushFront(&cacheEntry{key: key, result: result})
	c.items[key] = el
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*cacheEntry).key)
		}
	}
}

// Stats is the hit/miss/size snapshot spec.md §4.5 requires via
// cache_stats().
type Stats struct {
	Hits   int64
	Misses int64
	Size   int
}

func (c *cacheStore) stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Size: c.order.Len()}
}

// defaultsMaterializer fills in a tool's declared defaults for args the
// caller omitted, so two calls differing only by an unset-vs-default
// value hash identically. Implemented by *tool.Registry.
type defaultsMaterializer interface {
	MaterializeDefaults(name string, args map[string]any) map[string]any
}

// fingerprint builds the canonical cache key spec.md §9 Open Question 1
// calls for: tool name plus a key-sorted JSON encoding of args with
// declared defaults materialized. encoding/json already sorts map keys
// on marshal, so canonicalization only needs the default-materialization
// step performed by the registry.
func fingerprint(materializer defaultsMaterializer, toolName string, args map[string]any) string {
	canonical := args
	if materializer != nil {
		canonical = materializer.MaterializeDefaults(toolName, args)
	}
	sortedKeys := make([]string, 0, len(canonical))
	for k := range canonical {
		sortedKeys = append(sortedKeys, k)
	}
	sort.Strings(sortedKeys)

	ordered := make(map[string]any, len(canonical))
	for _, k := range sortedKeys {
		ordered[k] = canonical[k]
	}

	data, _ := json.Marshal(ordered)
	sum := sha256.Sum256(append([]byte(toolName+"\x1f"), data...))
	return hex.EncodeToString(sum[:])
}
