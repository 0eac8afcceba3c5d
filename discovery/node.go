package discovery

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Node is one memoised step of a discovery. Its payload is immutable; only
// the children map, attributes and level change after construction.
type Node struct {
	VersionedCache

	level atomic.Int32
	attrs sync.Map

	mu       sync.RWMutex
	children map[string]*Node

	initMu         sync.Mutex
	childrenInited atomic.Bool
}

// NewNode creates a node with a fresh cache version.
func NewNode(name string, data any) *Node {
	return &Node{VersionedCache: VersionedCache{name: name, data: data, cacheVersion: NextCacheVersion()}}
}

// NewNodeFromCache creates a node that shares the identity of c.
func NewNodeFromCache(c *VersionedCache) *Node {
	return &Node{VersionedCache: *c}
}

func newRoot(cacheVersion int64) *Node {
	return &Node{VersionedCache: VersionedCache{cacheVersion: cacheVersion}}
}

// Derive creates a child payload that keeps n's name and cache version.
// Non-grouping filters use it so that the leaf keeps the service-level name.
func (n *Node) Derive(data any) *Node {
	return n.DeriveNamed(n.name, data)
}

// DeriveNamed creates a child payload with its own name and n's cache version.
func (n *Node) DeriveNamed(name string, data any) *Node {
	return &Node{VersionedCache: VersionedCache{name: name, data: data, cacheVersion: n.cacheVersion}}
}

// Level is the 1-based index of the filter that produced the node. Roots and
// input nodes are level 0.
func (n *Node) Level() int { return int(n.level.Load()) }

func (n *Node) setLevel(level int) {
	if int(n.level.Load()) != level {
		n.level.Store(int32(level))
	}
}

// Attribute returns a value previously stored with SetAttribute.
func (n *Node) Attribute(key string) (any, bool) {
	return n.attrs.Load(key)
}

// SetAttribute attaches a filter-specific value to the node.
func (n *Node) SetAttribute(key string, value any) {
	n.attrs.Store(key, value)
}

// Child returns the child stored under key, or nil.
func (n *Node) Child(key string) *Node {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.children[key]
}

// PutChild stores child under key, replacing any previous child.
func (n *Node) PutChild(key string, child *Node) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.children == nil {
		n.children = make(map[string]*Node)
	}
	n.children[key] = child
}

// ChildOrCreate returns the child under key, creating it with create when
// absent. create runs at most once per key while the node lock is held and
// must not call back into n.
func (n *Node) ChildOrCreate(key string, create func() *Node) (*Node, bool) {
	if child := n.Child(key); child != nil {
		return child, false
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if child, ok := n.children[key]; ok {
		return child, false
	}
	if n.children == nil {
		n.children = make(map[string]*Node)
	}
	child := create()
	n.children[key] = child
	return child, true
}

// PruneChildren removes every child whose key is rejected by keep.
func (n *Node) PruneChildren(keep func(key string) bool) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	removed := 0
	for key := range n.children {
		if !keep(key) {
			delete(n.children, key)
			removed++
		}
	}
	return removed
}

// ChildKeys returns the sorted child keys.
func (n *Node) ChildKeys() []string {
	n.mu.RLock()
	keys := make([]string, 0, len(n.children))
	for key := range n.children {
		keys = append(keys, key)
	}
	n.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// ChildrenInited reports whether a filter has populated the children.
func (n *Node) ChildrenInited() bool {
	return n.childrenInited.Load()
}

// initChildren runs init once per node. Concurrent callers block until the
// first one finishes.
func (n *Node) initChildren(init func()) {
	if n.childrenInited.Load() {
		return
	}
	n.initMu.Lock()
	defer n.initMu.Unlock()
	if n.childrenInited.Load() {
		return
	}
	init()
	n.childrenInited.Store(true)
}

// DataAs returns the node payload as T, or the zero value when the payload
// has a different type.
func DataAs[T any](n *Node) T {
	var zero T
	if n == nil {
		return zero
	}
	v, ok := n.data.(T)
	if !ok {
		return zero
	}
	return v
}
