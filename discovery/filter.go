package discovery

import "github.com/kbukum/gokit-discovery/logger"

// Filter is one stage of the discovery pipeline.
type Filter interface {
	// Name identifies the filter in logs and inspection output.
	Name() string
	// Order positions the filter; lower runs first.
	Order() int
	// Enabled is consulted on every invocation so filters can be toggled at runtime.
	Enabled() bool
	// IsGroupingFilter reports whether the filter partitions its input into
	// named groups. Non-grouping children keep their parent's name.
	IsGroupingFilter() bool
	// Discovery returns the child of parent selected for ctx. It must not
	// return nil.
	Discovery(ctx *Context, parent *Node) *Node
}

// ChildHooks is the part of a filter that DiscoverChild drives.
type ChildHooks interface {
	// Init populates parent's children. It runs once per parent node.
	Init(ctx *Context, parent *Node)
	// FindChildName picks the child key for ctx.
	FindChildName(ctx *Context, parent *Node) string
}

// EmptyDataProvider is implemented by hooks that want a typed empty payload
// when the requested child does not exist.
type EmptyDataProvider interface {
	EmptyData() any
}

// DiscoverChild is the shared filter skeleton: initialise the parent's
// children once, then look up the child named for ctx. A missing child is not
// an error; a warning is logged and an empty node is returned.
func DiscoverChild(ctx *Context, parent *Node, hooks ChildHooks) *Node {
	parent.initChildren(func() { hooks.Init(ctx, parent) })

	name := hooks.FindChildName(ctx, parent)
	if child := parent.Child(name); child != nil {
		return child
	}

	ctx.Logger().Warn("discovery child not found", map[string]interface{}{
		"child":                  name,
		"parent":                 parent.Name(),
		logger.FieldCacheVersion: parent.CacheVersion(),
	})
	var empty any
	if p, ok := hooks.(EmptyDataProvider); ok {
		empty = p.EmptyData()
	}
	return parent.Derive(empty)
}
