// Package discovery implements the filter pipeline that turns an instance
// snapshot into the candidate set handed to a load balancer.
//
// A Tree folds an ordered list of Filters over a VersionedCache produced by a
// Source. Every filter step is memoised as a Node in a tree rooted at the
// input's cache version, so repeated resolutions against unchanged data only
// walk existing nodes. When the input's cache version moves, the root is
// replaced and the whole tree rebuilds lazily.
//
//	tree := discovery.NewTree(source, log, []discovery.Filter{
//		filter.NewVersionRuleFilter(),
//		filter.NewEndpointFilter(filter.EndpointConfig{}, log),
//	})
//	node, err := tree.Discovery(discovery.NewContext().WithTransport("rest"), "default", "orders", "1.0.0+")
package discovery
