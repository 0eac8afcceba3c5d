package filter

import "github.com/kbukum/gokit-discovery/discovery"

// VersionRuleOrder positions the version rule filter first.
const VersionRuleOrder = 100

// VersionRuleFilter selects the subtree for the invocation's version rule.
// Its input is already restricted to the rule, so its single child carries
// the parent payload unchanged.
type VersionRuleFilter struct {
	enabled bool
}

// NewVersionRuleFilter creates an enabled version rule filter.
func NewVersionRuleFilter() *VersionRuleFilter {
	return &VersionRuleFilter{enabled: true}
}

func (f *VersionRuleFilter) Name() string           { return "version-rule" }
func (f *VersionRuleFilter) Order() int             { return VersionRuleOrder }
func (f *VersionRuleFilter) Enabled() bool          { return f.enabled }
func (f *VersionRuleFilter) IsGroupingFilter() bool { return true }

func (f *VersionRuleFilter) Discovery(ctx *discovery.Context, parent *discovery.Node) *discovery.Node {
	return discovery.DiscoverChild(ctx, parent, f)
}

func (f *VersionRuleFilter) Init(ctx *discovery.Context, parent *discovery.Node) {
	parent.PutChild(ctx.VersionRule, parent.Derive(parent.Data()))
}

func (f *VersionRuleFilter) FindChildName(ctx *discovery.Context, _ *discovery.Node) string {
	return ctx.VersionRule
}
