package filter

import (
	"strings"

	"github.com/kbukum/gokit-discovery/discovery"
	"github.com/kbukum/gokit-discovery/logger"
	"github.com/kbukum/gokit-discovery/registry"
)

// PriorityPropertyOrder runs the priority property filter after the version
// rule and before isolation, so an isolated group falls back to its parent
// group.
const PriorityPropertyOrder = 400

// DefaultPriorityKey is the instance property grouped on when none is set.
const DefaultPriorityKey = "environment"

// AllInstances is the child holding the whole parent set. Callers reach it by
// passing it as the context value.
const AllInstances = "allInstance"

const prioritySeparator = "."

// PriorityPropertyConfig configures the priority property filter.
type PriorityPropertyConfig struct {
	Enabled bool `mapstructure:"enabled" json:"enabled"`
	// Key is the instance property instances are grouped by.
	Key string `mapstructure:"key" json:"key,omitempty"`
	// Value is the consumer's own value, used when the invocation carries
	// no "x-<key>" input.
	Value string `mapstructure:"value" json:"value,omitempty"`
}

// PriorityPropertyFilter groups instances by a dotted property value such as
// "prod.eu.az1" and prefers the most specific group. When a group yields
// nothing further down the pipeline the tree reruns the filter, which then
// drops the last segment ("prod.eu", then "prod", then the empty group).
type PriorityPropertyFilter struct {
	cfg PriorityPropertyConfig
	log *logger.Logger
}

// NewPriorityPropertyFilter creates the filter. An empty key selects
// DefaultPriorityKey.
func NewPriorityPropertyFilter(cfg PriorityPropertyConfig, log *logger.Logger) *PriorityPropertyFilter {
	if cfg.Key == "" {
		cfg.Key = DefaultPriorityKey
	}
	return &PriorityPropertyFilter{cfg: cfg, log: logger.OrNop(log).WithComponent("priority-property-filter")}
}

func (f *PriorityPropertyFilter) Name() string           { return "priority-property" }
func (f *PriorityPropertyFilter) Order() int             { return PriorityPropertyOrder }
func (f *PriorityPropertyFilter) Enabled() bool          { return f.cfg.Enabled }
func (f *PriorityPropertyFilter) IsGroupingFilter() bool { return true }
func (f *PriorityPropertyFilter) EmptyData() any         { return registry.InstanceMap{} }

func (f *PriorityPropertyFilter) Discovery(ctx *discovery.Context, parent *discovery.Node) *discovery.Node {
	return discovery.DiscoverChild(ctx, parent, f)
}

// Init builds one child per property value. Instances without the property
// land in the "" group.
func (f *PriorityPropertyFilter) Init(_ *discovery.Context, parent *discovery.Node) {
	in := discovery.DataAs[registry.InstanceMap](parent)
	groups := make(map[string]registry.InstanceMap)
	for id, inst := range in {
		value := inst.Properties[f.cfg.Key]
		if groups[value] == nil {
			groups[value] = make(registry.InstanceMap)
		}
		groups[value][id] = inst
	}
	for value, group := range groups {
		parent.PutChild(value, parent.Derive(group))
	}
	parent.PutChild(AllInstances, parent.Derive(in))
}

// FindChildName starts from the most specific existing group on the first
// call of an invocation and steps one level less specific on every rerun.
// A rerun point is pushed while a less specific group remains.
func (f *PriorityPropertyFilter) FindChildName(ctx *discovery.Context, parent *discovery.Node) string {
	var value string
	if current, ok := ctx.Param(f.paramKey()); ok {
		value = lowerPriority(current.(string))
	} else {
		value = f.initialValue(ctx)
		for value != "" && parent.Child(value) == nil {
			value = lowerPriority(value)
		}
	}
	ctx.SetParam(f.paramKey(), value)
	ctx.Logger().Debug("priority property selected", map[string]interface{}{
		"key":   f.cfg.Key,
		"value": value,
	})
	if value != "" {
		ctx.PushRerunFilter(parent)
	}
	return value
}

func (f *PriorityPropertyFilter) initialValue(ctx *discovery.Context) string {
	if v, ok := ctx.Input("x-" + f.cfg.Key); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return f.cfg.Value
}

func (f *PriorityPropertyFilter) paramKey() string {
	return "priority-property:" + f.cfg.Key
}

func lowerPriority(value string) string {
	if i := strings.LastIndex(value, prioritySeparator); i >= 0 {
		return value[:i]
	}
	return ""
}
