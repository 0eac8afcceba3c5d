package discovery

import (
	"sort"
	"sync"
	"time"

	"github.com/kbukum/gokit-discovery/logger"
	"github.com/kbukum/gokit-discovery/version"
)

// Source produces the versioned input a Tree folds over.
type Source interface {
	VersionedCache(appID, serviceName, versionRule string) (*VersionedCache, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(appID, serviceName, versionRule string) (*VersionedCache, error)

func (f SourceFunc) VersionedCache(appID, serviceName, versionRule string) (*VersionedCache, error) {
	return f(appID, serviceName, versionRule)
}

// Recorder receives per-invocation measurements.
type Recorder interface {
	RecordDiscovery(appID, serviceName string, empty bool, elapsed time.Duration)
}

// Option configures a Tree.
type Option func(*Tree)

// WithRecorder attaches a measurement sink.
func WithRecorder(r Recorder) Option {
	return func(t *Tree) { t.recorder = r }
}

// WithRuleCache canonicalises version rules through rules instead of the
// process-wide cache. Pass the cache the Source parses with.
func WithRuleCache(rules *version.RuleCache) Option {
	return func(t *Tree) { t.rules = rules.GetOrCreate }
}

type rootKey struct {
	appID       string
	serviceName string
	inputName   string
}

// Tree memoises filter results per input cache version.
type Tree struct {
	source   Source
	log      *logger.Logger
	recorder Recorder
	rules    func(raw string) (version.Rule, error)

	filterMu sync.RWMutex
	filters  []Filter

	rootMu sync.RWMutex
	roots  map[rootKey]*Node
}

// NewTree creates a tree over source with the given filters.
func NewTree(source Source, log *logger.Logger, filters []Filter, opts ...Option) *Tree {
	t := &Tree{
		source: source,
		log:    logger.OrNop(log).WithComponent("discovery-tree"),
		roots:  make(map[rootKey]*Node),
		rules:  version.GetOrCreateRule,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.SetFilters(filters...)
	return t
}

// SetFilters replaces the pipeline. Filters are sorted by Order; equal orders
// keep their relative position. Existing roots are dropped.
func (t *Tree) SetFilters(filters ...Filter) {
	sorted := append([]Filter(nil), filters...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order() < sorted[j].Order() })

	t.filterMu.Lock()
	t.filters = sorted
	t.filterMu.Unlock()

	t.rootMu.Lock()
	t.roots = make(map[rootKey]*Node)
	t.rootMu.Unlock()
}

// Filters returns the sorted pipeline.
func (t *Tree) Filters() []Filter {
	t.filterMu.RLock()
	defer t.filterMu.RUnlock()
	return append([]Filter(nil), t.filters...)
}

// Discovery resolves the candidate node for the service. Only configuration
// errors are returned; missing data yields an empty node.
func (t *Tree) Discovery(ctx *Context, appID, serviceName, versionRule string) (*Node, error) {
	versionRule = t.canonicalRule(versionRule)
	input, err := t.source.VersionedCache(appID, serviceName, versionRule)
	if err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = NewContext()
	}
	ctx.bind(t.log, appID, serviceName, versionRule)
	return t.DiscoveryFrom(ctx, appID, serviceName, input), nil
}

// canonicalRule maps every spelling of a rule to its Raw form so that
// children keyed by the rule are shared. Unparsable rules are left to the
// Source to reject.
func (t *Tree) canonicalRule(raw string) string {
	rule, err := t.rules(raw)
	if err != nil {
		return raw
	}
	return rule.Raw()
}

// DiscoveryFrom runs the pipeline over an explicit input.
func (t *Tree) DiscoveryFrom(ctx *Context, appID, serviceName string, input *VersionedCache) *Node {
	start := time.Now()
	if ctx.log == nil {
		ctx.bind(t.log, appID, serviceName, ctx.VersionRule)
	}

	root := t.root(rootKey{appID: appID, serviceName: serviceName, inputName: input.Name()}, input)
	parent, _ := root.ChildOrCreate(input.Name(), func() *Node { return NewNodeFromCache(input) })

	result := t.run(ctx, parent)
	if t.recorder != nil {
		t.recorder.RecordDiscovery(appID, serviceName, result.IsEmpty(), time.Since(start))
	}
	return result
}

// root returns the stored root for key when it matches input, replaces it
// when input is newer, and returns an unstored temporary root when input is
// older than the stored one.
func (t *Tree) root(key rootKey, input *VersionedCache) *Node {
	t.rootMu.RLock()
	current := t.roots[key]
	t.rootMu.RUnlock()

	if current != nil {
		if current.IsSameVersion(input) {
			return current
		}
		if input.IsExpired(&current.VersionedCache) {
			return newRoot(input.CacheVersion())
		}
	}

	t.rootMu.Lock()
	defer t.rootMu.Unlock()
	current = t.roots[key]
	if current != nil {
		if current.IsSameVersion(input) {
			return current
		}
		if input.IsExpired(&current.VersionedCache) {
			return newRoot(input.CacheVersion())
		}
	}
	current = newRoot(input.CacheVersion())
	t.roots[key] = current
	return current
}

func (t *Tree) run(ctx *Context, parent *Node) *Node {
	filters := t.Filters()
	for idx := 0; idx < len(filters); {
		f := filters[idx]
		if !f.Enabled() {
			idx++
			continue
		}

		ctx.current = parent
		child := f.Discovery(ctx, parent)
		if child == nil {
			ctx.Logger().Error("filter returned no node", map[string]interface{}{logger.FieldFilter: f.Name()})
			child = parent.Derive(nil)
		}
		child.setLevel(idx + 1)

		if child.IsEmpty() {
			if rerun := ctx.PopRerunFilter(); rerun != nil {
				parent = rerun
				idx = rerun.Level()
				continue
			}
		}

		parent = child
		idx++
	}
	return parent
}
