package filter

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kbukum/gokit-discovery/discovery"
	"github.com/kbukum/gokit-discovery/event"
	"github.com/kbukum/gokit-discovery/logger"
	"github.com/kbukum/gokit-discovery/registry"
)

// IsolationOrder positions the isolation filter between the version rule and
// endpoint filters.
const IsolationOrder = 500

const epochPrefix = "epoch-"

// IsolationConfig configures the isolation filter.
type IsolationConfig struct {
	Enabled bool `mapstructure:"enabled" json:"enabled"`
	// EmptyProtection returns the unfiltered set when every instance is
	// isolated.
	EmptyProtection bool `mapstructure:"empty_protection" json:"empty_protection"`
}

// IsolationFilter removes temporarily isolated instances from the set.
// Isolation records expire lazily on access. Every change to the table bumps
// an epoch, and each parent node keeps a single child for the current epoch.
type IsolationFilter struct {
	cfg IsolationConfig
	log *logger.Logger
	now func() time.Time

	mu       sync.Mutex
	isolated map[string]time.Time
	epoch    int64

	unsubscribe func()
}

// IsolationOption configures an IsolationFilter.
type IsolationOption func(*IsolationFilter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) IsolationOption {
	return func(f *IsolationFilter) { f.now = now }
}

// NewIsolationFilter creates the filter and subscribes it to bus when bus is
// not nil.
func NewIsolationFilter(cfg IsolationConfig, bus *event.Bus, log *logger.Logger, opts ...IsolationOption) *IsolationFilter {
	f := &IsolationFilter{
		cfg:      cfg,
		log:      logger.OrNop(log).WithComponent("isolation-filter"),
		now:      time.Now,
		isolated: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(f)
	}
	if bus != nil {
		f.unsubscribe = bus.OnInstanceIsolated(f.OnInstanceIsolated)
	}
	return f
}

func (f *IsolationFilter) Name() string           { return "isolation" }
func (f *IsolationFilter) Order() int             { return IsolationOrder }
func (f *IsolationFilter) Enabled() bool          { return f.cfg.Enabled }
func (f *IsolationFilter) IsGroupingFilter() bool { return false }

// OnInstanceIsolated records an isolation. An existing longer isolation is
// kept.
func (f *IsolationFilter) OnInstanceIsolated(ev event.InstanceIsolatedEvent) {
	if ev.InstanceID == "" || ev.Duration <= 0 {
		return
	}
	until := f.now().Add(ev.Duration)

	f.mu.Lock()
	defer f.mu.Unlock()
	if current, ok := f.isolated[ev.InstanceID]; ok && !current.Before(until) {
		return
	}
	f.isolated[ev.InstanceID] = until
	f.epoch++
	f.log.Info("instance isolated", map[string]interface{}{
		logger.FieldInstanceID: ev.InstanceID,
		logger.FieldDuration:   ev.Duration.String(),
	})
}

// Sweep drops expired records and reports how many were removed.
func (f *IsolationFilter) Sweep() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.expireLocked()
}

// Isolated returns the ids isolated at the moment of the call.
func (f *IsolationFilter) Isolated() []string {
	_, set := f.snapshot()
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Epoch returns the current table epoch.
func (f *IsolationFilter) Epoch() int64 {
	epoch, _ := f.snapshot()
	return epoch
}

// Close detaches the filter from the bus.
func (f *IsolationFilter) Close() {
	if f.unsubscribe != nil {
		f.unsubscribe()
	}
}

func (f *IsolationFilter) Discovery(ctx *discovery.Context, parent *discovery.Node) *discovery.Node {
	epoch, isolated := f.snapshot()
	key := epochPrefix + strconv.FormatInt(epoch, 10)

	child, created := parent.ChildOrCreate(key, func() *discovery.Node {
		return parent.Derive(f.subset(ctx, parent, isolated))
	})
	if created {
		parent.PruneChildren(func(k string) bool {
			other, ok := parseEpoch(k)
			return !ok || other >= epoch
		})
	}
	return child
}

// parseEpoch extracts the epoch from a child key. Keys of other filters are
// reported as not epochs.
func parseEpoch(key string) (int64, bool) {
	raw, ok := strings.CutPrefix(key, epochPrefix)
	if !ok {
		return 0, false
	}
	epoch, err := strconv.ParseInt(raw, 10, 64)
	return epoch, err == nil
}

func (f *IsolationFilter) subset(ctx *discovery.Context, parent *discovery.Node, isolated map[string]struct{}) registry.InstanceMap {
	in := discovery.DataAs[registry.InstanceMap](parent)
	if len(isolated) == 0 {
		return in
	}
	out := make(registry.InstanceMap, len(in))
	for id, inst := range in {
		if _, skip := isolated[id]; !skip {
			out[id] = inst
		}
	}
	if len(out) == 0 && len(in) > 0 && f.cfg.EmptyProtection {
		ctx.Logger().Warn("all instances isolated, keeping unfiltered set", map[string]interface{}{
			"instances": len(in),
		})
		return in
	}
	return out
}

func (f *IsolationFilter) snapshot() (int64, map[string]struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expireLocked()
	set := make(map[string]struct{}, len(f.isolated))
	for id := range f.isolated {
		set[id] = struct{}{}
	}
	return f.epoch, set
}

func (f *IsolationFilter) expireLocked() int {
	now := f.now()
	removed := 0
	for id, until := range f.isolated {
		if !now.Before(until) {
			delete(f.isolated, id)
			removed++
		}
	}
	if removed > 0 {
		f.epoch++
	}
	return removed
}
