package version

import (
	"fmt"
	"strings"
)

// Kind identifies the family of a Rule.
type Kind int

const (
	KindExact Kind = iota
	KindRange
	KindAtLeast
	KindLatest
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindExact:
		return "exact"
	case KindRange:
		return "range"
	case KindAtLeast:
		return "at-least"
	case KindLatest:
		return "latest"
	default:
		return "unknown"
	}
}

const (
	// LatestKeyword selects only the highest known version.
	LatestKeyword = "latest"
	// RuleAll accepts every version.
	RuleAll = "0.0.0+"
)

// Rule is an immutable predicate over versions. Raw is the cache key.
type Rule interface {
	Raw() string
	Kind() Kind
	// Match reports whether v is acceptable. latest is the highest version
	// currently known for the service and is only consulted by latest rules.
	Match(v, latest Version) bool
}

type exactRule struct {
	raw    string
	target Version
}

func (r exactRule) Raw() string             { return r.raw }
func (r exactRule) Kind() Kind              { return KindExact }
func (r exactRule) Match(v, _ Version) bool { return v.Equal(r.target) }
func (r exactRule) String() string          { return r.raw }

type rangeRule struct {
	raw  string
	from Version
	to   Version
}

func (r rangeRule) Raw() string { return r.raw }
func (r rangeRule) Kind() Kind  { return KindRange }

// Match is true iff from <= v < to.
func (r rangeRule) Match(v, _ Version) bool {
	return !v.Less(r.from) && v.Less(r.to)
}
func (r rangeRule) String() string { return r.raw }

type atLeastRule struct {
	raw  string
	from Version
}

func (r atLeastRule) Raw() string             { return r.raw }
func (r atLeastRule) Kind() Kind              { return KindAtLeast }
func (r atLeastRule) Match(v, _ Version) bool { return !v.Less(r.from) }
func (r atLeastRule) String() string          { return r.raw }

type latestRule struct {
	raw string
}

func (r latestRule) Raw() string                  { return r.raw }
func (r latestRule) Kind() Kind                   { return KindLatest }
func (r latestRule) Match(v, latest Version) bool { return v.Equal(latest) }
func (r latestRule) String() string               { return r.raw }

// Bounds exposes the range of a range rule.
func Bounds(r Rule) (from, to Version, ok bool) {
	rr, ok := r.(rangeRule)
	if !ok {
		return Zero, Zero, false
	}
	return rr.from, rr.to, true
}

// Describe renders a rule for logs, e.g. "range[1.0.0,2.0.0)".
func Describe(r Rule) string {
	switch rr := r.(type) {
	case rangeRule:
		return fmt.Sprintf("range[%s,%s)", rr.from, rr.to)
	case atLeastRule:
		return fmt.Sprintf("at-least[%s,inf)", rr.from)
	case exactRule:
		return "exact[" + rr.target.String() + "]"
	case latestRule:
		return LatestKeyword
	default:
		return strings.TrimSpace(r.Raw())
	}
}
