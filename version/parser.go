package version

import (
	"strings"

	"github.com/kbukum/gokit-discovery/errors"
)

// RuleParser recognises one rule syntax. Parse returns (nil, nil) when raw is
// not in its syntax, and an error when it is but the operands are malformed.
type RuleParser interface {
	Name() string
	Parse(raw string) (Rule, error)
}

// RangeParser parses "from-to".
type RangeParser struct{}

func (RangeParser) Name() string { return "range" }

func (RangeParser) Parse(raw string) (Rule, error) {
	idx := strings.Index(raw, "-")
	if idx < 0 {
		return nil, nil
	}
	from, err := Parse(raw[:idx])
	if err != nil {
		return nil, errors.InvalidVersionRule(raw, "bad lower bound").WithCause(err)
	}
	to, err := Parse(raw[idx+1:])
	if err != nil {
		return nil, errors.InvalidVersionRule(raw, "bad upper bound").WithCause(err)
	}
	if !from.Less(to) {
		return nil, errors.InvalidVersionRule(raw, "lower bound must be below upper bound")
	}
	return rangeRule{raw: raw, from: from, to: to}, nil
}

// AtLeastParser parses "X+".
type AtLeastParser struct{}

func (AtLeastParser) Name() string { return "at-least" }

func (AtLeastParser) Parse(raw string) (Rule, error) {
	if !strings.HasSuffix(raw, "+") {
		return nil, nil
	}
	from, err := Parse(strings.TrimSuffix(raw, "+"))
	if err != nil {
		return nil, errors.InvalidVersionRule(raw, "bad lower bound").WithCause(err)
	}
	return atLeastRule{raw: raw, from: from}, nil
}

// ExactParser parses a plain version.
type ExactParser struct{}

func (ExactParser) Name() string { return "exact" }

func (ExactParser) Parse(raw string) (Rule, error) {
	if raw == "" || !isVersionSyntax(raw) {
		return nil, nil
	}
	v, err := Parse(raw)
	if err != nil {
		return nil, errors.InvalidVersionRule(raw, "bad version").WithCause(err)
	}
	return exactRule{raw: raw, target: v}, nil
}

// LatestParser parses the "latest" keyword.
type LatestParser struct{}

func (LatestParser) Name() string { return "latest" }

func (LatestParser) Parse(raw string) (Rule, error) {
	if raw != LatestKeyword {
		return nil, nil
	}
	return latestRule{raw: raw}, nil
}

// DefaultParsers returns the parsers in priority order.
func DefaultParsers() []RuleParser {
	return []RuleParser{RangeParser{}, AtLeastParser{}, ExactParser{}, LatestParser{}}
}

// ParseRule parses raw with the default parsers.
func ParseRule(raw string) (Rule, error) {
	return ParseRuleWith(raw, DefaultParsers()...)
}

// ParseRuleWith tries parsers in order and returns the first recognised result.
func ParseRuleWith(raw string, parsers ...RuleParser) (Rule, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, errors.InvalidVersionRule(raw, "empty rule")
	}
	for _, p := range parsers {
		r, err := p.Parse(trimmed)
		if err != nil {
			return nil, err
		}
		if r != nil {
			return r, nil
		}
	}
	return nil, errors.InvalidVersionRule(raw, "no parser recognises the syntax")
}

// isVersionSyntax accepts digits and dots only; Parse does the strict check.
func isVersionSyntax(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' {
			return false
		}
	}
	return true
}
