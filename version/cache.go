package version

import "sync"

// RuleCache memoises parsed rules by their raw string.
type RuleCache struct {
	parsers []RuleParser
	rules   sync.Map // raw -> Rule
}

// NewRuleCache creates a cache that parses with parsers, or the defaults when none are given.
func NewRuleCache(parsers ...RuleParser) *RuleCache {
	if len(parsers) == 0 {
		parsers = DefaultParsers()
	}
	return &RuleCache{parsers: parsers}
}

// GetOrCreate returns the cached rule for raw, parsing it on first use.
// Parse failures are not cached.
func (c *RuleCache) GetOrCreate(raw string) (Rule, error) {
	if r, ok := c.rules.Load(raw); ok {
		return r.(Rule), nil
	}
	r, err := ParseRuleWith(raw, c.parsers...)
	if err != nil {
		return nil, err
	}
	actual, _ := c.rules.LoadOrStore(raw, r)
	return actual.(Rule), nil
}

var defaultRules = NewRuleCache()

// GetOrCreateRule memoises rules parsed with the default parsers.
func GetOrCreateRule(raw string) (Rule, error) {
	return defaultRules.GetOrCreate(raw)
}
