package version

import (
	"math"
	"strconv"
	"strings"

	"github.com/kbukum/gokit-discovery/errors"
)

// Version is an immutable major.minor.patch triple.
type Version struct {
	major uint16
	minor uint16
	patch uint16
}

// Zero is 0.0.0.
var Zero = Version{}

// New builds a Version from its components.
func New(major, minor, patch uint16) Version {
	return Version{major: major, minor: minor, patch: patch}
}

// Parse parses "1", "1.2" or "1.2.3". Missing components default to 0.
func Parse(s string) (Version, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Zero, errors.InvalidVersion(s, "empty version")
	}

	parts := strings.Split(raw, ".")
	if len(parts) > 3 {
		return Zero, errors.InvalidVersion(s, "at most 3 components are allowed")
	}

	var comps [3]uint16
	for i, p := range parts {
		if p == "" {
			return Zero, errors.InvalidVersion(s, "empty component")
		}
		for _, r := range p {
			if r < '0' || r > '9' {
				return Zero, errors.InvalidVersion(s, "components must be non-negative integers")
			}
		}
		n, err := strconv.ParseUint(p, 10, 64)
		if err != nil || n > math.MaxUint16 {
			return Zero, errors.InvalidVersion(s, "component out of range")
		}
		comps[i] = uint16(n)
	}
	return Version{major: comps[0], minor: comps[1], patch: comps[2]}, nil
}

// MustParse is Parse for constants; it panics on malformed input.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Major returns the major component.
func (v Version) Major() uint16 { return v.major }

// Minor returns the minor component.
func (v Version) Minor() uint16 { return v.minor }

// Patch returns the patch component.
func (v Version) Patch() uint16 { return v.patch }

// Packed returns the 48-bit integer the ordering is defined on.
func (v Version) Packed() uint64 {
	return uint64(v.major)<<32 | uint64(v.minor)<<16 | uint64(v.patch)
}

// Compare returns -1, 0 or 1.
func (v Version) Compare(o Version) int {
	a, b := v.Packed(), o.Packed()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Less reports v < o.
func (v Version) Less(o Version) bool { return v.Packed() < o.Packed() }

// Equal reports v == o.
func (v Version) Equal(o Version) bool { return v.Packed() == o.Packed() }

// String renders the canonical three-part form.
func (v Version) String() string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(int(v.major)))
	b.WriteByte('.')
	b.WriteString(strconv.Itoa(int(v.minor)))
	b.WriteByte('.')
	b.WriteString(strconv.Itoa(int(v.patch)))
	return b.String()
}

// Max returns the highest of vs, or false when vs is empty.
func Max(vs ...Version) (Version, bool) {
	if len(vs) == 0 {
		return Zero, false
	}
	m := vs[0]
	for _, v := range vs[1:] {
		if m.Less(v) {
			m = v
		}
	}
	return m, true
}
