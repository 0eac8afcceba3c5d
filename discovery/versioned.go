package discovery

import (
	"reflect"
	"sync/atomic"
)

var cacheVersionSeq atomic.Int64

// NextCacheVersion returns the next value of the process-wide cache version
// counter. Values are strictly increasing.
func NextCacheVersion() int64 {
	return cacheVersionSeq.Add(1)
}

// VersionedCache is an immutable named payload stamped with a cache version.
// A larger cache version always denotes newer data.
type VersionedCache struct {
	name         string
	data         any
	cacheVersion int64
}

// NewVersionedCache stamps data with a fresh cache version.
func NewVersionedCache(name string, data any) *VersionedCache {
	return &VersionedCache{name: name, data: data, cacheVersion: NextCacheVersion()}
}

func (c *VersionedCache) Name() string        { return c.name }
func (c *VersionedCache) Data() any           { return c.data }
func (c *VersionedCache) CacheVersion() int64 { return c.cacheVersion }

// IsSameVersion reports whether other carries the same cache version.
func (c *VersionedCache) IsSameVersion(other *VersionedCache) bool {
	return other != nil && c.cacheVersion == other.cacheVersion
}

// IsExpired reports whether other is newer than c.
func (c *VersionedCache) IsExpired(other *VersionedCache) bool {
	return other != nil && c.cacheVersion < other.cacheVersion
}

// Len returns the number of elements in the payload. Collections report their
// length, nil reports zero and any other value counts as one element.
func (c *VersionedCache) Len() int {
	return dataLen(c.data)
}

// IsEmpty reports whether the payload holds no elements.
func (c *VersionedCache) IsEmpty() bool {
	return c.Len() == 0
}

type lener interface{ Len() int }

func dataLen(data any) int {
	if data == nil {
		return 0
	}
	if l, ok := data.(lener); ok {
		return l.Len()
	}
	v := reflect.ValueOf(data)
	switch v.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array, reflect.String, reflect.Chan:
		return v.Len()
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return 0
		}
	}
	return 1
}
