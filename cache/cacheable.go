package cache

import "strings"

// Cacheable is implemented by every payload a Manager stores.
type Cacheable interface {
	CacheKey() string
}

// GroupCacheable is implemented by payloads that belong to a named group.
// Payloads without it live in the manager's default group.
type GroupCacheable interface {
	Cacheable
	GroupKey() string
}

// CompoundKeyCacheable is implemented by payloads addressable through
// secondary keys in addition to CacheKey. Every member of a group must
// report the same index names in the same order.
type CompoundKeyCacheable interface {
	Cacheable
	SecondaryKeys() []IndexKey
}

// IndexKey is one secondary key of a payload, tagged with the index it
// belongs to.
type IndexKey struct {
	Index string
	Key   string
}

// descriptor is the payload capability resolved once at registration.
type descriptor struct {
	grouped   bool
	group     string
	secondary []IndexKey
}

func describe[V Cacheable](v V) descriptor {
	var d descriptor
	if gc, ok := any(v).(GroupCacheable); ok {
		d.grouped = true
		d.group = gc.GroupKey()
	}
	if ck, ok := any(v).(CompoundKeyCacheable); ok {
		keys := ck.SecondaryKeys()
		d.secondary = make([]IndexKey, len(keys))
		copy(d.secondary, keys)
	}
	return d
}

func (d descriptor) id() groupID {
	if !d.grouped {
		return groupID{}
	}
	return groupID{key: d.group, scoped: true}
}

func (d descriptor) indexNames() []string {
	if len(d.secondary) == 0 {
		return nil
	}
	names := make([]string, len(d.secondary))
	for i, k := range d.secondary {
		names[i] = k.Index
	}
	return names
}

// groupID identifies a group. The zero value is the default group, which
// can never collide with a caller group key, including "".
type groupID struct {
	key    string
	scoped bool
}

func scopedGroup(key string) groupID {
	return groupID{key: key, scoped: true}
}

func (id groupID) String() string {
	if !id.scoped {
		return "<default>"
	}
	return id.key
}

func formatIndexes(names []string) string {
	if len(names) == 0 {
		return "[]"
	}
	return "[" + strings.Join(names, ",") + "]"
}
