package cache

import (
	"fmt"
	"slices"
	"time"

	"github.com/c360/semcache/errors"
)

// Group holds the members of one group: a primary map plus an ordered list
// of named secondary indexes. Index 0 is searched first.
//
// Group is not safe for concurrent use; the owning Manager guards it.
type Group[V Cacheable] struct {
	id      groupID
	atomic  bool
	members map[string]*entry[V]
	indexes []secondaryIndex[V]
	hits    int64
}

type secondaryIndex[V Cacheable] struct {
	name    string
	entries map[string]*entry[V]
}

func newGroup[V Cacheable](id groupID, atomic bool) *Group[V] {
	return &Group[V]{
		id:      id,
		atomic:  atomic,
		members: make(map[string]*entry[V]),
	}
}

// Key returns the group key, "" for the default group.
func (g *Group[V]) Key() string { return g.id.key }

// Scoped reports whether this is a named group rather than the default group.
func (g *Group[V]) Scoped() bool { return g.id.scoped }

// Atomic reports whether the group is evicted as a unit.
func (g *Group[V]) Atomic() bool { return g.atomic }

// Hits returns how many times the group was read as a whole or through a member.
func (g *Group[V]) Hits() int64 { return g.hits }

// Size returns the number of members.
func (g *Group[V]) Size() int { return len(g.members) }

// Members returns a snapshot of the members.
func (g *Group[V]) Members() []EntryView {
	out := make([]EntryView, 0, len(g.members))
	for _, e := range g.members {
		out = append(out, e)
	}
	return out
}

// Remove deletes the member addressed by key, which may be a primary or a
// secondary key.
func (g *Group[V]) Remove(key string) bool {
	e := g.get(key)
	if e == nil {
		return false
	}
	g.drop(e)
	return true
}

func (g *Group[V]) indexNames() []string {
	if len(g.indexes) == 0 {
		return nil
	}
	names := make([]string, len(g.indexes))
	for i, idx := range g.indexes {
		names[i] = idx.name
	}
	return names
}

// check validates that e may join the group without inserting it.
func (g *Group[V]) check(e *entry[V]) error {
	if id := e.desc.id(); id != g.id {
		return errors.WrapInvalid(errors.ErrMixedGroups, "Group", "add",
			fmt.Sprintf("entity %q declares group %s, group is %s", e.key, id, g.id))
	}
	if _, replacing := g.members[e.key]; g.Size() == 0 || (replacing && g.Size() == 1) {
		return nil
	}
	if want, got := g.indexNames(), e.desc.indexNames(); !slices.Equal(want, got) {
		return errors.WrapInvalid(errors.ErrIndexMismatch, "Group", "add",
			fmt.Sprintf("entity %q has indexes %s, group %s has %s",
				e.key, formatIndexes(got), g.id, formatIndexes(want)))
	}
	return nil
}

func (g *Group[V]) add(e *entry[V]) error {
	if err := g.check(e); err != nil {
		return err
	}

	if old, ok := g.members[e.key]; ok {
		g.drop(old)
	}
	if g.Size() == 0 {
		g.indexes = nil
		for _, k := range e.desc.secondary {
			g.indexes = append(g.indexes, secondaryIndex[V]{
				name:    k.Index,
				entries: make(map[string]*entry[V]),
			})
		}
	}

	g.members[e.key] = e
	for i, k := range e.desc.secondary {
		g.indexes[i].entries[k.Key] = e
	}
	return nil
}

func (g *Group[V]) get(key string) *entry[V] {
	if e, ok := g.members[key]; ok {
		return e
	}
	for _, idx := range g.indexes {
		if e, ok := idx.entries[key]; ok {
			return e
		}
	}
	return nil
}

// drop removes e from the primary map and from every index entry that
// still points at it.
func (g *Group[V]) drop(e *entry[V]) {
	delete(g.members, e.key)
	for i, k := range e.desc.secondary {
		if i >= len(g.indexes) {
			break
		}
		if g.indexes[i].entries[k.Key] == e {
			delete(g.indexes[i].entries, k.Key)
		}
	}
}

// extract returns every payload, touching each member as a hit.
func (g *Group[V]) extract(now time.Time) []V {
	out := make([]V, 0, len(g.members))
	for _, e := range g.members {
		e.touch(now)
		out = append(out, e.payload)
	}
	return out
}

func (g *Group[V]) payloads() []V {
	out := make([]V, 0, len(g.members))
	for _, e := range g.members {
		out = append(out, e.payload)
	}
	return out
}
