package cache

import (
	"fmt"

	"github.com/mcoot/pingpong/internal/model"
)

// collection is one mirrored record list plus the bookkeeping that keeps it
// consistent while events and snapshots interleave. Callers hold Cache.mu.
type collection[T any] struct {
	name  model.Collection
	items []T
	// prepend puts new records at the front (matches are newest first)
	prepend bool

	idOf       func(*T) string
	versionOf  func(*T) int64
	setVersion func(*T, int64)
	decode     func(model.ChangeEvent) (*T, error)

	// tombstones remember deletes until the next snapshot so a snapshot
	// fetched before the delete cannot resurrect the record. Outside a load
	// they are capped at maxTombstones, oldest evicted first.
	tombstones map[string]int64
	// touched records ids written by events while a snapshot is in flight
	touched map[string]struct{}
	loading int
}

func (c *collection[T]) index(id string) int {
	for i := range c.items {
		if c.idOf(&c.items[i]) == id {
			return i
		}
	}
	return -1
}

// knownVersion returns the newest version seen for id, live or deleted
func (c *collection[T]) knownVersion(id string) (int64, bool) {
	var known int64
	found := false
	if i := c.index(id); i >= 0 {
		known = c.versionOf(&c.items[i])
		found = true
	}
	if ts, ok := c.tombstones[id]; ok {
		if !found || ts > known {
			known = ts
		}
		found = true
	}
	return known, found
}

func (c *collection[T]) upsert(item T) {
	id := c.idOf(&item)
	if i := c.index(id); i >= 0 {
		c.items[i] = item
		return
	}
	if c.prepend {
		c.items = append([]T{item}, c.items...)
		return
	}
	c.items = append(c.items, item)
}

func (c *collection[T]) remove(id string) bool {
	i := c.index(id)
	if i < 0 {
		return false
	}
	c.items = append(c.items[:i], c.items[i+1:]...)
	return true
}

// maxTombstones bounds the deletes remembered between snapshots
const maxTombstones = 1024

// pruneTombstones evicts the oldest tombstones beyond maxTombstones. A load
// in flight needs every tombstone to filter its snapshot, so nothing is
// evicted until it ends.
func (c *collection[T]) pruneTombstones() {
	if c.loading > 0 {
		return
	}
	for len(c.tombstones) > maxTombstones {
		oldestID := ""
		var oldest int64
		for id, seq := range c.tombstones {
			if oldestID == "" || seq < oldest || (seq == oldest && id < oldestID) {
				oldestID, oldest = id, seq
			}
		}
		delete(c.tombstones, oldestID)
	}
}

// result of applying one event
type applyResult int

const (
	resultApplied applyResult = iota
	resultStale
	resultNoop
)

// apply patches the collection with one change event
func (c *collection[T]) apply(ev model.ChangeEvent) (applyResult, error) {
	id, err := ev.RecordID()
	if err != nil {
		return resultNoop, err
	}

	if ev.Seq != 0 {
		if known, ok := c.knownVersion(id); ok && ev.Seq <= known {
			return resultStale, nil
		}
	}
	if c.loading > 0 {
		c.touched[id] = struct{}{}
	}

	switch ev.Kind {
	case model.ChangeInsert, model.ChangeUpdate:
		item, err := c.decode(ev)
		if err != nil {
			return resultNoop, err
		}
		if ev.Seq != 0 {
			c.setVersion(item, ev.Seq)
		}
		delete(c.tombstones, id)
		c.upsert(*item)
		return resultApplied, nil

	case model.ChangeDelete:
		c.tombstones[id] = ev.Seq
		c.pruneTombstones()
		if !c.remove(id) {
			return resultNoop, nil
		}
		return resultApplied, nil
	}
	return resultNoop, fmt.Errorf("%w: unknown kind %q", model.ErrMalformedEvent, ev.Kind)
}

// beginLoad marks a snapshot fetch as in flight
func (c *collection[T]) beginLoad() {
	c.loading++
}

// endLoad finishes a fetch; rows is nil when the fetch failed
func (c *collection[T]) endLoad(rows []T, ok bool) {
	if ok {
		c.merge(rows)
	}
	if c.loading > 0 {
		c.loading--
	}
	if c.loading == 0 {
		c.touched = make(map[string]struct{})
		if ok {
			c.tombstones = make(map[string]int64)
		} else {
			c.pruneTombstones()
		}
	}
}

// merge replaces the items with a snapshot, keeping anything the snapshot
// is too old to know about
func (c *collection[T]) merge(rows []T) {
	current := make(map[string]int, len(c.items))
	for i := range c.items {
		current[c.idOf(&c.items[i])] = i
	}

	merged := make([]T, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))
	for i := range rows {
		row := rows[i]
		id := c.idOf(&row)
		if _, dup := seen[id]; dup {
			continue
		}
		if ts, deleted := c.tombstones[id]; deleted && (ts == 0 || c.versionOf(&row) <= ts) {
			continue
		}
		seen[id] = struct{}{}
		if j, ok := current[id]; ok && c.versionOf(&c.items[j]) > c.versionOf(&row) {
			merged = append(merged, c.items[j])
			continue
		}
		merged = append(merged, row)
	}

	var extra []T
	for i := range c.items {
		id := c.idOf(&c.items[i])
		if _, ok := seen[id]; ok {
			continue
		}
		if _, ok := c.touched[id]; ok {
			extra = append(extra, c.items[i])
		}
	}

	if c.prepend {
		c.items = append(extra, merged...)
	} else {
		c.items = append(merged, extra...)
	}
}

// snapshot returns a copy of the items
func (c *collection[T]) snapshot() []T {
	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

func newPlayers() collection[model.Player] {
	return collection[model.Player]{
		name:       model.CollectionPlayers,
		idOf:       func(p *model.Player) string { return string(p.ID) },
		versionOf:  func(p *model.Player) int64 { return p.Version },
		setVersion: func(p *model.Player, v int64) { p.Version = v },
		decode:     func(ev model.ChangeEvent) (*model.Player, error) { return ev.DecodePlayer() },
		tombstones: make(map[string]int64),
		touched:    make(map[string]struct{}),
	}
}

func newMatches() collection[model.Match] {
	return collection[model.Match]{
		name:       model.CollectionMatches,
		prepend:    true,
		idOf:       func(m *model.Match) string { return string(m.ID) },
		versionOf:  func(m *model.Match) int64 { return m.Version },
		setVersion: func(m *model.Match, v int64) { m.Version = v },
		decode:     func(ev model.ChangeEvent) (*model.Match, error) { return ev.DecodeMatch() },
		tombstones: make(map[string]int64),
		touched:    make(map[string]struct{}),
	}
}
