// Package cache holds the in-memory, ordered view of one entity kind together
// with the sync status of every entry.
package cache

import (
	"reflect"
	"sort"
	"sync"

	"tableflip.dev/taskpad/pkg/entity"
)

// ChangeType enumerates the mutations reported on the event channel.
type ChangeType string

const (
	ChangeCreate ChangeType = "create"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// Change describes one cache mutation. PreviousID is set when a placeholder
// entry was rekeyed to its server id.
type Change struct {
	Action     ChangeType
	ID         string
	PreviousID string
}

// Action is the local operation an item's status refers to.
type Action string

const (
	ActionNone   Action = ""
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Item is a cached entity annotated with its sync state.
type Item[E any] struct {
	Entity   E
	Status   entity.SyncStatus
	Error    string
	Deleting bool
	Action   Action
}

// Failed reports whether the item never reached the remote store.
func (i Item[E]) Failed() bool {
	return i.Status == entity.StatusError && i.Action == ActionCreate
}

// Order selects how List sorts entries.
type Order int

const (
	// NewestFirst sorts by descending creation time (tasks, notes).
	NewestFirst Order = iota
	// OldestFirst sorts by ascending creation time (lists).
	OldestFirst
)

type entry[E any] struct {
	item Item[E]
	seq  uint64
}

// Cache is safe for concurrent use. It never blocks on its subscribers:
// change events are dropped for a subscriber whose channel is full.
type Cache[E entity.Record[E]] struct {
	order Order

	mu      sync.RWMutex
	entries map[string]*entry[E]
	seq     uint64

	subs    map[int]chan Change
	nextSub int
}

// eventBuffer is the channel size of each subscription.
const eventBuffer = 64

// New creates an empty cache.
func New[E entity.Record[E]](order Order) *Cache[E] {
	return &Cache[E]{
		order:   order,
		entries: make(map[string]*entry[E]),
		subs:    map[int]chan Change{},
	}
}

// Subscribe returns a channel carrying every change made after the call.
// cancel closes the channel.
func (c *Cache[E]) Subscribe() (<-chan Change, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	ch := make(chan Change, eventBuffer)
	c.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.subs, id)
			close(ch)
		})
	}
}

// List returns every cached item in display order.
func (c *Cache[E]) List() []Item[E] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sortedLocked(nil)
}

// Visible hides items whose create failed; they are about to be evicted.
func (c *Cache[E]) Visible() []Item[E] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sortedLocked(func(i Item[E]) bool { return !i.Failed() })
}

func (c *Cache[E]) Get(id string) (Item[E], bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id]
	if !ok {
		return Item[E]{}, false
	}
	return e.item, true
}

func (c *Cache[E]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Upsert replaces or inserts by id.
func (c *Cache[E]) Upsert(item Item[E]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := item.Entity.Key()
	if e, ok := c.entries[id]; ok {
		e.item = item
		c.emit(Change{Action: ChangeUpdate, ID: id})
		return
	}
	c.insertLocked(item)
	c.emit(Change{Action: ChangeCreate, ID: id})
}

// Update applies fn to the cached item and reports whether it existed.
func (c *Cache[E]) Update(id string, fn func(Item[E]) Item[E]) (Item[E], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		return Item[E]{}, false
	}
	e.item = fn(e.item)
	c.emit(Change{Action: ChangeUpdate, ID: id})
	return e.item, true
}

// Remove deletes by id. Removing a missing id is a no-op.
func (c *Cache[E]) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[id]; !ok {
		return
	}
	delete(c.entries, id)
	c.emit(Change{Action: ChangeDelete, ID: id})
}

// Rekey replaces the entry stored under oldID with item, stored under its own
// id, keeping the original position. If an entry already exists under the
// new id it is overwritten so the entity is never duplicated.
func (c *Cache[E]) Rekey(oldID string, item Item[E]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	newID := item.Entity.Key()
	old, ok := c.entries[oldID]
	if !ok {
		if e, exists := c.entries[newID]; exists {
			e.item = item
			c.emit(Change{Action: ChangeUpdate, ID: newID})
			return
		}
		c.insertLocked(item)
		c.emit(Change{Action: ChangeCreate, ID: newID})
		return
	}
	delete(c.entries, oldID)
	c.entries[newID] = &entry[E]{item: item, seq: old.seq}
	c.emit(Change{Action: ChangeUpdate, ID: newID, PreviousID: oldID})
}

// Replace swaps the whole content for items and reports the differences as
// change events.
func (c *Cache[E]) Replace(items []Item[E]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := make(map[string]*entry[E], len(items))
	for _, item := range items {
		id := item.Entity.Key()
		if prev, ok := c.entries[id]; ok {
			next[id] = &entry[E]{item: item, seq: prev.seq}
			if !reflect.DeepEqual(prev.item, item) {
				c.emit(Change{Action: ChangeUpdate, ID: id})
			}
			continue
		}
		c.seq++
		next[id] = &entry[E]{item: item, seq: c.seq}
		c.emit(Change{Action: ChangeCreate, ID: id})
	}
	for id := range c.entries {
		if _, ok := next[id]; !ok {
			c.emit(Change{Action: ChangeDelete, ID: id})
		}
	}
	c.entries = next
}

func (c *Cache[E]) insertLocked(item Item[E]) {
	c.seq++
	c.entries[item.Entity.Key()] = &entry[E]{item: item, seq: c.seq}
}

func (c *Cache[E]) sortedLocked(keep func(Item[E]) bool) []Item[E] {
	list := make([]*entry[E], 0, len(c.entries))
	for _, e := range c.entries {
		if keep != nil && !keep(e.item) {
			continue
		}
		list = append(list, e)
	}
	sort.Slice(list, func(i, j int) bool {
		a, b := list[i], list[j]
		ca, cb := a.item.Entity.Created(), b.item.Entity.Created()
		if c.order == OldestFirst {
			if !ca.Equal(cb) {
				return ca.Before(cb)
			}
			return a.seq < b.seq
		}
		if !ca.Equal(cb) {
			return ca.After(cb)
		}
		return a.seq > b.seq
	})
	out := make([]Item[E], len(list))
	for i, e := range list {
		out[i] = e.item
	}
	return out
}

// emit is called with c.mu held.
func (c *Cache[E]) emit(change Change) {
	for _, ch := range c.subs {
		select {
		case ch <- change:
		default:
		}
	}
}
