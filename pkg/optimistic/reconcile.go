package optimistic

import (
	"context"
	"errors"
	"fmt"

	"tableflip.dev/taskpad/pkg/cache"
	"tableflip.dev/taskpad/pkg/entity"
	"tableflip.dev/taskpad/pkg/remote"
)

// Start seeds an empty cache from the mirror, then follows the remote store:
// through a subscription when the store pushes changes, otherwise with one
// Refresh.
func (m *Mutator[E, P]) Start(ctx context.Context) error {
	if m.cache.Len() == 0 {
		m.seed()
	}
	if sub, ok := m.store.(remote.Subscriber[E]); ok {
		unsubscribe, err := sub.Subscribe(m.ctx, m.owner, m.apply)
		if err == nil {
			m.mu.Lock()
			if m.closed {
				m.mu.Unlock()
				unsubscribe()
				return ErrClosed
			}
			m.unsubscribe = unsubscribe
			m.mu.Unlock()
			return nil
		}
		m.log.Warn("subscription unavailable, falling back to list", "error", err)
	}
	return m.Refresh(ctx)
}

// Refresh lists the remote store and reconciles the cache. Entities with
// local operations still queued or running keep their local state;
// everything else, including unconfirmed failed edits, is replaced by the
// remote copy.
func (m *Mutator[E, P]) Refresh(ctx context.Context) error {
	var items []E
	err := m.call(ctx, "list", func(ctx context.Context) error {
		var err error
		items, err = m.store.List(ctx, m.owner)
		return err
	})
	if err != nil {
		return fmt.Errorf("optimistic: list %s: %w", m.kind, err)
	}
	m.apply(items)
	return nil
}

func (m *Mutator[E, P]) seed() {
	if m.opts.Mirror == nil {
		return
	}
	var items []E
	ok, err := m.opts.Mirror.Load(m.owner, m.kind, &items)
	if err != nil {
		m.log.Warn("could not read mirror", "error", err)
		return
	}
	if !ok {
		return
	}
	seeded := make([]cache.Item[E], 0, len(items))
	for _, e := range items {
		seeded = append(seeded, cache.Item[E]{Entity: e, Status: entity.StatusSynced})
	}
	m.cache.Replace(seeded)
	m.log.Debug("seeded cache from mirror", "count", len(seeded))
}

// apply reconciles the cache with a full remote set and rewrites the mirror.
func (m *Mutator[E, P]) apply(items []E) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	local := m.cache.List()
	next := make([]cache.Item[E], 0, len(items)+len(local))
	seen := make(map[string]bool, len(items))
	for _, e := range items {
		id := e.Key()
		seen[id] = true
		if m.busyLocked(id) {
			if current, ok := m.cache.Get(id); ok {
				next = append(next, current)
				continue
			}
		}
		delete(m.errs, id)
		next = append(next, cache.Item[E]{Entity: e, Status: entity.StatusSynced})
	}
	for _, item := range local {
		id := item.Entity.Key()
		if seen[id] {
			continue
		}
		if entity.IsPlaceholder(id) || m.busyLocked(id) {
			next = append(next, item)
		}
	}
	m.cache.Replace(next)
	m.signalLocked()
	m.mu.Unlock()

	if m.opts.Mirror != nil {
		if err := m.opts.Mirror.Save(m.owner, m.kind, items); err != nil {
			m.log.Warn("could not write mirror", "error", err)
		}
	}
}

func (m *Mutator[E, P]) busyLocked(id string) bool {
	if _, ok := m.queued[id]; ok {
		return true
	}
	return m.running[id]
}

// Await blocks until the operations queued or running for id have settled
// and returns the reconciled entity. A failed create returns its error; a
// failed update or delete returns the cached entity with the error. Once a
// delete succeeds the zero value is returned with a nil error.
func (m *Mutator[E, P]) Await(ctx context.Context, id string) (E, error) {
	var zero E
	m.mu.Lock()
	m.waiters[id]++
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		if m.waiters[id]--; m.waiters[id] <= 0 {
			delete(m.waiters, id)
		}
		m.mu.Unlock()
	}()

	waited := false
	for {
		m.mu.Lock()
		if err, ok := m.failed[id]; ok {
			m.mu.Unlock()
			return zero, err
		}
		rid := m.resolveLocked(id)
		busy := m.busyLocked(rid) || (rid != id && m.busyLocked(id))
		if !busy {
			item, ok := m.cache.Get(rid)
			err := m.errs[rid]
			m.mu.Unlock()
			switch {
			case !ok && waited:
				return zero, nil
			case !ok:
				return zero, remote.NotFound(m.kind, id)
			case item.Status == entity.StatusError:
				if err == nil {
					err = errors.New(item.Error)
				}
				return item.Entity, err
			}
			return item.Entity, nil
		}
		changed := m.changed
		m.mu.Unlock()
		waited = true

		select {
		case <-changed:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}
