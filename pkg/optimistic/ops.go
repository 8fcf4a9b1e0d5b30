package optimistic

import (
	"context"
	"errors"
	"fmt"

	"github.com/googleapis/gax-go/v2"

	"tableflip.dev/taskpad/pkg/cache"
	"tableflip.dev/taskpad/pkg/entity"
	"tableflip.dev/taskpad/pkg/remote"
	"tableflip.dev/taskpad/pkg/syncq"
)

// begin moves id from queued to running and marks the cached item syncing.
func (m *Mutator[E, P]) begin(id string) (cache.Item[E], bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.queued, id)
	m.running[id] = true
	if entity.IsPlaceholder(id) {
		m.dispatched[id] = true
	}
	return m.cache.Update(id, func(item cache.Item[E]) cache.Item[E] {
		item.Status = entity.StatusSyncing
		return item
	})
}

func (m *Mutator[E, P]) endLocked(id string) {
	delete(m.running, id)
	m.signalLocked()
}

func (m *Mutator[E, P]) createOp(placeholder string) syncq.Op {
	return func(ctx context.Context) error {
		item, ok := m.begin(placeholder)
		if !ok {
			m.mu.Lock()
			m.endLocked(placeholder)
			m.mu.Unlock()
			return nil
		}
		draft := item.Entity

		var created E
		err := m.call(ctx, "create", func(ctx context.Context) error {
			var err error
			created, err = m.store.Create(ctx, draft, m.owner)
			return err
		})

		m.mu.Lock()
		defer m.mu.Unlock()
		defer m.endLocked(placeholder)
		if err != nil {
			m.createFailedLocked(placeholder, err)
			return err
		}
		m.createSucceededLocked(placeholder, created)
		return nil
	}
}

func (m *Mutator[E, P]) createSucceededLocked(placeholder string, created E) {
	serverID := created.Key()
	m.aliases[placeholder] = serverID
	m.retireAliasLocked(placeholder)
	delete(m.dispatched, placeholder)

	item := cache.Item[E]{Entity: created, Status: entity.StatusSynced}
	if action, ok := m.queued[placeholder]; ok {
		m.queue.Cancel(placeholder)
		delete(m.queued, placeholder)
		if patch, ok := m.takePatchLocked(placeholder); ok {
			m.mergePatchLocked(serverID, patch, created)
		}
		switch action {
		case cache.ActionDelete:
			item.Status = entity.StatusPending
			item.Deleting = true
			item.Action = cache.ActionDelete
		case cache.ActionUpdate:
			if patch, ok := m.patches[serverID]; ok {
				item.Entity = patch.Apply(created)
			}
			item.Status = entity.StatusPending
			item.Action = cache.ActionUpdate
		}
		if err := m.enqueueLocked(serverID, action); err != nil {
			m.log.Warn("could not requeue follow-up operation", "id", serverID, "error", err)
		}
	}
	m.cache.Rekey(placeholder, item)
	m.log.Debug("create reconciled", "placeholder", placeholder, "id", serverID)
}

func (m *Mutator[E, P]) createFailedLocked(placeholder string, err error) {
	if _, ok := m.queued[placeholder]; ok {
		m.queue.Cancel(placeholder)
		delete(m.queued, placeholder)
	}
	m.dropPatchLocked(placeholder)
	m.cache.Update(placeholder, func(item cache.Item[E]) cache.Item[E] {
		item.Status = entity.StatusError
		item.Error = err.Error()
		item.Deleting = false
		item.Action = cache.ActionCreate
		return item
	})
	m.log.Warn("create failed", "id", placeholder, "error", err)
	m.failLocked(placeholder, err)
}

func (m *Mutator[E, P]) updateOp(id string) syncq.Op {
	return func(ctx context.Context) error {
		m.begin(id)

		m.mu.Lock()
		patch, ok := m.takePatchLocked(id)
		m.mu.Unlock()
		if !ok {
			m.mu.Lock()
			m.endLocked(id)
			m.mu.Unlock()
			return nil
		}

		var updated E
		err := m.call(ctx, "update", func(ctx context.Context) error {
			var err error
			updated, err = m.store.Update(ctx, id, patch, m.owner)
			return err
		})

		m.mu.Lock()
		defer m.mu.Unlock()
		defer m.endLocked(id)
		if err != nil {
			m.errs[id] = err
			m.cache.Update(id, func(item cache.Item[E]) cache.Item[E] {
				item.Status = entity.StatusError
				item.Error = err.Error()
				item.Action = cache.ActionUpdate
				return item
			})
			m.log.Warn("update failed", "id", id, "error", err)
			return err
		}

		item := cache.Item[E]{Entity: updated, Status: entity.StatusSynced}
		if next, more := m.patches[id]; more {
			item.Entity = next.Apply(updated)
			item.Status = entity.StatusPending
			item.Action = cache.ActionUpdate
		}
		if m.queued[id] == cache.ActionDelete {
			if current, ok := m.cache.Get(id); ok {
				item = current
			}
		}
		if _, ok := m.cache.Get(id); ok {
			m.cache.Upsert(item)
		}
		return nil
	}
}

func (m *Mutator[E, P]) deleteOp(id string) syncq.Op {
	return func(ctx context.Context) error {
		m.begin(id)

		err := m.call(ctx, "delete", func(ctx context.Context) error {
			return m.store.Delete(ctx, id, m.owner)
		})

		m.mu.Lock()
		defer m.mu.Unlock()
		defer m.endLocked(id)
		if err != nil {
			m.errs[id] = err
			m.cache.Update(id, func(item cache.Item[E]) cache.Item[E] {
				item.Deleting = false
				item.Status = entity.StatusError
				item.Error = err.Error()
				item.Action = cache.ActionDelete
				return item
			})
			m.log.Warn("delete failed", "id", id, "error", err)
			return err
		}
		delete(m.errs, id)
		m.dropPatchLocked(id)
		m.cache.Remove(id)
		return nil
	}
}

// call runs fn under the per-call timeout and retries transient failures
// with exponential backoff.
func (m *Mutator[E, P]) call(ctx context.Context, op string, fn func(context.Context) error) error {
	bo := gax.Backoff{
		Initial:    m.opts.Backoff.Initial,
		Max:        m.opts.Backoff.Max,
		Multiplier: m.opts.Backoff.Multiplier,
	}
	for attempt := 0; ; attempt++ {
		cctx, cancel := context.WithTimeout(ctx, m.opts.Timeout)
		err := fn(cctx)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			err = remote.Transient(fmt.Errorf("%s %s timed out after %s: %w", m.kind, op, m.opts.Timeout, err))
		}
		if attempt >= m.opts.Retries || !remote.IsRetryable(err) || ctx.Err() != nil {
			return err
		}
		pause := bo.Pause()
		m.log.Info("retrying remote call", "op", op, "attempt", attempt+1, "pause", pause, "error", err)
		if serr := gax.Sleep(ctx, pause); serr != nil {
			return err
		}
	}
}
