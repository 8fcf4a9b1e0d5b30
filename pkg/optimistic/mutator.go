// Package optimistic applies create, update and delete mutations to a local
// cache immediately and reconciles the cache with a remote store in the
// background.
//
// Every entity moves through an explicit lifecycle:
//
//	pending -> syncing -> synced
//	                   -> error
//
// Deletes keep the entity visible with Deleting set until the remote call
// settles. Operations on one id are serialized by the sync queue; operations
// enqueued against a placeholder id wait behind the in-flight create and are
// moved to the server id once it is known.
package optimistic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/googleapis/gax-go/v2"

	"tableflip.dev/taskpad/pkg/cache"
	"tableflip.dev/taskpad/pkg/entity"
	"tableflip.dev/taskpad/pkg/remote"
	"tableflip.dev/taskpad/pkg/syncq"
)

var (
	// ErrDiscarded is reported for a create that was deleted before it was
	// ever sent.
	ErrDiscarded = errors.New("optimistic: create discarded before dispatch")
	// ErrDeleting is returned when updating an entity with a delete pending.
	ErrDeleting = errors.New("optimistic: entity is being deleted")
	// ErrClosed is returned by mutations after Close.
	ErrClosed = errors.New("optimistic: mutator closed")
)

// Mirror persists the last known-good entity set. See store.Mirror.
type Mirror interface {
	Save(owner string, kind entity.Kind, v any) error
	Load(owner string, kind entity.Kind, v any) (bool, error)
}

// Options configures a Mutator. Zero values select the defaults.
type Options struct {
	Kind        entity.Kind
	Order       cache.Order
	Debounce    time.Duration
	Timeout     time.Duration
	Retries     int
	Backoff     gax.Backoff
	Grace       time.Duration
	AliasTTL    time.Duration
	MaxInFlight int
	Mirror      Mirror
	Clock       func() time.Time
	Logger      *slog.Logger
}

const (
	DefaultTimeout = 10 * time.Second
	DefaultGrace   = 5 * time.Second
	// DefaultAliasTTL is how long a reconciled placeholder id keeps
	// resolving to its server id.
	DefaultAliasTTL = time.Minute
)

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	if o.Grace <= 0 {
		o.Grace = DefaultGrace
	}
	if o.AliasTTL <= 0 {
		o.AliasTTL = DefaultAliasTTL
	}
	if o.Backoff.Initial <= 0 {
		o.Backoff.Initial = 200 * time.Millisecond
	}
	if o.Backoff.Max <= 0 {
		o.Backoff.Max = 5 * time.Second
	}
	if o.Backoff.Multiplier <= 1 {
		o.Backoff.Multiplier = 2
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Mutator owns the cache and sync queue for one (owner, kind) pair.
type Mutator[E entity.Record[E], P entity.Patch[E, P]] struct {
	owner string
	kind  entity.Kind
	store remote.Store[E, P]
	cache *cache.Cache[E]
	queue *syncq.Queue
	opts  Options
	log   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	patches     map[string]P
	base        map[string]E
	queued      map[string]cache.Action
	running     map[string]bool
	dispatched  map[string]bool
	aliases     map[string]string
	retire      map[string]*time.Timer
	waiters     map[string]int
	failed      map[string]error
	errs        map[string]error
	grace       map[string]*time.Timer
	changed     chan struct{}
	unsubscribe func()
	closed      bool
}

// New builds a mutator for owner backed by store.
func New[E entity.Record[E], P entity.Patch[E, P]](owner string, store remote.Store[E, P], opts Options) *Mutator[E, P] {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	log := opts.Logger.With("owner", owner, "kind", string(opts.Kind))
	return &Mutator[E, P]{
		owner: owner,
		kind:  opts.Kind,
		store: store,
		cache: cache.New[E](opts.Order),
		queue: syncq.New(ctx, syncq.Options{
			Debounce:    opts.Debounce,
			MaxInFlight: opts.MaxInFlight,
			Logger:      log,
		}),
		opts:       opts,
		log:        log,
		ctx:        ctx,
		cancel:     cancel,
		patches:    map[string]P{},
		base:       map[string]E{},
		queued:     map[string]cache.Action{},
		running:    map[string]bool{},
		dispatched: map[string]bool{},
		aliases:    map[string]string{},
		retire:     map[string]*time.Timer{},
		waiters:    map[string]int{},
		failed:     map[string]error{},
		errs:       map[string]error{},
		grace:      map[string]*time.Timer{},
		changed:    make(chan struct{}),
	}
}

// Owner returns the owner every call is scoped to.
func (m *Mutator[E, P]) Owner() string { return m.owner }

// Events streams the cache changes made after the call until cancel.
func (m *Mutator[E, P]) Events() (<-chan cache.Change, func()) { return m.cache.Subscribe() }

// List returns every cached item, including failed creates.
func (m *Mutator[E, P]) List() []cache.Item[E] { return m.cache.List() }

// Visible returns the items a UI should render.
func (m *Mutator[E, P]) Visible() []cache.Item[E] { return m.cache.Visible() }

// Get returns the cached item for id. Placeholder ids resolve to the server
// id once the create has been reconciled. The alias is kept for AliasTTL,
// and for as long as an Await on the placeholder is still waiting.
func (m *Mutator[E, P]) Get(id string) (cache.Item[E], bool) {
	m.mu.Lock()
	id = m.resolveLocked(id)
	m.mu.Unlock()
	return m.cache.Get(id)
}

// Resolve maps a placeholder id to its server id when known.
func (m *Mutator[E, P]) Resolve(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolveLocked(id)
}

// Create validates draft, caches it under a placeholder id and schedules the
// remote create. The optimistic entity is returned immediately.
func (m *Mutator[E, P]) Create(draft E) (E, error) {
	var zero E
	if err := draft.Validate(); err != nil {
		return zero, err
	}
	now := m.opts.Clock()
	id := entity.NewPlaceholderID()
	ent := draft.WithKey(id).WithOwner(m.owner).Stamped(now, now)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return zero, ErrClosed
	}
	m.cache.Upsert(cache.Item[E]{Entity: ent, Status: entity.StatusPending, Action: cache.ActionCreate})
	if err := m.enqueueLocked(id, cache.ActionCreate); err != nil {
		m.cache.Remove(id)
		return zero, err
	}
	return ent, nil
}

// Update merges patch over the cached entity and schedules one remote update
// carrying every patch merged since the last dispatch.
func (m *Mutator[E, P]) Update(id string, patch P) (E, error) {
	return m.Modify(id, func(E) (P, error) { return patch, nil })
}

// Modify is Update with the patch derived from the cached entity. fn runs
// under the mutator lock, so concurrent read-modify-write edits of one
// entity are applied one after the other instead of racing on a stale copy.
// fn must not call back into the mutator.
func (m *Mutator[E, P]) Modify(id string, fn func(current E) (P, error)) (E, error) {
	var zero E
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return zero, ErrClosed
	}
	id = m.resolveLocked(id)
	if err, ok := m.failed[id]; ok {
		return zero, err
	}
	item, ok := m.cache.Get(id)
	if !ok {
		return zero, remote.NotFound(m.kind, id)
	}
	if item.Deleting {
		return zero, ErrDeleting
	}
	patch, err := fn(item.Entity)
	if err != nil {
		return zero, err
	}
	next := patch.Apply(item.Entity)
	if err := next.Validate(); err != nil {
		return zero, err
	}
	updated := m.opts.Clock()
	if prev := item.Entity.Updated(); updated.Before(prev) {
		updated = prev
	}
	next = next.Stamped(item.Entity.Created(), updated)

	if entity.IsPlaceholder(id) {
		if !m.dispatched[id] {
			// The queued create reads the cache when it runs.
			m.cache.Upsert(cache.Item[E]{Entity: next, Status: entity.StatusPending, Action: cache.ActionCreate})
			return next, nil
		}
		m.mergePatchLocked(id, patch, item.Entity)
		m.cache.Upsert(cache.Item[E]{Entity: next, Status: entity.StatusPending, Action: cache.ActionCreate})
		return next, m.enqueueLocked(id, cache.ActionUpdate)
	}

	m.mergePatchLocked(id, patch, item.Entity)
	delete(m.errs, id)
	m.cache.Upsert(cache.Item[E]{Entity: next, Status: entity.StatusPending, Action: cache.ActionUpdate})
	return next, m.enqueueLocked(id, cache.ActionUpdate)
}

// Delete marks the entity as deleting and schedules the remote delete. The
// entity stays cached until the remote store confirms.
func (m *Mutator[E, P]) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	id = m.resolveLocked(id)
	if _, ok := m.failed[id]; ok {
		m.evictLocked(id)
		return nil
	}
	item, ok := m.cache.Get(id)
	if !ok {
		return remote.NotFound(m.kind, id)
	}
	if entity.IsPlaceholder(id) && !m.dispatched[id] {
		m.queue.Cancel(id)
		delete(m.queued, id)
		m.cache.Remove(id)
		m.failLocked(id, ErrDiscarded)
		return nil
	}
	if _, ok := m.patches[id]; ok {
		// The edits were never sent; a failed delete must not show them.
		item.Entity = m.base[id]
	}
	m.dropPatchLocked(id)
	delete(m.errs, id)
	item.Deleting = true
	item.Error = ""
	if item.Status == entity.StatusError {
		item.Status = entity.StatusPending
	}
	if !entity.IsPlaceholder(id) {
		item.Action = cache.ActionDelete
	}
	m.cache.Upsert(item)
	return m.enqueueLocked(id, cache.ActionDelete)
}

// Flush dispatches everything queued and waits until the queue is idle.
func (m *Mutator[E, P]) Flush(ctx context.Context) error {
	if err := m.queue.Drain(ctx); err != nil && !errors.Is(err, syncq.ErrClosed) {
		return fmt.Errorf("optimistic: flush %s: %w", m.kind, err)
	}
	return nil
}

// Close stops timers and the subscription and abandons queued operations.
func (m *Mutator[E, P]) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	for id, t := range m.grace {
		t.Stop()
		delete(m.grace, id)
	}
	for id, t := range m.retire {
		t.Stop()
		delete(m.retire, id)
	}
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	m.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	m.queue.Close()
	m.cancel()
}

func (m *Mutator[E, P]) resolveLocked(id string) string {
	if server, ok := m.aliases[id]; ok {
		return server
	}
	return id
}

// mergePatchLocked folds patch into the undispatched patch for id. base is
// the entity the first undispatched patch was applied to.
func (m *Mutator[E, P]) mergePatchLocked(id string, patch P, base E) {
	if prev, ok := m.patches[id]; ok {
		patch = prev.Merge(patch)
	} else {
		m.base[id] = base
	}
	m.patches[id] = patch
}

// takePatchLocked removes and returns the undispatched patch for id.
func (m *Mutator[E, P]) takePatchLocked(id string) (P, bool) {
	patch, ok := m.patches[id]
	m.dropPatchLocked(id)
	return patch, ok
}

func (m *Mutator[E, P]) dropPatchLocked(id string) {
	delete(m.patches, id)
	delete(m.base, id)
}

func (m *Mutator[E, P]) enqueueLocked(id string, action cache.Action) error {
	var op syncq.Op
	switch action {
	case cache.ActionCreate:
		op = m.createOp(id)
	case cache.ActionUpdate:
		op = m.updateOp(id)
	case cache.ActionDelete:
		op = m.deleteOp(id)
	default:
		return fmt.Errorf("optimistic: unknown action %q", action)
	}
	if err := m.queue.Enqueue(id, op); err != nil {
		if errors.Is(err, syncq.ErrClosed) {
			return ErrClosed
		}
		return err
	}
	m.queued[id] = action
	return nil
}

// failLocked records a terminal create failure for a placeholder and
// schedules its eviction.
func (m *Mutator[E, P]) failLocked(id string, err error) {
	m.failed[id] = err
	if t, ok := m.grace[id]; ok {
		t.Stop()
	}
	m.grace[id] = time.AfterFunc(m.opts.Grace, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.evictLocked(id)
	})
	m.signalLocked()
}

func (m *Mutator[E, P]) evictLocked(id string) {
	if t, ok := m.grace[id]; ok {
		t.Stop()
		delete(m.grace, id)
	}
	delete(m.failed, id)
	delete(m.dispatched, id)
	m.cache.Remove(id)
	m.signalLocked()
}

// retireAliasLocked forgets the placeholder alias after AliasTTL, or later
// if the placeholder is still queued, running or awaited by then.
func (m *Mutator[E, P]) retireAliasLocked(placeholder string) {
	if t, ok := m.retire[placeholder]; ok {
		t.Stop()
	}
	m.retire[placeholder] = time.AfterFunc(m.opts.AliasTTL, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.retire, placeholder)
		if m.closed {
			return
		}
		if m.waiters[placeholder] > 0 || m.busyLocked(placeholder) || m.busyLocked(m.aliases[placeholder]) {
			m.retireAliasLocked(placeholder)
			return
		}
		delete(m.aliases, placeholder)
	})
}

func (m *Mutator[E, P]) signalLocked() {
	close(m.changed)
	m.changed = make(chan struct{})
}
