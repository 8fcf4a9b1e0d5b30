// Package memory is an in-process remote store. It backs the offline demo
// backend and lets tests observe, delay and fail remote calls.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"tableflip.dev/taskpad/pkg/entity"
	"tableflip.dev/taskpad/pkg/remote"
)

// Call records one remote invocation.
type Call struct {
	Op    string
	ID    string
	Owner string
	Draft any
	Patch any
}

const (
	OpList   = "list"
	OpGet    = "get"
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

type subscriber[E any] struct {
	owner string
	fn    func([]E)
}

// Store keeps entities of one kind in memory.
type Store[E entity.Record[E], P entity.Patch[E, P]] struct {
	kind entity.Kind
	now  func() time.Time

	mu      sync.Mutex
	items   map[string]E
	order   []string
	calls   []Call
	fail    func(Call) error
	gate    chan struct{}
	subs    map[int]subscriber[E]
	nextSub int
}

// New returns an empty store for kind.
func New[E entity.Record[E], P entity.Patch[E, P]](kind entity.Kind) *Store[E, P] {
	return &Store[E, P]{
		kind:  kind,
		now:   time.Now,
		items: map[string]E{},
		subs:  map[int]subscriber[E]{},
	}
}

// NewBackend returns memory stores for every kind.
func NewBackend() *remote.Backend {
	return &remote.Backend{
		Tasks: New[entity.Task, entity.TaskPatch](entity.KindTasks),
		Lists: New[entity.TaskList, entity.TaskListPatch](entity.KindLists),
		Notes: New[entity.Note, entity.NotePatch](entity.KindNotes),
	}
}

// FailWhen installs a hook consulted before every call; a non-nil result is
// returned in place of the real outcome.
func (s *Store[E, P]) FailWhen(fn func(Call) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fn
}

// Hold blocks every subsequent call until the returned release func runs.
func (s *Store[E, P]) Hold() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.gate = gate
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.gate == gate {
				s.gate = nil
			}
			s.mu.Unlock()
			close(gate)
		})
	}
}

// Calls returns the recorded calls for op, or all calls when op is empty.
func (s *Store[E, P]) Calls(op string) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Call
	for _, c := range s.calls {
		if op == "" || c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Seed stores items as they are, bypassing stamping and call recording.
func (s *Store[E, P]) Seed(items ...E) {
	s.mu.Lock()
	for _, item := range items {
		key := scoped(item.Owner(), item.Key())
		if _, ok := s.items[key]; !ok {
			s.order = append(s.order, key)
		}
		s.items[key] = item
	}
	s.mu.Unlock()
	s.publish()
}

// Items returns what the store holds for owner, in creation order.
func (s *Store[E, P]) Items(owner string) []E {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(owner)
}

func (s *Store[E, P]) snapshot(owner string) []E {
	out := make([]E, 0, len(s.order))
	for _, key := range s.order {
		item := s.items[key]
		if item.Owner() == owner {
			out = append(out, item)
		}
	}
	return out
}

func (s *Store[E, P]) enter(ctx context.Context, c Call) error {
	s.mu.Lock()
	s.calls = append(s.calls, c)
	gate := s.gate
	fail := s.fail
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return remote.Transient(ctx.Err())
		}
	}
	if err := ctx.Err(); err != nil {
		return remote.Transient(err)
	}
	if fail != nil {
		return fail(c)
	}
	return nil
}

func (s *Store[E, P]) List(ctx context.Context, owner string) ([]E, error) {
	if err := s.enter(ctx, Call{Op: OpList, Owner: owner}); err != nil {
		return nil, err
	}
	return s.Items(owner), nil
}

func (s *Store[E, P]) Get(ctx context.Context, id, owner string) (E, error) {
	var zero E
	if err := s.enter(ctx, Call{Op: OpGet, ID: id, Owner: owner}); err != nil {
		return zero, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookup(id, owner)
}

// scoped keys items by owner so reserved ids such as the default list can
// exist once per owner.
func scoped(owner, id string) string {
	return owner + "\x00" + id
}

func (s *Store[E, P]) lookup(id, owner string) (E, error) {
	var zero E
	if item, ok := s.items[scoped(owner, id)]; ok {
		return item, nil
	}
	for _, item := range s.items {
		if item.Key() == id {
			return zero, remote.Denied(s.kind, id)
		}
	}
	return zero, remote.NotFound(s.kind, id)
}

func (s *Store[E, P]) Create(ctx context.Context, draft E, owner string) (E, error) {
	var zero E
	if err := s.enter(ctx, Call{Op: OpCreate, Owner: owner, Draft: draft}); err != nil {
		return zero, err
	}
	if err := draft.Validate(); err != nil {
		return zero, err
	}
	now := s.now()
	created := draft.WithKey(entity.ServerKey(draft)).WithOwner(owner).Stamped(now, now)

	s.mu.Lock()
	key := scoped(owner, created.Key())
	if existing, ok := s.items[key]; ok {
		// Reserved ids are created once.
		s.mu.Unlock()
		return existing, nil
	}
	s.items[key] = created
	s.order = append(s.order, key)
	s.mu.Unlock()
	s.publish()
	return created, nil
}

func (s *Store[E, P]) Update(ctx context.Context, id string, patch P, owner string) (E, error) {
	var zero E
	if err := s.enter(ctx, Call{Op: OpUpdate, ID: id, Owner: owner, Patch: patch}); err != nil {
		return zero, err
	}
	s.mu.Lock()
	item, err := s.lookup(id, owner)
	if err != nil {
		s.mu.Unlock()
		return zero, err
	}
	updated := patch.Apply(item)
	if err := updated.Validate(); err != nil {
		s.mu.Unlock()
		return zero, err
	}
	now := s.now()
	if now.Before(item.Updated()) {
		now = item.Updated()
	}
	updated = updated.Stamped(item.Created(), now)
	s.items[scoped(owner, id)] = updated
	s.mu.Unlock()
	s.publish()
	return updated, nil
}

// Delete of an id that is already gone succeeds.
func (s *Store[E, P]) Delete(ctx context.Context, id, owner string) error {
	if err := s.enter(ctx, Call{Op: OpDelete, ID: id, Owner: owner}); err != nil {
		return err
	}
	s.mu.Lock()
	if _, err := s.lookup(id, owner); err != nil {
		s.mu.Unlock()
		if errors.Is(err, remote.ErrNotFound) {
			return nil
		}
		return err
	}
	key := scoped(owner, id)
	delete(s.items, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	s.publish()
	return nil
}

// Subscribe delivers the owner's current set immediately and again after
// every change.
func (s *Store[E, P]) Subscribe(_ context.Context, owner string, onChange func([]E)) (func(), error) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = subscriber[E]{owner: owner, fn: onChange}
	items := s.snapshot(owner)
	s.mu.Unlock()

	onChange(items)
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}, nil
}

func (s *Store[E, P]) publish() {
	type delivery struct {
		fn    func([]E)
		items []E
	}
	s.mu.Lock()
	var out []delivery
	for _, sub := range s.subs {
		out = append(out, delivery{fn: sub.fn, items: s.snapshot(sub.owner)})
	}
	s.mu.Unlock()
	for _, d := range out {
		d.fn(d.items)
	}
}
