// Package app is the workspace facade used by the CLI, the MCP tools and any
// other front end. It owns one optimistic mutator per entity kind for a
// single owner and layers the task, list and note conveniences on top.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tableflip.dev/taskpad/pkg/cache"
	"tableflip.dev/taskpad/pkg/entity"
	"tableflip.dev/taskpad/pkg/optimistic"
	"tableflip.dev/taskpad/pkg/remote"
	"tableflip.dev/taskpad/pkg/store"
)

var (
	// ErrDefaultList is returned when deleting the owner's default list.
	ErrDefaultList = errors.New("app: the default list cannot be deleted")
	// ErrUnknownList is returned when a task names a list that does not exist.
	ErrUnknownList = errors.New("app: unknown list")
)

// Options configures a Workspace.
type Options struct {
	Owner  string
	Mirror optimistic.Mirror
	Sync   store.SyncSettings
	Clock  func() time.Time
	Logger *slog.Logger
}

// Workspace is the per-owner entry point. All methods are safe for
// concurrent use and return without waiting for the network unless they
// take a context.
type Workspace struct {
	owner string
	now   func() time.Time
	log   *slog.Logger

	tasks *optimistic.Mutator[entity.Task, entity.TaskPatch]
	lists *optimistic.Mutator[entity.TaskList, entity.TaskListPatch]
	notes *optimistic.Mutator[entity.Note, entity.NotePatch]
}

// New builds a workspace for opts.Owner on backend.
func New(backend *remote.Backend, opts Options) (*Workspace, error) {
	if backend == nil || backend.Tasks == nil || backend.Lists == nil || backend.Notes == nil {
		return nil, errors.New("app: no backend configured")
	}
	if opts.Owner == "" {
		return nil, errors.New("app: owner is required")
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	base := optimistic.Options{
		Debounce: opts.Sync.Debounce,
		Timeout:  opts.Sync.Timeout,
		Retries:  opts.Sync.Retries,
		Grace:    opts.Sync.Grace,
		Mirror:   opts.Mirror,
		Clock:    opts.Clock,
		Logger:   opts.Logger,
	}
	withKind := func(kind entity.Kind, order cache.Order) optimistic.Options {
		o := base
		o.Kind = kind
		o.Order = order
		return o
	}
	return &Workspace{
		owner: opts.Owner,
		now:   opts.Clock,
		log:   opts.Logger.With("owner", opts.Owner),
		tasks: optimistic.New(opts.Owner, backend.Tasks, withKind(entity.KindTasks, cache.NewestFirst)),
		lists: optimistic.New(opts.Owner, backend.Lists, withKind(entity.KindLists, cache.OldestFirst)),
		notes: optimistic.New(opts.Owner, backend.Notes, withKind(entity.KindNotes, cache.NewestFirst)),
	}, nil
}

// Owner returns the owner id every call is scoped to.
func (w *Workspace) Owner() string { return w.owner }

// Start loads every kind from the mirror and the remote store and makes sure
// the default list exists.
func (w *Workspace) Start(ctx context.Context) error {
	if err := w.lists.Start(ctx); err != nil {
		return fmt.Errorf("app: start lists: %w", err)
	}
	if err := w.tasks.Start(ctx); err != nil {
		return fmt.Errorf("app: start tasks: %w", err)
	}
	if err := w.notes.Start(ctx); err != nil {
		return fmt.Errorf("app: start notes: %w", err)
	}
	if _, err := w.EnsureDefaultList(ctx); err != nil {
		return err
	}
	return nil
}

// Refresh re-reads every kind from the remote store. Edits that were never
// confirmed are discarded.
func (w *Workspace) Refresh(ctx context.Context) error {
	var errs []error
	if err := w.lists.Refresh(ctx); err != nil {
		errs = append(errs, fmt.Errorf("app: refresh lists: %w", err))
	}
	if err := w.tasks.Refresh(ctx); err != nil {
		errs = append(errs, fmt.Errorf("app: refresh tasks: %w", err))
	}
	if err := w.notes.Refresh(ctx); err != nil {
		errs = append(errs, fmt.Errorf("app: refresh notes: %w", err))
	}
	return errors.Join(errs...)
}

// Flush dispatches everything queued and waits for it to settle. Failures
// are reported through entity status, not here.
func (w *Workspace) Flush(ctx context.Context) error {
	if err := w.lists.Flush(ctx); err != nil {
		return err
	}
	if err := w.tasks.Flush(ctx); err != nil {
		return err
	}
	return w.notes.Flush(ctx)
}

// Close stops the mutators. Queued work that was not flushed is dropped.
func (w *Workspace) Close() {
	w.tasks.Close()
	w.lists.Close()
	w.notes.Close()
}

// Event is a cache change tagged with the kind it happened to.
type Event struct {
	Kind entity.Kind
	cache.Change
}

// Watch fans the changes of every kind made after the call into one channel
// until ctx is done.
func (w *Workspace) Watch(ctx context.Context) <-chan Event {
	out := make(chan Event, 64)
	forward := func(kind entity.Kind, in <-chan cache.Change, cancel func()) {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case change := <-in:
				select {
				case out <- Event{Kind: kind, Change: change}:
				case <-ctx.Done():
					return
				}
			}
		}
	}
	tasks, cancelTasks := w.tasks.Events()
	lists, cancelLists := w.lists.Events()
	notes, cancelNotes := w.notes.Events()
	go forward(entity.KindTasks, tasks, cancelTasks)
	go forward(entity.KindLists, lists, cancelLists)
	go forward(entity.KindNotes, notes, cancelNotes)
	return out
}
