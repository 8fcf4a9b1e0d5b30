package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tableflip.dev/taskpad/pkg/cache"
	"tableflip.dev/taskpad/pkg/entity"
	"tableflip.dev/taskpad/pkg/optimistic"
	"tableflip.dev/taskpad/pkg/remote"
)

// DeleteListOptions controls what happens to the tasks of a deleted list.
// With Cascade set the tasks are deleted; otherwise they move to MoveTo,
// or to the default list when MoveTo is empty.
type DeleteListOptions struct {
	MoveTo  string
	Cascade bool
}

// Lists returns the visible lists in creation order.
func (w *Workspace) Lists() []cache.Item[entity.TaskList] {
	return w.lists.Visible()
}

// List returns one list by id or placeholder id.
func (w *Workspace) List(id string) (cache.Item[entity.TaskList], bool) {
	return w.lists.Get(id)
}

// FindList resolves a list by id or by case-insensitive name.
func (w *Workspace) FindList(ref string) (entity.TaskList, bool) {
	if item, ok := w.lists.Get(ref); ok && !item.Deleting {
		return item.Entity, true
	}
	for _, item := range w.lists.Visible() {
		if !item.Deleting && strings.EqualFold(item.Entity.Name, ref) {
			return item.Entity, true
		}
	}
	return entity.TaskList{}, false
}

// DefaultList returns the owner's default list if it is loaded.
func (w *Workspace) DefaultList() (entity.TaskList, bool) {
	for _, item := range w.lists.List() {
		if item.Entity.IsDefault || item.Entity.ID == entity.DefaultListID {
			return item.Entity, true
		}
	}
	return entity.TaskList{}, false
}

// EnsureDefaultList creates the default list when the owner has none and
// waits for the store to confirm it.
func (w *Workspace) EnsureDefaultList(ctx context.Context) (entity.TaskList, error) {
	if l, ok := w.DefaultList(); ok {
		if !entity.IsPlaceholder(l.ID) {
			return l, nil
		}
		return w.awaitList(ctx, l.ID)
	}
	draft, err := w.lists.Create(entity.TaskList{Name: entity.DefaultListName, IsDefault: true})
	if err != nil {
		return entity.TaskList{}, fmt.Errorf("app: create default list: %w", err)
	}
	return w.awaitList(ctx, draft.ID)
}

// CreateList creates a list optimistically.
func (w *Workspace) CreateList(name, color string) (entity.TaskList, error) {
	return w.lists.Create(entity.TaskList{Name: strings.TrimSpace(name), Color: color})
}

// RenameList changes a list's name.
func (w *Workspace) RenameList(id, name string) (entity.TaskList, error) {
	name = strings.TrimSpace(name)
	return w.lists.Update(id, entity.TaskListPatch{Name: &name})
}

// RecolorList changes a list's color.
func (w *Workspace) RecolorList(id, color string) (entity.TaskList, error) {
	return w.lists.Update(id, entity.TaskListPatch{Color: &color})
}

// DeleteList removes a list after moving or deleting its tasks. The default
// list is never deleted. The list itself is only deleted once every task
// operation has been confirmed, so a partial failure leaves the list in
// place with no orphaned tasks.
func (w *Workspace) DeleteList(ctx context.Context, id string, opts DeleteListOptions) error {
	item, ok := w.lists.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownList, id)
	}
	list := item.Entity
	if list.IsDefault || list.ID == entity.DefaultListID {
		return ErrDefaultList
	}

	if opts.Cascade {
		if err := w.deleteTasksIn(ctx, list.ID); err != nil {
			return err
		}
	} else {
		target := opts.MoveTo
		if target == "" {
			def, err := w.EnsureDefaultList(ctx)
			if err != nil {
				return err
			}
			target = def.ID
		}
		if _, err := w.MoveTasks(ctx, list.ID, target); err != nil {
			return err
		}
	}

	if err := w.lists.Delete(list.ID); err != nil {
		return fmt.Errorf("app: delete list %s: %w", list.ID, err)
	}
	if err := w.lists.Flush(ctx); err != nil {
		return err
	}
	if _, err := w.lists.Await(ctx, list.ID); err != nil && !gone(err) {
		return fmt.Errorf("app: delete list %s: %w", list.ID, err)
	}
	return nil
}

func (w *Workspace) deleteTasksIn(ctx context.Context, listID string) error {
	var ids []string
	for _, item := range w.tasks.List() {
		if item.Entity.ListID == listID && !item.Deleting && !item.Failed() {
			if err := w.tasks.Delete(item.Entity.ID); err != nil {
				return fmt.Errorf("app: delete task %s: %w", item.Entity.ID, err)
			}
			ids = append(ids, item.Entity.ID)
		}
	}
	return w.settleTasks(ctx, ids, "delete")
}

// gone reports whether err from Await means the entity no longer exists,
// which is the expected outcome of a delete.
func gone(err error) bool {
	return errors.Is(err, optimistic.ErrDiscarded) || errors.Is(err, remote.ErrNotFound)
}

// settleTasks flushes the task queue and collects the outcome of every id.
func (w *Workspace) settleTasks(ctx context.Context, ids []string, op string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := w.tasks.Flush(ctx); err != nil {
		return err
	}
	var errs []error
	for _, id := range ids {
		_, err := w.tasks.Await(ctx, id)
		if err != nil && op == "delete" && gone(err) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("app: %s task %s: %w", op, id, err))
		}
	}
	return errors.Join(errs...)
}

// resolveList returns the confirmed id of the list ref names, waiting for a
// pending create when ref is still a placeholder.
func (w *Workspace) resolveList(ctx context.Context, ref string) (string, error) {
	if ref == "" {
		ref = entity.DefaultListID
		if def, ok := w.DefaultList(); ok {
			ref = def.ID
		}
	}
	item, ok := w.lists.Get(ref)
	if !ok || item.Deleting || item.Failed() {
		return "", fmt.Errorf("%w: %s", ErrUnknownList, ref)
	}
	if !entity.IsPlaceholder(item.Entity.ID) {
		return item.Entity.ID, nil
	}
	list, err := w.awaitList(ctx, item.Entity.ID)
	if err != nil {
		return "", err
	}
	return list.ID, nil
}

func (w *Workspace) awaitList(ctx context.Context, id string) (entity.TaskList, error) {
	if err := w.lists.Flush(ctx); err != nil {
		return entity.TaskList{}, err
	}
	list, err := w.lists.Await(ctx, id)
	if err != nil {
		return entity.TaskList{}, fmt.Errorf("app: list %s: %w", id, err)
	}
	return list, nil
}
