package app

import (
	"context"
	"fmt"

	"tableflip.dev/taskpad/pkg/entity"
)

// MoveTasks reassigns every task of list from to list to and waits for the
// store to confirm each move. It returns the number of tasks moved.
func (w *Workspace) MoveTasks(ctx context.Context, from, to string) (int, error) {
	from = w.lists.Resolve(from)
	target, err := w.resolveList(ctx, to)
	if err != nil {
		return 0, err
	}
	if target == from {
		return 0, fmt.Errorf("app: cannot move tasks of %s onto itself", from)
	}
	var ids []string
	for _, item := range w.tasks.List() {
		if item.Entity.ListID != from || item.Deleting || item.Failed() {
			continue
		}
		if _, err := w.tasks.Update(item.Entity.ID, entity.TaskPatch{ListID: &target}); err != nil {
			return 0, fmt.Errorf("app: move task %s: %w", item.Entity.ID, err)
		}
		ids = append(ids, item.Entity.ID)
	}
	if err := w.settleTasks(ctx, ids, "move"); err != nil {
		return 0, err
	}
	return len(ids), nil
}
