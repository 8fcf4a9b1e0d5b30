package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tableflip.dev/taskpad/pkg/cache"
	"tableflip.dev/taskpad/pkg/entity"
)

// TaskFilter selects tasks for Tasks. Zero fields do not filter.
type TaskFilter struct {
	ListID string
	// Important keeps starred tasks only.
	Important bool
	// Planned keeps tasks with a due time.
	Planned bool
	// Today keeps tasks due on the current local day or earlier and still
	// open.
	Today bool
	// DueWithin keeps tasks due between now and now+DueWithin.
	DueWithin time.Duration
	// HideCompleted drops completed tasks.
	HideCompleted bool
	// Query matches title or notes, case-insensitively.
	Query string
}

// Tasks returns the visible tasks matching f, newest first.
func (w *Workspace) Tasks(f TaskFilter) []cache.Item[entity.Task] {
	now := w.now()
	endOfDay := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
	query := strings.ToLower(strings.TrimSpace(f.Query))

	var out []cache.Item[entity.Task]
	for _, item := range w.tasks.Visible() {
		t := item.Entity
		switch {
		case f.ListID != "" && t.ListID != w.lists.Resolve(f.ListID):
			continue
		case f.Important && !t.Important:
			continue
		case f.Planned && t.DueAt == nil:
			continue
		case f.HideCompleted && t.Completed:
			continue
		case f.Today && (t.Completed || t.DueAt == nil || !t.DueAt.Before(endOfDay)):
			continue
		case f.DueWithin > 0 && (t.DueAt == nil || t.DueAt.Before(now) || t.DueAt.After(now.Add(f.DueWithin))):
			continue
		case query != "" && !strings.Contains(strings.ToLower(t.Title), query) &&
			!strings.Contains(strings.ToLower(t.Notes), query):
			continue
		}
		out = append(out, item)
	}
	return out
}

// Task returns one task by id or placeholder id.
func (w *Workspace) Task(id string) (cache.Item[entity.Task], bool) {
	return w.tasks.Get(id)
}

// CreateTask validates draft, points it at an existing list and creates it
// optimistically. An empty ListID selects the default list. When the list
// itself is still being created the call waits for it.
func (w *Workspace) CreateTask(ctx context.Context, draft entity.Task) (entity.Task, error) {
	if err := draft.Validate(); err != nil {
		return entity.Task{}, err
	}
	listID, err := w.resolveList(ctx, draft.ListID)
	if err != nil {
		return entity.Task{}, err
	}
	draft.ListID = listID
	draft.Steps = entity.NormalizeSteps(draft.Steps)
	if draft.Completed && draft.CompletedAt == nil {
		done := w.now()
		draft.CompletedAt = &done
	}
	return w.tasks.Create(draft)
}

// AwaitTask waits until the operations pending for id settle.
func (w *Workspace) AwaitTask(ctx context.Context, id string) (entity.Task, error) {
	return w.tasks.Await(ctx, id)
}

// UpdateTask applies patch to a task. A patch that moves the task checks the
// target list first.
func (w *Workspace) UpdateTask(ctx context.Context, id string, patch entity.TaskPatch) (entity.Task, error) {
	if patch.ListID != nil {
		listID, err := w.resolveList(ctx, *patch.ListID)
		if err != nil {
			return entity.Task{}, err
		}
		patch.ListID = &listID
	}
	if patch.Completed != nil && *patch.Completed && patch.CompletedAt == nil {
		done := w.now()
		patch.CompletedAt = &done
	}
	return w.tasks.Update(id, patch)
}

// DeleteTask deletes a task optimistically.
func (w *Workspace) DeleteTask(id string) error {
	return w.tasks.Delete(id)
}

// ToggleComplete flips the completed flag, stamping or clearing the
// completion time.
func (w *Workspace) ToggleComplete(id string) (entity.Task, error) {
	return w.tasks.Modify(id, func(cur entity.Task) (entity.TaskPatch, error) {
		done := !cur.Completed
		patch := entity.TaskPatch{Completed: &done}
		if done {
			at := w.now()
			patch.CompletedAt = &at
		}
		return patch, nil
	})
}

// ToggleImportant flips the important flag.
func (w *Workspace) ToggleImportant(id string) (entity.Task, error) {
	return w.tasks.Modify(id, func(cur entity.Task) (entity.TaskPatch, error) {
		important := !cur.Important
		return entity.TaskPatch{Important: &important}, nil
	})
}

// AddStep appends a step to a task.
func (w *Workspace) AddStep(taskID, title string) (entity.Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return entity.Task{}, &entity.ValidationError{Kind: entity.KindTasks, Field: "steps.title", Message: "is required"}
	}
	return w.editSteps(taskID, func(steps []entity.Step) ([]entity.Step, error) {
		return entity.AddStep(steps, entity.Step{Title: title}, w.now()), nil
	})
}

// RemoveStep deletes a step and renumbers the rest.
func (w *Workspace) RemoveStep(taskID, stepID string) (entity.Task, error) {
	return w.editSteps(taskID, func(steps []entity.Step) ([]entity.Step, error) {
		return entity.RemoveStep(steps, stepID)
	})
}

// MoveStep moves a step to position to.
func (w *Workspace) MoveStep(taskID, stepID string, to int) (entity.Task, error) {
	return w.editSteps(taskID, func(steps []entity.Step) ([]entity.Step, error) {
		return entity.MoveStep(steps, stepID, to)
	})
}

// ReorderSteps puts the steps in the order of ids.
func (w *Workspace) ReorderSteps(taskID string, ids []string) (entity.Task, error) {
	return w.editSteps(taskID, func(steps []entity.Step) ([]entity.Step, error) {
		return entity.ReorderSteps(steps, ids)
	})
}

// ToggleStep flips a step's completed flag.
func (w *Workspace) ToggleStep(taskID, stepID string) (entity.Task, error) {
	return w.editSteps(taskID, func(steps []entity.Step) ([]entity.Step, error) {
		for _, s := range steps {
			if s.ID == stepID {
				done := !s.Completed
				return entity.UpdateStep(steps, stepID, entity.StepPatch{Completed: &done}, w.now())
			}
		}
		return nil, fmt.Errorf("%w: %s", entity.ErrStepNotFound, stepID)
	})
}

// UpdateStep applies p to one step.
func (w *Workspace) UpdateStep(taskID, stepID string, p entity.StepPatch) (entity.Task, error) {
	return w.editSteps(taskID, func(steps []entity.Step) ([]entity.Step, error) {
		return entity.UpdateStep(steps, stepID, p, w.now())
	})
}

func (w *Workspace) editSteps(taskID string, fn func([]entity.Step) ([]entity.Step, error)) (entity.Task, error) {
	return w.tasks.Modify(taskID, func(cur entity.Task) (entity.TaskPatch, error) {
		steps, err := fn(cur.Clone().Steps)
		if err != nil {
			return entity.TaskPatch{}, err
		}
		return entity.TaskPatch{Steps: &steps}, nil
	})
}
