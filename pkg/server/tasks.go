package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"tableflip.dev/taskpad/pkg/entity"
	"tableflip.dev/taskpad/pkg/remote"
)

// TaskStore keeps tasks and their steps.
type TaskStore struct{ d *DB }

func (d *DB) Tasks() *TaskStore { return &TaskStore{d: d} }

var _ remote.Store[entity.Task, entity.TaskPatch] = (*TaskStore)(nil)
var _ remote.Subscriber[entity.Task] = (*TaskStore)(nil)

const taskColumns = `id, owner_id, list_id, title, completed, important, notes, due_at, completed_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(r rowScanner) (entity.Task, error) {
	var (
		t                  entity.Task
		completed, starred int
		due, done          sql.NullString
		created, updated   string
	)
	if err := r.Scan(&t.ID, &t.OwnerID, &t.ListID, &t.Title, &completed, &starred, &t.Notes, &due, &done, &created, &updated); err != nil {
		return t, err
	}
	t.Completed = completed == 1
	t.Important = starred == 1
	var err error
	if t.DueAt, err = parseOptional(due); err != nil {
		return t, err
	}
	if t.CompletedAt, err = parseOptional(done); err != nil {
		return t, err
	}
	t.CreatedAt, t.UpdatedAt, err = parseTimes(created, updated)
	return t, err
}

// List returns the owner's tasks, newest first, with their steps.
func (s *TaskStore) List(ctx context.Context, owner string) ([]entity.Task, error) {
	rows, err := s.d.sql.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE owner_id = ? ORDER BY created_at DESC`, owner)
	if err != nil {
		return nil, fmt.Errorf("server: list tasks: %w", err)
	}
	defer rows.Close()
	out := []entity.Task{}
	index := map[string]int{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("server: scan task: %w", err)
		}
		index[t.ID] = len(out)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	steps, err := s.d.sql.QueryContext(ctx,
		`SELECT s.task_id, `+stepColumns+` FROM task_steps s JOIN tasks t ON t.id = s.task_id
		 WHERE t.owner_id = ? ORDER BY s.task_id, s.order_index`, owner)
	if err != nil {
		return nil, fmt.Errorf("server: list steps: %w", err)
	}
	defer steps.Close()
	for steps.Next() {
		taskID, step, err := scanStep(steps)
		if err != nil {
			return nil, fmt.Errorf("server: scan step: %w", err)
		}
		if i, ok := index[taskID]; ok {
			out[i].Steps = append(out[i].Steps, step)
		}
	}
	return out, steps.Err()
}

func (s *TaskStore) Get(ctx context.Context, id, owner string) (entity.Task, error) {
	return s.get(ctx, s.d.sql, id, owner)
}

func (s *TaskStore) get(ctx context.Context, q execer, id, owner string) (entity.Task, error) {
	t, err := scanTask(q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ? AND owner_id = ?`, id, owner))
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Task{}, ownerCheck(ctx, q, "tasks", entity.KindTasks, id)
	}
	if err != nil {
		return entity.Task{}, fmt.Errorf("server: get task: %w", err)
	}
	t.Steps, err = loadSteps(ctx, q, id)
	return t, err
}

func (s *TaskStore) Create(ctx context.Context, draft entity.Task, owner string) (entity.Task, error) {
	if strings.TrimSpace(draft.ListID) == "" {
		draft.ListID = entity.DefaultListID
	}
	draft.Steps = entity.NormalizeSteps(draft.Steps)
	if err := draft.Validate(); err != nil {
		return entity.Task{}, err
	}
	now := s.d.now()
	created := draft.WithKey(entity.NewID()).WithOwner(owner).Stamped(now, now)
	fillSteps(created.Steps, now)
	if !created.Completed {
		created.CompletedAt = nil
	} else if created.CompletedAt == nil {
		created.CompletedAt = &now
	}
	err := s.d.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.d.ensureDefault(ctx, tx, owner); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			created.ID, owner, created.ListID, created.Title, boolInt(created.Completed), boolInt(created.Important),
			created.Notes, formatOptional(created.DueAt), formatOptional(created.CompletedAt),
			entity.FormatTime(created.CreatedAt), entity.FormatTime(created.UpdatedAt),
		)
		if err != nil {
			return translate(err)
		}
		return replaceSteps(ctx, tx, created.ID, created.Steps)
	})
	if err != nil {
		return entity.Task{}, err
	}
	s.d.hub.Publish(Notice{Kind: entity.KindTasks, Owner: owner})
	return created, nil
}

func (s *TaskStore) Update(ctx context.Context, id string, patch entity.TaskPatch, owner string) (entity.Task, error) {
	return s.mutate(ctx, id, owner, func(t entity.Task) (entity.Task, error) {
		return patch.Apply(t), nil
	})
}

// mutate loads a task, applies fn and writes the result back in one
// transaction.
func (s *TaskStore) mutate(ctx context.Context, id, owner string, fn func(entity.Task) (entity.Task, error)) (entity.Task, error) {
	var out entity.Task
	err := s.d.withTx(ctx, func(tx *sql.Tx) error {
		prev, err := s.get(ctx, tx, id, owner)
		if err != nil {
			return err
		}
		next, err := fn(prev)
		if err != nil {
			return err
		}
		now := s.d.now()
		if next.Completed && next.CompletedAt == nil {
			next.CompletedAt = &now
		}
		next.Steps = entity.NormalizeSteps(next.Steps)
		fillSteps(next.Steps, now)
		if err := next.Validate(); err != nil {
			return err
		}
		next = next.Stamped(prev.CreatedAt, s.d.stamp(prev.UpdatedAt))
		_, err = tx.ExecContext(ctx,
			`UPDATE tasks SET list_id = ?, title = ?, completed = ?, important = ?, notes = ?, due_at = ?, completed_at = ?, updated_at = ?
			 WHERE id = ? AND owner_id = ?`,
			next.ListID, next.Title, boolInt(next.Completed), boolInt(next.Important), next.Notes,
			formatOptional(next.DueAt), formatOptional(next.CompletedAt), entity.FormatTime(next.UpdatedAt),
			id, owner,
		)
		if err != nil {
			return translate(err)
		}
		if err := replaceSteps(ctx, tx, id, next.Steps); err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		return entity.Task{}, err
	}
	s.d.hub.Publish(Notice{Kind: entity.KindTasks, Owner: owner})
	return out, nil
}

// Delete removes a task; its steps go with it. Deleting a missing id
// succeeds.
func (s *TaskStore) Delete(ctx context.Context, id, owner string) error {
	res, err := s.d.sql.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND owner_id = ?`, id, owner)
	if err != nil {
		return translate(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if err := ownerCheck(ctx, s.d.sql, "tasks", entity.KindTasks, id); errors.Is(err, remote.ErrPermissionDenied) {
			return err
		}
		return nil
	}
	s.d.hub.Publish(Notice{Kind: entity.KindTasks, Owner: owner})
	return nil
}

func (s *TaskStore) Subscribe(ctx context.Context, owner string, onChange func([]entity.Task)) (func(), error) {
	return follow(ctx, s.d.hub, entity.KindTasks, owner, s.List, onChange)
}

// AddStep appends a step to a task.
func (s *TaskStore) AddStep(ctx context.Context, taskID string, step entity.Step, owner string) (entity.Task, error) {
	if strings.TrimSpace(step.Title) == "" {
		return entity.Task{}, &entity.ValidationError{Kind: entity.KindTasks, Field: "step title", Message: "is required"}
	}
	return s.mutate(ctx, taskID, owner, func(t entity.Task) (entity.Task, error) {
		t.Steps = entity.AddStep(t.Steps, step, s.d.now())
		return t, nil
	})
}

// UpdateStep patches one step of a task.
func (s *TaskStore) UpdateStep(ctx context.Context, taskID, stepID string, patch entity.StepPatch, owner string) (entity.Task, error) {
	return s.mutate(ctx, taskID, owner, func(t entity.Task) (entity.Task, error) {
		steps, err := entity.UpdateStep(t.Steps, stepID, patch, s.d.now())
		if err != nil {
			return t, remote.NotFound("steps", stepID)
		}
		t.Steps = steps
		return t, nil
	})
}

// RemoveStep deletes one step and renumbers the rest.
func (s *TaskStore) RemoveStep(ctx context.Context, taskID, stepID, owner string) (entity.Task, error) {
	return s.mutate(ctx, taskID, owner, func(t entity.Task) (entity.Task, error) {
		steps, err := entity.RemoveStep(t.Steps, stepID)
		if err != nil {
			return t, remote.NotFound("steps", stepID)
		}
		t.Steps = steps
		return t, nil
	})
}

const stepColumns = `s.id, s.title, s.completed, s.order_index, s.due_at, s.assignee, s.created_at, s.updated_at`

func scanStep(r rowScanner) (string, entity.Step, error) {
	var (
		taskID           string
		st               entity.Step
		completed        int
		due              sql.NullString
		created, updated string
	)
	if err := r.Scan(&taskID, &st.ID, &st.Title, &completed, &st.OrderIndex, &due, &st.Assignee, &created, &updated); err != nil {
		return "", st, err
	}
	st.Completed = completed == 1
	var err error
	if st.DueAt, err = parseOptional(due); err != nil {
		return "", st, err
	}
	st.CreatedAt, st.UpdatedAt, err = parseTimes(created, updated)
	return taskID, st, err
}

func loadSteps(ctx context.Context, q execer, taskID string) ([]entity.Step, error) {
	rows, err := q.QueryContext(ctx, `SELECT s.task_id, `+stepColumns+` FROM task_steps s WHERE s.task_id = ? ORDER BY s.order_index`, taskID)
	if err != nil {
		return nil, fmt.Errorf("server: load steps: %w", err)
	}
	defer rows.Close()
	var out []entity.Step
	for rows.Next() {
		_, st, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("server: scan step: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// fillSteps gives client-built steps an id and timestamps.
func fillSteps(steps []entity.Step, now time.Time) {
	for i := range steps {
		if steps[i].ID == "" {
			steps[i].ID = entity.NewID()
		}
		if steps[i].CreatedAt.IsZero() {
			steps[i].CreatedAt = now
		}
		if steps[i].UpdatedAt.IsZero() {
			steps[i].UpdatedAt = steps[i].CreatedAt
		}
	}
}

func replaceSteps(ctx context.Context, tx *sql.Tx, taskID string, steps []entity.Step) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM task_steps WHERE task_id = ?`, taskID); err != nil {
		return fmt.Errorf("server: clear steps: %w", err)
	}
	for _, st := range steps {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO task_steps (task_id, id, title, completed, order_index, due_at, assignee, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			taskID, st.ID, st.Title, boolInt(st.Completed), st.OrderIndex, formatOptional(st.DueAt), st.Assignee,
			entity.FormatTime(st.CreatedAt), entity.FormatTime(st.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("server: insert step: %w", err)
		}
	}
	return nil
}
