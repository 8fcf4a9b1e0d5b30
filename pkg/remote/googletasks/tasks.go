package googletasks

import (
	"context"
	"errors"
	"time"

	tasks "google.golang.org/api/tasks/v1"

	"tableflip.dev/taskpad/pkg/entity"
	"tableflip.dev/taskpad/pkg/remote"
)

const (
	statusCompleted   = "completed"
	statusNeedsAction = "needsAction"
)

// TaskStore maps Google tasks. Task ids are unique across an account, so
// the list each task lives in is remembered and only searched for on a miss.
type TaskStore struct {
	c *Client
}

func (s *TaskStore) fromAPI(t *tasks.Task, listID, owner string) entity.Task {
	updated := parseTime(t.Updated)
	out := entity.Task{
		ID:        t.Id,
		OwnerID:   owner,
		ListID:    listID,
		Title:     t.Title,
		Notes:     t.Notes,
		Completed: t.Status == statusCompleted,
		DueAt:     parseOptional(t.Due),
		CreatedAt: updated,
		UpdatedAt: updated,
	}
	if out.Completed && t.Completed != nil {
		out.CompletedAt = parseOptional(*t.Completed)
	}
	return s.c.overlay(out)
}

func toAPI(t entity.Task) *tasks.Task {
	out := &tasks.Task{
		Id:     t.ID,
		Title:  t.Title,
		Notes:  t.Notes,
		Status: statusNeedsAction,
	}
	if t.Completed {
		out.Status = statusCompleted
		if t.CompletedAt != nil {
			v := t.CompletedAt.UTC().Format(time.RFC3339)
			out.Completed = &v
		}
	}
	if t.DueAt != nil {
		// Google keeps only the date part of due.
		d := t.DueAt.In(time.Local)
		out.Due = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC).Format(time.RFC3339)
	}
	return out
}

func (s *TaskStore) List(ctx context.Context, owner string) ([]entity.Task, error) {
	lists, err := (&ListStore{c: s.c}).List(ctx, owner)
	if err != nil {
		return nil, err
	}
	var out []entity.Task
	for _, l := range lists {
		items, err := s.listIn(ctx, l.ID, owner)
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
	}
	return out, nil
}

func (s *TaskStore) listIn(ctx context.Context, listID, owner string) ([]entity.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()
	var out []entity.Task
	err := s.c.svc.Tasks.List(apiList(listID)).
		MaxResults(pageSize).
		ShowCompleted(true).
		ShowHidden(true).
		ShowDeleted(false).
		Pages(ctx, func(resp *tasks.Tasks) error {
			for _, t := range resp.Items {
				s.c.remember(t.Id, listID)
				out = append(out, s.fromAPI(t, listID, owner))
			}
			return nil
		})
	if err != nil {
		return nil, wrapError(err, entity.KindTasks, "")
	}
	return out, nil
}

// locate returns the entity list id holding task id.
func (s *TaskStore) locate(ctx context.Context, id, owner string) (string, *tasks.Task, error) {
	if listID, ok := s.c.knownList(id); ok {
		t, err := s.fetch(ctx, listID, id)
		if err == nil {
			return listID, t, nil
		}
		if !errors.Is(err, remote.ErrNotFound) {
			return "", nil, err
		}
	}
	lists, err := (&ListStore{c: s.c}).List(ctx, owner)
	if err != nil {
		return "", nil, err
	}
	for _, l := range lists {
		t, err := s.fetch(ctx, l.ID, id)
		if errors.Is(err, remote.ErrNotFound) {
			continue
		}
		if err != nil {
			return "", nil, err
		}
		s.c.remember(id, l.ID)
		return l.ID, t, nil
	}
	return "", nil, remote.NotFound(entity.KindTasks, id)
}

func (s *TaskStore) fetch(ctx context.Context, listID, id string) (*tasks.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()
	t, err := s.c.svc.Tasks.Get(apiList(listID), id).Context(ctx).Do()
	if err != nil {
		return nil, wrapError(err, entity.KindTasks, id)
	}
	if t.Deleted {
		return nil, remote.NotFound(entity.KindTasks, id)
	}
	return t, nil
}

func (s *TaskStore) Get(ctx context.Context, id, owner string) (entity.Task, error) {
	listID, t, err := s.locate(ctx, id, owner)
	if err != nil {
		return entity.Task{}, err
	}
	return s.fromAPI(t, listID, owner), nil
}

func (s *TaskStore) Create(ctx context.Context, draft entity.Task, owner string) (entity.Task, error) {
	if err := draft.Validate(); err != nil {
		return entity.Task{}, err
	}
	listID := draft.ListID
	if listID == "" {
		listID = entity.DefaultListID
	}
	if draft.Completed && draft.CompletedAt == nil {
		now := time.Now()
		draft.CompletedAt = &now
	}
	body := toAPI(draft)
	body.Id = ""
	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()
	t, err := s.c.svc.Tasks.Insert(apiList(listID), body).Context(ctx).Do()
	if err != nil {
		return entity.Task{}, wrapError(err, entity.KindTasks, "")
	}
	s.c.remember(t.Id, listID)
	draft.ID = t.Id
	draft.Steps = entity.NormalizeSteps(draft.Steps)
	s.c.setExtra(t.Id, draft)
	return s.fromAPI(t, listID, owner), nil
}

func (s *TaskStore) Update(ctx context.Context, id string, patch entity.TaskPatch, owner string) (entity.Task, error) {
	listID, t, err := s.locate(ctx, id, owner)
	if err != nil {
		return entity.Task{}, err
	}
	current := s.fromAPI(t, listID, owner)
	next := patch.Apply(current)
	if next.Completed && next.CompletedAt == nil {
		now := time.Now()
		next.CompletedAt = &now
	}
	if err := next.Validate(); err != nil {
		return entity.Task{}, err
	}

	if next.ListID != listID {
		if err := s.move(ctx, id, listID, next.ListID); err != nil {
			return entity.Task{}, err
		}
		listID = next.ListID
	}
	s.c.setExtra(id, next)

	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()
	updated, err := s.c.svc.Tasks.Update(apiList(listID), id, toAPI(next)).Context(ctx).Do()
	if err != nil {
		return entity.Task{}, wrapError(err, entity.KindTasks, id)
	}
	out := s.fromAPI(updated, listID, owner)
	if out.UpdatedAt.Before(current.UpdatedAt) {
		out.UpdatedAt = current.UpdatedAt
	}
	return out, nil
}

func (s *TaskStore) move(ctx context.Context, id, from, to string) error {
	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()
	_, err := s.c.svc.Tasks.Move(apiList(from), id).DestinationTasklist(apiList(to)).Context(ctx).Do()
	if err != nil {
		return wrapError(err, entity.KindTasks, id)
	}
	s.c.remember(id, to)
	return nil
}

// Delete of a task already gone succeeds.
func (s *TaskStore) Delete(ctx context.Context, id, owner string) error {
	listID, _, err := s.locate(ctx, id, owner)
	if errors.Is(err, remote.ErrNotFound) {
		s.c.forget(id)
		return nil
	}
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()
	err = wrapError(s.c.svc.Tasks.Delete(apiList(listID), id).Context(ctx).Do(), entity.KindTasks, id)
	if err != nil && !errors.Is(err, remote.ErrNotFound) {
		return err
	}
	s.c.forget(id)
	return nil
}
