package googletasks

import (
	"context"
	"errors"

	tasks "google.golang.org/api/tasks/v1"

	"tableflip.dev/taskpad/pkg/entity"
	"tableflip.dev/taskpad/pkg/remote"
)

// ListStore maps Google task lists. Colors are not synchronized.
type ListStore struct {
	c *Client
}

func (s *ListStore) fromAPI(ctx context.Context, l *tasks.TaskList, owner string) (entity.TaskList, error) {
	id, err := s.c.entityList(ctx, l.Id)
	if err != nil {
		return entity.TaskList{}, err
	}
	updated := parseTime(l.Updated)
	return entity.TaskList{
		ID:        id,
		OwnerID:   owner,
		Name:      l.Title,
		Color:     entity.DefaultColor,
		IsDefault: id == entity.DefaultListID,
		CreatedAt: updated,
		UpdatedAt: updated,
	}, nil
}

func (s *ListStore) List(ctx context.Context, owner string) ([]entity.TaskList, error) {
	if _, err := s.c.defaultListID(ctx); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()
	var out []entity.TaskList
	err := s.c.svc.Tasklists.List().MaxResults(pageSize).Pages(ctx, func(resp *tasks.TaskLists) error {
		for _, l := range resp.Items {
			list, err := s.fromAPI(ctx, l, owner)
			if err != nil {
				return err
			}
			out = append(out, list)
		}
		return nil
	})
	if err != nil {
		return nil, wrapError(err, entity.KindLists, "")
	}
	return out, nil
}

func (s *ListStore) Get(ctx context.Context, id, owner string) (entity.TaskList, error) {
	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()
	l, err := s.c.svc.Tasklists.Get(apiList(id)).Context(ctx).Do()
	if err != nil {
		return entity.TaskList{}, wrapError(err, entity.KindLists, id)
	}
	return s.fromAPI(ctx, l, owner)
}

// Create of the default list returns the account's existing default.
func (s *ListStore) Create(ctx context.Context, draft entity.TaskList, owner string) (entity.TaskList, error) {
	if err := draft.Validate(); err != nil {
		return entity.TaskList{}, err
	}
	if draft.IsDefault {
		return s.Get(ctx, entity.DefaultListID, owner)
	}
	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()
	l, err := s.c.svc.Tasklists.Insert(&tasks.TaskList{Title: draft.Name}).Context(ctx).Do()
	if err != nil {
		return entity.TaskList{}, wrapError(err, entity.KindLists, "")
	}
	created, err := s.fromAPI(ctx, l, owner)
	if err != nil {
		return entity.TaskList{}, err
	}
	if draft.Color != "" {
		created.Color = draft.Color
	}
	return created, nil
}

func (s *ListStore) Update(ctx context.Context, id string, patch entity.TaskListPatch, owner string) (entity.TaskList, error) {
	current, err := s.Get(ctx, id, owner)
	if err != nil {
		return entity.TaskList{}, err
	}
	next := patch.Apply(current)
	if err := next.Validate(); err != nil {
		return entity.TaskList{}, err
	}
	if next.Name == current.Name {
		return next, nil
	}
	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()
	l, err := s.c.svc.Tasklists.Patch(apiList(id), &tasks.TaskList{Title: next.Name}).Context(ctx).Do()
	if err != nil {
		return entity.TaskList{}, wrapError(err, entity.KindLists, id)
	}
	updated, err := s.fromAPI(ctx, l, owner)
	if err != nil {
		return entity.TaskList{}, err
	}
	updated.Color = next.Color
	return updated, nil
}

// Delete refuses the default list. A list already gone succeeds.
func (s *ListStore) Delete(ctx context.Context, id, owner string) error {
	if id == entity.DefaultListID {
		return remote.Denied(entity.KindLists, id)
	}
	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()
	err := wrapError(s.c.svc.Tasklists.Delete(id).Context(ctx).Do(), entity.KindLists, id)
	if errors.Is(err, remote.ErrNotFound) {
		return nil
	}
	return err
}
