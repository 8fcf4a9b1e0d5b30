package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tableflip.dev/taskpad/pkg/entity"
	"tableflip.dev/taskpad/pkg/remote"
)

// ListStore keeps task lists. Every owner has a seeded default list that
// cannot be deleted.
type ListStore struct{ d *DB }

func (d *DB) Lists() *ListStore { return &ListStore{d: d} }

var _ remote.Store[entity.TaskList, entity.TaskListPatch] = (*ListStore)(nil)
var _ remote.Subscriber[entity.TaskList] = (*ListStore)(nil)

const listColumns = `id, owner_id, name, color, is_default, created_at, updated_at`

func scanList(r rowScanner) (entity.TaskList, error) {
	var (
		l                entity.TaskList
		isDefault        int
		created, updated string
	)
	if err := r.Scan(&l.ID, &l.OwnerID, &l.Name, &l.Color, &isDefault, &created, &updated); err != nil {
		return l, err
	}
	l.IsDefault = isDefault == 1
	var err error
	l.CreatedAt, l.UpdatedAt, err = parseTimes(created, updated)
	return l, err
}

// List returns the owner's lists in creation order, seeding the default
// list on first use.
func (s *ListStore) List(ctx context.Context, owner string) ([]entity.TaskList, error) {
	if err := s.d.ensureDefault(ctx, s.d.sql, owner); err != nil {
		return nil, err
	}
	rows, err := s.d.sql.QueryContext(ctx,
		`SELECT `+listColumns+` FROM lists WHERE owner_id = ? ORDER BY is_default DESC, created_at ASC`, owner)
	if err != nil {
		return nil, fmt.Errorf("server: list lists: %w", err)
	}
	defer rows.Close()
	out := []entity.TaskList{}
	for rows.Next() {
		l, err := scanList(rows)
		if err != nil {
			return nil, fmt.Errorf("server: scan list: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *ListStore) Get(ctx context.Context, id, owner string) (entity.TaskList, error) {
	if err := s.d.ensureDefault(ctx, s.d.sql, owner); err != nil {
		return entity.TaskList{}, err
	}
	return s.get(ctx, s.d.sql, id, owner)
}

func (s *ListStore) get(ctx context.Context, q execer, id, owner string) (entity.TaskList, error) {
	l, err := scanList(q.QueryRowContext(ctx, `SELECT `+listColumns+` FROM lists WHERE id = ? AND owner_id = ?`, id, owner))
	if errors.Is(err, sql.ErrNoRows) {
		return l, remote.NotFound(entity.KindLists, id)
	}
	if err != nil {
		return l, fmt.Errorf("server: get list: %w", err)
	}
	return l, nil
}

// Create inserts a list. Creating the default list returns the seeded row.
func (s *ListStore) Create(ctx context.Context, draft entity.TaskList, owner string) (entity.TaskList, error) {
	if err := draft.Validate(); err != nil {
		return entity.TaskList{}, err
	}
	if err := s.d.ensureDefault(ctx, s.d.sql, owner); err != nil {
		return entity.TaskList{}, err
	}
	if draft.IsDefault {
		return s.get(ctx, s.d.sql, entity.DefaultListID, owner)
	}
	now := s.d.now()
	created := draft.WithKey(entity.NewID()).WithOwner(owner).Stamped(now, now)
	_, err := s.d.sql.ExecContext(ctx,
		`INSERT INTO lists (`+listColumns+`) VALUES (?, ?, ?, ?, 0, ?, ?)`,
		created.ID, owner, created.Name, created.Color,
		entity.FormatTime(created.CreatedAt), entity.FormatTime(created.UpdatedAt),
	)
	if err != nil {
		return entity.TaskList{}, translate(err)
	}
	s.d.hub.Publish(Notice{Kind: entity.KindLists, Owner: owner})
	return created, nil
}

func (s *ListStore) Update(ctx context.Context, id string, patch entity.TaskListPatch, owner string) (entity.TaskList, error) {
	var out entity.TaskList
	err := s.d.withTx(ctx, func(tx *sql.Tx) error {
		prev, err := s.get(ctx, tx, id, owner)
		if err != nil {
			return err
		}
		next := patch.Apply(prev)
		if err := next.Validate(); err != nil {
			return err
		}
		next = next.Stamped(prev.CreatedAt, s.d.stamp(prev.UpdatedAt))
		if _, err := tx.ExecContext(ctx,
			`UPDATE lists SET name = ?, color = ?, updated_at = ? WHERE id = ? AND owner_id = ?`,
			next.Name, next.Color, entity.FormatTime(next.UpdatedAt), id, owner,
		); err != nil {
			return translate(err)
		}
		out = next
		return nil
	})
	if err != nil {
		return entity.TaskList{}, err
	}
	s.d.hub.Publish(Notice{Kind: entity.KindLists, Owner: owner})
	return out, nil
}

// Delete removes a list and moves its tasks to the default list in the same
// transaction. The default list is refused.
func (s *ListStore) Delete(ctx context.Context, id, owner string) error {
	if id == entity.DefaultListID {
		return remote.Denied(entity.KindLists, id)
	}
	moved := int64(0)
	err := s.d.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.d.ensureDefault(ctx, tx, owner); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE tasks SET list_id = ?, updated_at = ? WHERE owner_id = ? AND list_id = ?`,
			entity.DefaultListID, entity.FormatTime(s.d.now()), owner, id,
		)
		if err != nil {
			return fmt.Errorf("server: reassign tasks: %w", err)
		}
		moved, _ = res.RowsAffected()
		if _, err := tx.ExecContext(ctx, `DELETE FROM lists WHERE id = ? AND owner_id = ?`, id, owner); err != nil {
			return translate(err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.d.hub.Publish(Notice{Kind: entity.KindLists, Owner: owner})
	if moved > 0 {
		s.d.hub.Publish(Notice{Kind: entity.KindTasks, Owner: owner})
	}
	return nil
}

func (s *ListStore) Subscribe(ctx context.Context, owner string, onChange func([]entity.TaskList)) (func(), error) {
	return follow(ctx, s.d.hub, entity.KindLists, owner, s.List, onChange)
}
