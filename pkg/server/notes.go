package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"tableflip.dev/taskpad/pkg/entity"
	"tableflip.dev/taskpad/pkg/remote"
)

// NoteStore keeps Markdown notes.
type NoteStore struct{ d *DB }

func (d *DB) Notes() *NoteStore { return &NoteStore{d: d} }

var _ remote.Store[entity.Note, entity.NotePatch] = (*NoteStore)(nil)
var _ remote.Subscriber[entity.Note] = (*NoteStore)(nil)

const noteColumns = `id, owner_id, title, content, tags, created_at, updated_at`

func scanNote(r rowScanner) (entity.Note, error) {
	var (
		n                      entity.Note
		tags, created, updated string
	)
	if err := r.Scan(&n.ID, &n.OwnerID, &n.Title, &n.Content, &tags, &created, &updated); err != nil {
		return n, err
	}
	if err := json.Unmarshal([]byte(tags), &n.Tags); err != nil {
		return n, fmt.Errorf("server: decode tags: %w", err)
	}
	var err error
	n.CreatedAt, n.UpdatedAt, err = parseTimes(created, updated)
	return n, err
}

func encodeTags(tags []string) string {
	if tags == nil {
		tags = []string{}
	}
	b, _ := json.Marshal(tags)
	return string(b)
}

// List returns the owner's notes, newest first.
func (s *NoteStore) List(ctx context.Context, owner string) ([]entity.Note, error) {
	rows, err := s.d.sql.QueryContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE owner_id = ? ORDER BY created_at DESC`, owner)
	if err != nil {
		return nil, fmt.Errorf("server: list notes: %w", err)
	}
	defer rows.Close()
	out := []entity.Note{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("server: scan note: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *NoteStore) Get(ctx context.Context, id, owner string) (entity.Note, error) {
	return s.get(ctx, s.d.sql, id, owner)
}

func (s *NoteStore) get(ctx context.Context, q execer, id, owner string) (entity.Note, error) {
	n, err := scanNote(q.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = ? AND owner_id = ?`, id, owner))
	if errors.Is(err, sql.ErrNoRows) {
		return n, ownerCheck(ctx, q, "notes", entity.KindNotes, id)
	}
	if err != nil {
		return n, fmt.Errorf("server: get note: %w", err)
	}
	return n, nil
}

func (s *NoteStore) Create(ctx context.Context, draft entity.Note, owner string) (entity.Note, error) {
	if err := draft.Validate(); err != nil {
		return entity.Note{}, err
	}
	now := s.d.now()
	created := draft.WithKey(entity.NewID()).WithOwner(owner).Stamped(now, now)
	_, err := s.d.sql.ExecContext(ctx,
		`INSERT INTO notes (`+noteColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		created.ID, owner, created.Title, created.Content, encodeTags(created.Tags),
		entity.FormatTime(created.CreatedAt), entity.FormatTime(created.UpdatedAt),
	)
	if err != nil {
		return entity.Note{}, translate(err)
	}
	s.d.hub.Publish(Notice{Kind: entity.KindNotes, Owner: owner})
	return created, nil
}

func (s *NoteStore) Update(ctx context.Context, id string, patch entity.NotePatch, owner string) (entity.Note, error) {
	var out entity.Note
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
			`UPDATE notes SET title = ?, content = ?, tags = ?, updated_at = ? WHERE id = ? AND owner_id = ?`,
			next.Title, next.Content, encodeTags(next.Tags), entity.FormatTime(next.UpdatedAt), id, owner,
		); err != nil {
			return translate(err)
		}
		out = next
		return nil
	})
	if err != nil {
		return entity.Note{}, err
	}
	s.d.hub.Publish(Notice{Kind: entity.KindNotes, Owner: owner})
	return out, nil
}

func (s *NoteStore) Delete(ctx context.Context, id, owner string) error {
	res, err := s.d.sql.ExecContext(ctx, `DELETE FROM notes WHERE id = ? AND owner_id = ?`, id, owner)
	if err != nil {
		return translate(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if err := ownerCheck(ctx, s.d.sql, "notes", entity.KindNotes, id); errors.Is(err, remote.ErrPermissionDenied) {
			return err
		}
		return nil
	}
	s.d.hub.Publish(Notice{Kind: entity.KindNotes, Owner: owner})
	return nil
}

func (s *NoteStore) Subscribe(ctx context.Context, owner string, onChange func([]entity.Note)) (func(), error) {
	return follow(ctx, s.d.hub, entity.KindNotes, owner, s.List, onChange)
}
