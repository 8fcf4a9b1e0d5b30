// Package docstore is a hosted remote that keeps every entity as a JSONB
// document in Postgres. Writes raise a NOTIFY so subscribers on any process
// see the new set.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tableflip.dev/taskpad/pkg/entity"
	"tableflip.dev/taskpad/pkg/remote"
)

// Channel is the LISTEN/NOTIFY channel carrying "<kind>:<owner>" payloads.
const Channel = "taskpad_changes"

// DB owns the pool shared by the per-kind stores.
type DB struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// Open connects to dsn and ensures the documents table exists.
func Open(ctx context.Context, dsn string, log *slog.Logger) (*DB, error) {
	if log == nil {
		log = slog.Default()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("docstore: connect: %w", err)
	}
	db := &DB{pool: pool, log: log}
	if err := db.EnsureTable(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return db, nil
}

// EnsureTable creates the documents table if it doesn't exist.
func (db *DB) EnsureTable(ctx context.Context) error {
	_, err := db.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS documents (
			kind       TEXT NOT NULL,
			owner_id   TEXT NOT NULL,
			id         TEXT NOT NULL,
			body       JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (kind, owner_id, id)
		)`)
	if err != nil {
		return fmt.Errorf("docstore: create table: %w", err)
	}
	_, err = db.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_documents_id ON documents(kind, id)`)
	if err != nil {
		return fmt.Errorf("docstore: create index: %w", err)
	}
	return nil
}

// Close releases the pool.
func (db *DB) Close() {
	db.pool.Close()
}

// Backend returns stores for every kind.
func (db *DB) Backend() *remote.Backend {
	return &remote.Backend{
		Tasks: New[entity.Task, entity.TaskPatch](db, entity.KindTasks),
		Lists: New[entity.TaskList, entity.TaskListPatch](db, entity.KindLists),
		Notes: New[entity.Note, entity.NotePatch](db, entity.KindNotes),
	}
}

// Store is the remote for one kind.
type Store[E entity.Record[E], P entity.Patch[E, P]] struct {
	db   *DB
	kind entity.Kind
	now  func() time.Time
}

// New returns the store for kind.
func New[E entity.Record[E], P entity.Patch[E, P]](db *DB, kind entity.Kind) *Store[E, P] {
	return &Store[E, P]{
		db:   db,
		kind: kind,
		now:  func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

func (s *Store[E, P]) List(ctx context.Context, owner string) ([]E, error) {
	rows, err := s.db.pool.Query(ctx, `
		SELECT body FROM documents
		WHERE kind = $1 AND owner_id = $2
		ORDER BY created_at, id`, s.kind, owner)
	if err != nil {
		return nil, s.translate(err, "")
	}
	defer rows.Close()
	out := []E{}
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, s.translate(err, "")
		}
		item, err := s.decode(body)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, s.translate(err, "")
	}
	return out, nil
}

func (s *Store[E, P]) Get(ctx context.Context, id, owner string) (E, error) {
	return s.get(ctx, s.db.pool, id, owner, false)
}

// querier is satisfied by the pool and by transactions.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// get resolves id for owner. Another owner's id reports permission denied.
func (s *Store[E, P]) get(ctx context.Context, q querier, id, owner string, lock bool) (E, error) {
	var zero E
	sql := `SELECT owner_id, body FROM documents WHERE kind = $1 AND id = $2`
	if lock {
		sql += ` FOR UPDATE`
	}
	rows, err := q.Query(ctx, sql, s.kind, id)
	if err != nil {
		return zero, s.translate(err, id)
	}
	defer rows.Close()
	denied := false
	for rows.Next() {
		var rowOwner string
		var body []byte
		if err := rows.Scan(&rowOwner, &body); err != nil {
			return zero, s.translate(err, id)
		}
		if rowOwner == owner {
			return s.decode(body)
		}
		denied = true
	}
	if err := rows.Err(); err != nil {
		return zero, s.translate(err, id)
	}
	if denied {
		return zero, remote.Denied(s.kind, id)
	}
	return zero, remote.NotFound(s.kind, id)
}

func (s *Store[E, P]) Create(ctx context.Context, draft E, owner string) (E, error) {
	var zero E
	if err := draft.Validate(); err != nil {
		return zero, err
	}
	now := s.now()
	created := draft.WithKey(entity.ServerKey(draft)).WithOwner(owner).Stamped(now, now)
	body, err := json.Marshal(created)
	if err != nil {
		return zero, fmt.Errorf("docstore: encode %s: %w", s.kind, err)
	}

	var stored []byte
	err = s.db.pool.QueryRow(ctx, `
		WITH ins AS (
			INSERT INTO documents (kind, owner_id, id, body, created_at, updated_at)
			VALUES ($1, $2, $3, $4::jsonb, $5, $5)
			ON CONFLICT (kind, owner_id, id) DO NOTHING
			RETURNING body
		)
		SELECT body FROM ins
		UNION ALL
		SELECT body FROM documents WHERE kind = $1 AND owner_id = $2 AND id = $3
		LIMIT 1`, s.kind, owner, created.Key(), string(body), now).Scan(&stored)
	if err != nil {
		return zero, s.translate(err, created.Key())
	}
	s.notify(ctx, owner)
	// Reserved ids are created once; the existing document wins.
	return s.decode(stored)
}

func (s *Store[E, P]) Update(ctx context.Context, id string, patch P, owner string) (E, error) {
	var updated E
	err := pgx.BeginFunc(ctx, s.db.pool, func(tx pgx.Tx) error {
		item, err := s.get(ctx, tx, id, owner, true)
		if err != nil {
			return err
		}
		next := patch.Apply(item)
		if err := next.Validate(); err != nil {
			return err
		}
		now := s.now()
		if now.Before(item.Updated()) {
			now = item.Updated()
		}
		next = next.Stamped(item.Created(), now)
		body, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("docstore: encode %s: %w", s.kind, err)
		}
		_, err = tx.Exec(ctx, `
			UPDATE documents SET body = $4::jsonb, updated_at = $5
			WHERE kind = $1 AND owner_id = $2 AND id = $3`, s.kind, owner, id, string(body), now)
		if err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		var zero E
		return zero, s.translate(err, id)
	}
	s.notify(ctx, owner)
	return updated, nil
}

// Delete of an id that is already gone succeeds.
func (s *Store[E, P]) Delete(ctx context.Context, id, owner string) error {
	tag, err := s.db.pool.Exec(ctx, `DELETE FROM documents WHERE kind = $1 AND owner_id = $2 AND id = $3`, s.kind, owner, id)
	if err != nil {
		return s.translate(err, id)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.get(ctx, s.db.pool, id, owner, false); errors.Is(err, remote.ErrPermissionDenied) {
			return err
		}
		return nil
	}
	s.notify(ctx, owner)
	return nil
}

func (s *Store[E, P]) notify(ctx context.Context, owner string) {
	if _, err := s.db.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, Channel, payload(s.kind, owner)); err != nil {
		s.db.log.Warn("notify failed", "kind", s.kind, "err", err)
	}
}

func payload(kind entity.Kind, owner string) string {
	return string(kind) + ":" + owner
}

func (s *Store[E, P]) decode(body []byte) (E, error) {
	var item E
	if err := json.Unmarshal(body, &item); err != nil {
		return item, fmt.Errorf("docstore: decode %s: %w", s.kind, err)
	}
	return item, nil
}

// translate keeps the taxonomy of errors that already carry it and marks
// connection level failures as transient.
func (s *Store[E, P]) translate(err error, id string) error {
	switch {
	case errors.Is(err, remote.ErrNotFound), errors.Is(err, remote.ErrPermissionDenied),
		errors.Is(err, entity.ErrValidation):
		return err
	case errors.Is(err, pgx.ErrNoRows):
		return remote.NotFound(s.kind, id)
	case errors.Is(err, context.DeadlineExceeded), pgconn.SafeToRetry(err), pgconn.Timeout(err):
		return remote.Transient(err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08 is connection exceptions, 40 is transaction rollback.
		if len(pgErr.Code) == 5 && (pgErr.Code[:2] == "08" || pgErr.Code[:2] == "40" || pgErr.Code == "57P01") {
			return remote.Transient(err)
		}
		return fmt.Errorf("docstore: %s %q: %w", s.kind, id, err)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return remote.Transient(err)
	}
	return fmt.Errorf("docstore: %s %q: %w", s.kind, id, err)
}
