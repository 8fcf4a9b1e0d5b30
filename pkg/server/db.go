// Package server is the embedded SQL fallback: a sqlite database exposed
// both as an in-process remote backend and as a REST API with a websocket
// change feed.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"

	"tableflip.dev/taskpad/pkg/entity"
	"tableflip.dev/taskpad/pkg/remote"
)

const schema = `
CREATE TABLE IF NOT EXISTS lists (
	owner_id   TEXT NOT NULL,
	id         TEXT NOT NULL,
	name       TEXT NOT NULL,
	color      TEXT NOT NULL,
	is_default INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (owner_id, id)
);
CREATE TABLE IF NOT EXISTS tasks (
	id           TEXT NOT NULL PRIMARY KEY,
	owner_id     TEXT NOT NULL,
	list_id      TEXT NOT NULL,
	title        TEXT NOT NULL,
	completed    INTEGER NOT NULL DEFAULT 0,
	important    INTEGER NOT NULL DEFAULT 0,
	notes        TEXT NOT NULL DEFAULT '',
	due_at       TEXT,
	completed_at TEXT,
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL,
	FOREIGN KEY (owner_id, list_id) REFERENCES lists (owner_id, id)
);
CREATE INDEX IF NOT EXISTS tasks_owner_list ON tasks (owner_id, list_id);
CREATE TABLE IF NOT EXISTS task_steps (
	task_id     TEXT NOT NULL REFERENCES tasks (id) ON DELETE CASCADE,
	id          TEXT NOT NULL,
	title       TEXT NOT NULL,
	completed   INTEGER NOT NULL DEFAULT 0,
	order_index INTEGER NOT NULL,
	due_at      TEXT,
	assignee    TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL,
	PRIMARY KEY (task_id, id)
);
CREATE TABLE IF NOT EXISTS notes (
	id         TEXT NOT NULL PRIMARY KEY,
	owner_id   TEXT NOT NULL,
	title      TEXT NOT NULL,
	content    TEXT NOT NULL DEFAULT '',
	tags       TEXT NOT NULL DEFAULT '[]',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS notes_owner ON notes (owner_id);
`

// DB is the sqlite database behind the fallback backend.
type DB struct {
	sql *sql.DB
	hub *Hub
	now func() time.Time
	log *slog.Logger
}

// Open opens (creating if needed) the database at path and ensures the
// schema exists.
func Open(ctx context.Context, path string, log *slog.Logger) (*DB, error) {
	if log == nil {
		log = slog.Default()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("server: create database dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("server: open database: %w", err)
	}
	// One connection keeps :memory: databases shared and writes serialized.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("server: migrate: %w", err)
	}
	log.Info("Ensured initial tables exist", "path", path)
	return &DB{sql: db, hub: NewHub(), now: time.Now, log: log}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.sql.Close()
}

// Hub returns the change notice hub fed by every write.
func (d *DB) Hub() *Hub { return d.hub }

// Backend exposes the database as a remote backend for in-process use.
func (d *DB) Backend() *remote.Backend {
	return &remote.Backend{
		Tasks: d.Tasks(),
		Lists: d.Lists(),
		Notes: d.Notes(),
	}
}

// withTx runs fn inside BEGIN/COMMIT, rolling back when fn fails.
func (d *DB) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return remote.Transient(fmt.Errorf("server: begin: %w", err))
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			d.log.Error("rollback failed", "err", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return remote.Transient(fmt.Errorf("server: commit: %w", err))
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ensureDefault seeds the owner's non-deletable default list.
func (d *DB) ensureDefault(ctx context.Context, q execer, owner string) error {
	now := entity.FormatTime(d.now())
	_, err := q.ExecContext(ctx,
		`INSERT OR IGNORE INTO lists (owner_id, id, name, color, is_default, created_at, updated_at) VALUES (?, ?, ?, ?, 1, ?, ?)`,
		owner, entity.DefaultListID, entity.DefaultListName, entity.DefaultColor, now, now,
	)
	if err != nil {
		return fmt.Errorf("server: seed default list: %w", err)
	}
	return nil
}

// ownerCheck turns a missing row into NotFound, or PermissionDenied when the
// id exists for another owner.
func ownerCheck(ctx context.Context, q execer, table string, kind entity.Kind, id string) error {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table+` WHERE id = ?`, id).Scan(&n); err != nil {
		return fmt.Errorf("server: lookup %s: %w", kind, err)
	}
	if n > 0 {
		return remote.Denied(kind, id)
	}
	return remote.NotFound(kind, id)
}

// translate maps driver errors onto the remote taxonomy.
func translate(err error) error {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return err
	}
	switch {
	case se.ExtendedCode == sqlite3.ErrConstraintForeignKey:
		return &entity.ValidationError{Kind: entity.KindTasks, Field: "listId", Message: "references an unknown list"}
	case se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked:
		return remote.Transient(err)
	}
	return err
}

func formatOptional(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: entity.FormatTime(*t), Valid: true}
}

func parseOptional(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseTimes(created, updated string) (time.Time, time.Time, error) {
	c, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	u, err := time.Parse(time.RFC3339Nano, updated)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return c, u, nil
}

func (d *DB) stamp(prev time.Time) time.Time {
	now := d.now()
	if now.Before(prev) {
		return prev
	}
	return now
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
