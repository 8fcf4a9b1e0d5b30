// Package entity defines the task, step, list and note records shared by the
// cache, the remote stores and the REST fallback.
package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind names an entity collection. It doubles as the mirror key suffix and
// the document store partition.
type Kind string

const (
	KindTasks Kind = "tasks"
	KindLists Kind = "taskLists"
	KindNotes Kind = "notes"
)

// Record is implemented by every entity kind handled by the optimistic layer.
// Methods return modified copies; records are values.
type Record[E any] interface {
	Key() string
	Owner() string
	Created() time.Time
	Updated() time.Time
	WithKey(id string) E
	WithOwner(owner string) E
	Stamped(created, updated time.Time) E
	Validate() error
}

// Patch is a partial update for records of type E. Merge folds a later patch
// over this one, later fields winning.
type Patch[E any, P any] interface {
	Apply(E) E
	Merge(next P) P
}

// SyncStatus tracks where a cached record is in its sync lifecycle. It is
// never sent to a remote store.
type SyncStatus string

const (
	StatusPending SyncStatus = "pending"
	StatusSyncing SyncStatus = "syncing"
	StatusSynced  SyncStatus = "synced"
	StatusError   SyncStatus = "error"
)

// PlaceholderPrefix marks identifiers generated before the remote store has
// assigned one. Server identifiers never start with it.
const PlaceholderPrefix = "local-"

// NewPlaceholderID returns a fresh client-side identifier.
func NewPlaceholderID() string {
	return PlaceholderPrefix + uuid.NewString()
}

// IsPlaceholder reports whether id was generated by NewPlaceholderID.
func IsPlaceholder(id string) bool {
	return strings.HasPrefix(id, PlaceholderPrefix)
}

// NewID returns a time-ordered server identifier.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// ServerKey returns the id a store assigns to draft on create: the record's
// reserved id when it has one, otherwise a fresh NewID.
func ServerKey(draft any) string {
	if r, ok := draft.(interface{ ReservedKey() string }); ok {
		if key := r.ReservedKey(); key != "" {
			return key
		}
	}
	return NewID()
}

// ParseTime accepts RFC3339 timestamps or bare dates (2006-01-02, local time).
func ParseTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02", v, time.Local)
}

// FormatTime renders t the way every store persists timestamps.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func laterOf(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
