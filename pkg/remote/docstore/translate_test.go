package docstore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"tableflip.dev/taskpad/pkg/entity"
	"tableflip.dev/taskpad/pkg/remote"
)

func TestTranslate(t *testing.T) {
	s := New[entity.Task, entity.TaskPatch](&DB{}, entity.KindTasks)
	tests := []struct {
		name      string
		err       error
		is        error
		retryable bool
	}{
		{name: "no rows", err: pgx.ErrNoRows, is: remote.ErrNotFound},
		{name: "validation kept", err: &entity.ValidationError{Kind: entity.KindTasks, Field: "title"}, is: entity.ErrValidation},
		{name: "denied kept", err: remote.Denied(entity.KindTasks, "x"), is: remote.ErrPermissionDenied},
		{name: "deadline", err: fmt.Errorf("query: %w", context.DeadlineExceeded), retryable: true},
		{name: "admin shutdown", err: &pgconn.PgError{Code: "57P01"}, retryable: true},
		{name: "serialization failure", err: &pgconn.PgError{Code: "40001"}, retryable: true},
		{name: "syntax error", err: &pgconn.PgError{Code: "42601"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.translate(tt.err, "x")
			if tt.is != nil && !errors.Is(got, tt.is) {
				t.Fatalf("expected %v, got %v", tt.is, got)
			}
			if remote.IsRetryable(got) != tt.retryable {
				t.Fatalf("retryable = %v for %v", !tt.retryable, got)
			}
		})
	}
}

func TestPayload(t *testing.T) {
	if got := payload(entity.KindNotes, "alice"); got != "notes:alice" {
		t.Fatalf("unexpected payload %q", got)
	}
}
