package remote

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"tableflip.dev/taskpad/pkg/entity"
)

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transient", Transient(errors.New("connection reset")), true},
		{"wrapped transient", fmt.Errorf("call: %w", Transient(errors.New("eof"))), true},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"not found", NotFound(entity.KindTasks, "x"), false},
		{"denied", Denied(entity.KindTasks, "x"), false},
		{"validation", &entity.ValidationError{Kind: entity.KindTasks, Field: "title"}, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range cases {
		if got := IsRetryable(tc.err); got != tc.want {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestTransientKeepsCause(t *testing.T) {
	cause := errors.New("socket closed")
	err := Transient(cause)
	if !errors.Is(err, cause) || !errors.Is(err, ErrTransient) {
		t.Fatalf("expected both cause and ErrTransient to match")
	}
	if err.Error() != "socket closed" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestUnsupported(t *testing.T) {
	var s Store[entity.Task, entity.TaskPatch] = Unsupported[entity.Task, entity.TaskPatch]{Kind: entity.KindTasks}
	items, err := s.List(context.Background(), "o")
	if err != nil || len(items) != 0 {
		t.Fatalf("expected empty list, got %v %v", items, err)
	}
	if _, err := s.Create(context.Background(), entity.Task{Title: "x"}, "o"); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}
