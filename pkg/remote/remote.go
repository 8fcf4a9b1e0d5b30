// Package remote defines the contract every backing store implements for the
// optimistic layer, and the error taxonomy shared by the implementations.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net"

	"tableflip.dev/taskpad/pkg/entity"
)

var (
	// ErrNotFound is returned when the id does not exist for the owner.
	ErrNotFound = errors.New("not found")
	// ErrPermissionDenied is returned when the entity belongs to another owner.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrTransient marks network and availability failures worth retrying.
	ErrTransient = errors.New("transient remote failure")
	// ErrUnsupported is returned by stores that cannot hold a kind.
	ErrUnsupported = errors.New("unsupported by this backend")
)

// Store is the per-kind remote contract. Implementations stamp ids and
// timestamps on create and updatedAt on update.
type Store[E any, P any] interface {
	List(ctx context.Context, owner string) ([]E, error)
	Get(ctx context.Context, id, owner string) (E, error)
	Create(ctx context.Context, draft E, owner string) (E, error)
	Update(ctx context.Context, id string, patch P, owner string) (E, error)
	Delete(ctx context.Context, id, owner string) error
}

// Subscriber is implemented by stores that push the full entity set for an
// owner whenever it changes. The returned func stops the subscription.
type Subscriber[E any] interface {
	Subscribe(ctx context.Context, owner string, onChange func([]E)) (func(), error)
}

// Backend bundles the stores for the three entity kinds.
type Backend struct {
	Tasks Store[entity.Task, entity.TaskPatch]
	Lists Store[entity.TaskList, entity.TaskListPatch]
	Notes Store[entity.Note, entity.NotePatch]
}

// Transient wraps err so that IsRetryable reports true for it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }

func (e *transientError) Unwrap() []error { return []error{e.err, ErrTransient} }

// IsRetryable reports whether err is a transient failure. Validation, not
// found and permission errors are never retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrPermissionDenied) ||
		errors.Is(err, entity.ErrValidation) || errors.Is(err, ErrUnsupported) ||
		errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr)
}

// NotFound builds the error returned for a missing id.
func NotFound(kind entity.Kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}

// Denied builds the error returned for an owner mismatch.
func Denied(kind entity.Kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrPermissionDenied)
}

// Unsupported is a Store that holds nothing. It lets a backend that only
// knows some kinds still satisfy Backend.
type Unsupported[E any, P any] struct {
	Kind entity.Kind
}

func (u Unsupported[E, P]) List(context.Context, string) ([]E, error) { return nil, nil }

func (u Unsupported[E, P]) Get(_ context.Context, id, _ string) (E, error) {
	var zero E
	return zero, u.err()
}

func (u Unsupported[E, P]) Create(context.Context, E, string) (E, error) {
	var zero E
	return zero, u.err()
}

func (u Unsupported[E, P]) Update(context.Context, string, P, string) (E, error) {
	var zero E
	return zero, u.err()
}

func (u Unsupported[E, P]) Delete(context.Context, string, string) error {
	return u.err()
}

func (u Unsupported[E, P]) err() error {
	return fmt.Errorf("%s: %w", u.Kind, ErrUnsupported)
}
