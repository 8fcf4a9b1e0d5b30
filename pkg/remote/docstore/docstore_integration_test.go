//go:build integration

package docstore_test

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"tableflip.dev/taskpad/pkg/entity"
	"tableflip.dev/taskpad/pkg/remote"
	"tableflip.dev/taskpad/pkg/remote/docstore"
)

func dockerAvailable() bool {
	return exec.Command("docker", "info").Run() == nil
}

func openDB(t *testing.T) *docstore.DB {
	t.Helper()
	if !dockerAvailable() {
		t.Skip("docker not available")
	}
	ctx := context.Background()
	pg, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("taskpad"),
		postgres.WithUsername("taskpad"),
		postgres.WithPassword("taskpad"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("start postgres: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pg); err != nil {
			t.Logf("terminate: %v", err)
		}
	})
	dsn, err := pg.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("dsn: %v", err)
	}
	db, err := docstore.Open(ctx, dsn, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(db.Close)
	return db
}

func TestDocstore(t *testing.T) {
	db := openDB(t)
	b := db.Backend()
	ctx := context.Background()

	t.Run("reserved default list is created once per owner", func(t *testing.T) {
		first, err := b.Lists.Create(ctx, entity.TaskList{Name: entity.DefaultListName, IsDefault: true}, "alice")
		if err != nil || first.ID != entity.DefaultListID {
			t.Fatalf("create: %+v %v", first, err)
		}
		again, err := b.Lists.Create(ctx, entity.TaskList{Name: "other", IsDefault: true}, "alice")
		if err != nil || again.Name != entity.DefaultListName {
			t.Fatalf("second create should return the existing list: %+v %v", again, err)
		}
		if _, err := b.Lists.Create(ctx, entity.TaskList{Name: entity.DefaultListName, IsDefault: true}, "bob"); err != nil {
			t.Fatalf("bob's default: %v", err)
		}
	})

	t.Run("crud and ownership", func(t *testing.T) {
		task, err := b.Tasks.Create(ctx, entity.Task{Title: "write tests", ListID: entity.DefaultListID}, "alice")
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		done := true
		updated, err := b.Tasks.Update(ctx, task.ID, entity.TaskPatch{Completed: &done}, "alice")
		if err != nil || !updated.Completed || updated.UpdatedAt.Before(task.UpdatedAt) {
			t.Fatalf("update: %+v %v", updated, err)
		}
		if _, err := b.Tasks.Get(ctx, task.ID, "bob"); !errors.Is(err, remote.ErrPermissionDenied) {
			t.Fatalf("expected denied, got %v", err)
		}
		if err := b.Tasks.Delete(ctx, task.ID, "bob"); !errors.Is(err, remote.ErrPermissionDenied) {
			t.Fatalf("expected denied delete, got %v", err)
		}
		if err := b.Tasks.Delete(ctx, task.ID, "alice"); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if err := b.Tasks.Delete(ctx, task.ID, "alice"); err != nil {
			t.Fatalf("second delete should succeed: %v", err)
		}
		if _, err := b.Tasks.Get(ctx, task.ID, "alice"); !errors.Is(err, remote.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})

	t.Run("subscription follows notify", func(t *testing.T) {
		sub := b.Notes.(remote.Subscriber[entity.Note])
		got := make(chan []entity.Note, 8)
		stop, err := sub.Subscribe(ctx, "carol", func(n []entity.Note) { got <- n })
		if err != nil {
			t.Fatalf("subscribe: %v", err)
		}
		defer stop()
		<-got
		if _, err := b.Notes.Create(ctx, entity.Note{Title: "pg"}, "carol"); err != nil {
			t.Fatalf("create: %v", err)
		}
		select {
		case notes := <-got:
			if len(notes) != 1 {
				t.Fatalf("unexpected notes %+v", notes)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("no notification delivered")
		}
	})
}
