package cache

import (
	"testing"
	"time"

	"tableflip.dev/taskpad/pkg/entity"
)

func task(id string, created time.Time) Item[entity.Task] {
	return Item[entity.Task]{
		Entity: entity.Task{ID: id, Title: id, CreatedAt: created, UpdatedAt: created},
		Status: entity.StatusSynced,
	}
}

func ids(items []Item[entity.Task]) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.Entity.ID
	}
	return out
}

func TestListOrder(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newest := New[entity.Task](NewestFirst)
	oldest := New[entity.Task](OldestFirst)
	for i, id := range []string{"a", "b", "c"} {
		newest.Upsert(task(id, base.Add(time.Duration(i)*time.Minute)))
		oldest.Upsert(task(id, base.Add(time.Duration(i)*time.Minute)))
	}
	if got := ids(newest.List()); got[0] != "c" || got[2] != "a" {
		t.Fatalf("expected newest first, got %v", got)
	}
	if got := ids(oldest.List()); got[0] != "a" || got[2] != "c" {
		t.Fatalf("expected oldest first, got %v", got)
	}
}

func TestSameTimestampFallsBackToInsertion(t *testing.T) {
	now := time.Now()
	c := New[entity.Task](NewestFirst)
	c.Upsert(task("first", now))
	c.Upsert(task("second", now))
	if got := ids(c.List()); got[0] != "second" {
		t.Fatalf("expected later insert first, got %v", got)
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	c := New[entity.Task](NewestFirst)
	c.Upsert(task("a", time.Now()))
	c.Remove("a")
	c.Remove("a")
	if c.Len() != 0 {
		t.Fatalf("expected empty cache")
	}
}

func TestRekeyKeepsPositionAndNeverDuplicates(t *testing.T) {
	base := time.Now()
	c := New[entity.Task](NewestFirst)
	c.Upsert(task("local-1", base))
	c.Upsert(task("b", base.Add(-time.Minute)))

	server := task("srv-1", base)
	c.Rekey("local-1", server)
	if _, ok := c.Get("local-1"); ok {
		t.Fatalf("placeholder must be gone")
	}
	if got := ids(c.List()); len(got) != 2 || got[0] != "srv-1" {
		t.Fatalf("unexpected order %v", got)
	}

	// A subscription may have delivered the server entity first.
	c.Upsert(task("local-2", base))
	c.Upsert(task("srv-2", base))
	c.Rekey("local-2", task("srv-2", base))
	if c.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", c.Len())
	}
}

func TestVisibleHidesFailedCreates(t *testing.T) {
	c := New[entity.Task](NewestFirst)
	failed := task("local-x", time.Now())
	failed.Status = entity.StatusError
	failed.Action = ActionCreate
	c.Upsert(failed)
	updErr := task("b", time.Now())
	updErr.Status = entity.StatusError
	updErr.Action = ActionUpdate
	c.Upsert(updErr)

	if got := ids(c.Visible()); len(got) != 1 || got[0] != "b" {
		t.Fatalf("expected only the failed update to stay visible, got %v", got)
	}
	if len(c.List()) != 2 {
		t.Fatalf("List must include every entry")
	}
}

func TestReplaceEmitsDiff(t *testing.T) {
	now := time.Now()
	c := New[entity.Task](NewestFirst)
	c.Upsert(task("keep", now))
	c.Upsert(task("drop", now))
	events, cancel := c.Subscribe()
	defer cancel()

	changed := task("keep", now)
	changed.Entity.Title = "renamed"
	c.Replace([]Item[entity.Task]{changed, task("new", now)})

	got := map[ChangeType][]string{}
	for _, ch := range drain(events) {
		got[ch.Action] = append(got[ch.Action], ch.ID)
	}
	if len(got[ChangeCreate]) != 1 || got[ChangeCreate][0] != "new" {
		t.Fatalf("unexpected creates %v", got[ChangeCreate])
	}
	if len(got[ChangeUpdate]) != 1 || got[ChangeUpdate][0] != "keep" {
		t.Fatalf("unexpected updates %v", got[ChangeUpdate])
	}
	if len(got[ChangeDelete]) != 1 || got[ChangeDelete][0] != "drop" {
		t.Fatalf("unexpected deletes %v", got[ChangeDelete])
	}
}

func TestEmitNeverBlocks(t *testing.T) {
	c := New[entity.Task](NewestFirst)
	_, cancel := c.Subscribe()
	defer cancel()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			c.Upsert(task("a", time.Now()))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("upsert blocked on a full event channel")
	}
}

func drain(events <-chan Change) []Change {
	var out []Change
	for {
		select {
		case ch := <-events:
			out = append(out, ch)
		default:
			return out
		}
	}
}

func TestSubscribeSeesOnlyLaterChanges(t *testing.T) {
	now := time.Now()
	c := New[entity.Task](NewestFirst)
	for i := 0; i < 100; i++ {
		c.Upsert(task("early", now))
	}

	events, cancel := c.Subscribe()
	c.Upsert(task("late", now))
	got := drain(events)
	if len(got) != 1 || got[0].ID != "late" || got[0].Action != ChangeCreate {
		t.Fatalf("expected only the late create, got %+v", got)
	}

	cancel()
	cancel()
	c.Upsert(task("after", now))
	if _, ok := <-events; ok {
		t.Fatalf("expected a closed channel after cancel")
	}
}
