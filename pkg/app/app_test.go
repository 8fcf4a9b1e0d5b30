package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"tableflip.dev/taskpad/pkg/cache"
	"tableflip.dev/taskpad/pkg/entity"
	"tableflip.dev/taskpad/pkg/remote"
	"tableflip.dev/taskpad/pkg/remote/memory"
	"tableflip.dev/taskpad/pkg/store"
)

type (
	taskStore = memory.Store[entity.Task, entity.TaskPatch]
	listStore = memory.Store[entity.TaskList, entity.TaskListPatch]
	noteStore = memory.Store[entity.Note, entity.NotePatch]
)

type fixture struct {
	ws    *Workspace
	tasks *taskStore
	lists *listStore
	notes *noteStore
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	backend := memory.NewBackend()
	ws, err := New(backend, Options{
		Owner: "alice",
		Sync: store.SyncSettings{
			Debounce: time.Hour,
			Timeout:  time.Second,
			Grace:    time.Hour,
		},
	})
	if err != nil {
		t.Fatalf("new workspace: %v", err)
	}
	t.Cleanup(ws.Close)
	if err := ws.Start(testContext(t)); err != nil {
		t.Fatalf("start: %v", err)
	}
	return fixture{
		ws:    ws,
		tasks: backend.Tasks.(*taskStore),
		lists: backend.Lists.(*listStore),
		notes: backend.Notes.(*noteStore),
	}
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func (f fixture) flush(t *testing.T) {
	t.Helper()
	if err := f.ws.Flush(testContext(t)); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

func TestNewRequiresBackendAndOwner(t *testing.T) {
	if _, err := New(nil, Options{Owner: "a"}); err == nil {
		t.Fatalf("expected error without backend")
	}
	if _, err := New(memory.NewBackend(), Options{}); err == nil {
		t.Fatalf("expected error without owner")
	}
}

func TestStartCreatesDefaultListOnce(t *testing.T) {
	f := newFixture(t)
	def, ok := f.ws.DefaultList()
	if !ok || def.ID != entity.DefaultListID || def.Name != entity.DefaultListName {
		t.Fatalf("unexpected default list %+v %v", def, ok)
	}
	if _, err := f.ws.EnsureDefaultList(testContext(t)); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if n := len(f.lists.Calls(memory.OpCreate)); n != 1 {
		t.Fatalf("expected one remote create, got %d", n)
	}
}

func TestCreateTaskDefaultsToDefaultList(t *testing.T) {
	f := newFixture(t)
	task, err := f.ws.CreateTask(testContext(t), entity.Task{Title: "water plants"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.ListID != entity.DefaultListID {
		t.Fatalf("expected default list, got %q", task.ListID)
	}
}

func TestCreateTaskRejectsUnknownList(t *testing.T) {
	f := newFixture(t)
	_, err := f.ws.CreateTask(testContext(t), entity.Task{Title: "x", ListID: "nope"})
	if !errors.Is(err, ErrUnknownList) {
		t.Fatalf("expected ErrUnknownList, got %v", err)
	}
	if len(f.ws.Tasks(TaskFilter{})) != 0 {
		t.Fatalf("nothing should be cached")
	}
}

func TestCreateTaskWaitsForPendingList(t *testing.T) {
	f := newFixture(t)
	list, err := f.ws.CreateList("Errands", "")
	if err != nil {
		t.Fatalf("create list: %v", err)
	}
	task, err := f.ws.CreateTask(testContext(t), entity.Task{Title: "post office", ListID: list.ID})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if entity.IsPlaceholder(task.ListID) || task.ListID != f.ws.lists.Resolve(list.ID) {
		t.Fatalf("expected confirmed list id, got %q", task.ListID)
	}
}

func TestDeleteDefaultListIsRejected(t *testing.T) {
	f := newFixture(t)
	err := f.ws.DeleteList(testContext(t), entity.DefaultListID, DeleteListOptions{})
	if !errors.Is(err, ErrDefaultList) {
		t.Fatalf("expected ErrDefaultList, got %v", err)
	}
	if len(f.lists.Calls(memory.OpDelete)) != 0 {
		t.Fatalf("no remote delete expected")
	}
}

func seedList(t *testing.T, f fixture, name string, titles ...string) (entity.TaskList, []entity.Task) {
	t.Helper()
	ctx := testContext(t)
	list, err := f.ws.CreateList(name, "#ff0000")
	if err != nil {
		t.Fatalf("create list: %v", err)
	}
	var tasks []entity.Task
	for _, title := range titles {
		task, err := f.ws.CreateTask(ctx, entity.Task{Title: title, ListID: list.ID})
		if err != nil {
			t.Fatalf("create task: %v", err)
		}
		tasks = append(tasks, task)
	}
	f.flush(t)
	item, _ := f.ws.List(list.ID)
	return item.Entity, tasks
}

func TestDeleteListReassignsTasksToDefault(t *testing.T) {
	f := newFixture(t)
	list, _ := seedList(t, f, "Work", "a", "b")

	if err := f.ws.DeleteList(testContext(t), list.ID, DeleteListOptions{}); err != nil {
		t.Fatalf("delete list: %v", err)
	}
	for _, task := range f.tasks.Items("alice") {
		if task.ListID != entity.DefaultListID {
			t.Fatalf("task %q still points at %q", task.Title, task.ListID)
		}
	}
	if n := len(f.tasks.Items("alice")); n != 2 {
		t.Fatalf("expected tasks to survive, got %d", n)
	}
	for _, l := range f.lists.Items("alice") {
		if l.ID == list.ID {
			t.Fatalf("list should be gone")
		}
	}
}

func TestDeleteListCascade(t *testing.T) {
	f := newFixture(t)
	list, _ := seedList(t, f, "Trip", "pack", "book")
	keep, err := f.ws.CreateTask(testContext(t), entity.Task{Title: "unrelated"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	f.flush(t)

	if err := f.ws.DeleteList(testContext(t), list.ID, DeleteListOptions{Cascade: true}); err != nil {
		t.Fatalf("delete list: %v", err)
	}
	items := f.tasks.Items("alice")
	if len(items) != 1 || items[0].ID != f.ws.tasks.Resolve(keep.ID) {
		t.Fatalf("expected only the unrelated task, got %+v", items)
	}
}

func TestDeleteListKeepsListWhenMoveFails(t *testing.T) {
	f := newFixture(t)
	list, _ := seedList(t, f, "Home", "dishes")
	f.tasks.FailWhen(func(c memory.Call) error {
		if c.Op == memory.OpUpdate {
			return remote.Denied(entity.KindTasks, c.ID)
		}
		return nil
	})

	err := f.ws.DeleteList(testContext(t), list.ID, DeleteListOptions{})
	if !errors.Is(err, remote.ErrPermissionDenied) {
		t.Fatalf("expected permission error, got %v", err)
	}
	if len(f.lists.Calls(memory.OpDelete)) != 0 {
		t.Fatalf("list must not be deleted while its tasks remain")
	}
	if items := f.tasks.Items("alice"); items[0].ListID != list.ID {
		t.Fatalf("remote task should still reference the list, got %q", items[0].ListID)
	}
}

func TestImportIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	f.tasks.FailWhen(func(c memory.Call) error {
		if d, ok := c.Draft.(entity.Task); ok && c.Op == memory.OpCreate && d.Title == "two" {
			return errors.New("remote rejected")
		}
		return nil
	})

	res, err := f.ws.Import(testContext(t), "- [ ] one\n- [ ] two\n- [x] three\n  - [ ] sub", "")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Success != 2 || res.Failed != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	stored := f.tasks.Items("alice")
	if len(stored) != 2 {
		t.Fatalf("expected 2 stored tasks, got %d", len(stored))
	}
	for _, task := range stored {
		if task.Title == "three" && (!task.Completed || task.CompletedAt == nil || len(task.Steps) != 1) {
			t.Fatalf("unexpected imported task %+v", task)
		}
	}
}

func TestImportUnknownList(t *testing.T) {
	f := newFixture(t)
	if _, err := f.ws.Import(testContext(t), "- [ ] one", "missing"); !errors.Is(err, ErrUnknownList) {
		t.Fatalf("expected ErrUnknownList, got %v", err)
	}
}

func TestToggleCompleteStampsCompletion(t *testing.T) {
	f := newFixture(t)
	task, _ := f.ws.CreateTask(testContext(t), entity.Task{Title: "call"})

	done, err := f.ws.ToggleComplete(task.ID)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !done.Completed || done.CompletedAt == nil {
		t.Fatalf("expected completion stamp, got %+v", done)
	}
	open, err := f.ws.ToggleComplete(task.ID)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if open.Completed || open.CompletedAt != nil {
		t.Fatalf("expected reopened task, got %+v", open)
	}
	if _, err := f.ws.ToggleComplete("missing"); !errors.Is(err, remote.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStepsStayDense(t *testing.T) {
	f := newFixture(t)
	task, _ := f.ws.CreateTask(testContext(t), entity.Task{Title: "launch"})
	for _, title := range []string{"design", "build", "ship"} {
		var err error
		if task, err = f.ws.AddStep(task.ID, title); err != nil {
			t.Fatalf("add step: %v", err)
		}
	}
	first := task.Steps[0].ID
	task, err := f.ws.MoveStep(task.ID, first, 2)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if task, err = f.ws.ToggleStep(task.ID, first); err != nil {
		t.Fatalf("toggle step: %v", err)
	}
	if task, err = f.ws.RemoveStep(task.ID, task.Steps[0].ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	f.flush(t)

	stored, err := f.ws.AwaitTask(testContext(t), task.ID)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if !entity.StepsDense(stored.Steps) || len(stored.Steps) != 2 {
		t.Fatalf("steps not dense: %+v", stored.Steps)
	}
	last := stored.Steps[1]
	if last.ID != first || !last.Completed {
		t.Fatalf("expected moved and completed step last, got %+v", last)
	}
	if _, err := f.ws.ToggleStep(task.ID, "nope"); !errors.Is(err, entity.ErrStepNotFound) {
		t.Fatalf("expected ErrStepNotFound, got %v", err)
	}
}

func TestTaskFilters(t *testing.T) {
	f := newFixture(t)
	ctx := testContext(t)
	soon := time.Now().Add(2 * time.Hour)
	later := time.Now().Add(72 * time.Hour)
	star, _ := f.ws.CreateTask(ctx, entity.Task{Title: "starred", Important: true})
	f.ws.CreateTask(ctx, entity.Task{Title: "due soon", DueAt: &soon})
	f.ws.CreateTask(ctx, entity.Task{Title: "due later", DueAt: &later, Notes: "Quarterly review"})

	if got := f.ws.Tasks(TaskFilter{Important: true}); len(got) != 1 || got[0].Entity.ID != star.ID {
		t.Fatalf("important filter: %+v", got)
	}
	if got := f.ws.Tasks(TaskFilter{Planned: true}); len(got) != 2 {
		t.Fatalf("planned filter: %d", len(got))
	}
	if got := f.ws.Tasks(TaskFilter{DueWithin: 24 * time.Hour}); len(got) != 1 || got[0].Entity.Title != "due soon" {
		t.Fatalf("due-within filter: %+v", got)
	}
	if got := f.ws.Tasks(TaskFilter{Query: "quarterly"}); len(got) != 1 {
		t.Fatalf("query filter: %+v", got)
	}
	if got := f.ws.Tasks(TaskFilter{ListID: entity.DefaultListID}); len(got) != 3 {
		t.Fatalf("list filter: %d", len(got))
	}
}

func TestNotesByTagAndSearch(t *testing.T) {
	f := newFixture(t)
	if _, err := f.ws.CreateNote("", "standup #work #daily"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.ws.CreateNote("Groceries", "eggs, #home"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.ws.CreateNote("  ", "  "); !errors.Is(err, entity.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	f.flush(t)

	work := f.ws.Notes("#WORK")
	if len(work) != 1 || work[0].Entity.Title != entity.UntitledNote {
		t.Fatalf("unexpected tag filter %+v", work)
	}
	if got := f.ws.SearchNotes("EGGS"); len(got) != 1 || got[0].Entity.Title != "Groceries" {
		t.Fatalf("unexpected search %+v", got)
	}

	content := "eggs, milk #shopping"
	id := f.ws.SearchNotes("eggs")[0].Entity.ID
	updated, err := f.ws.UpdateNote(id, entity.NotePatch{Content: &content})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if strings.Join(updated.Tags, ",") != "shopping" {
		t.Fatalf("tags not re-derived: %v", updated.Tags)
	}
}

func TestReportGroupsCompletedTasks(t *testing.T) {
	f := newFixture(t)
	ctx := testContext(t)
	list, _ := seedList(t, f, "Errands")
	a, _ := f.ws.CreateTask(ctx, entity.Task{Title: "bank", ListID: list.ID})
	b, _ := f.ws.CreateTask(ctx, entity.Task{Title: "laundry"})
	f.ws.CreateTask(ctx, entity.Task{Title: "still open"})
	f.ws.ToggleComplete(a.ID)
	f.ws.ToggleComplete(b.ID)

	now := time.Now()
	res := f.ws.Report(now.Add(time.Hour), now.Add(-time.Hour))
	if res.Total != 2 || len(res.Sections) != 2 {
		t.Fatalf("unexpected report %+v", res)
	}
	if res.Sections[0].List != "Errands" || res.Sections[1].List != entity.DefaultListName {
		t.Fatalf("sections not sorted by list name: %+v", res.Sections)
	}
	if empty := f.ws.Report(now.Add(-48*time.Hour), now.Add(-24*time.Hour)); empty.Total != 0 {
		t.Fatalf("expected empty window, got %+v", empty)
	}
}

func TestConcurrentEditsAreNotLost(t *testing.T) {
	f := newFixture(t)
	task, err := f.ws.CreateTask(testContext(t), entity.Task{Title: "pack"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	f.flush(t)

	const (
		steps   = 400
		toggles = 50
	)
	var wg sync.WaitGroup
	for i := 0; i < steps; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.ws.AddStep(task.ID, "s"); err != nil {
				t.Errorf("add step: %v", err)
			}
		}()
	}
	for i := 0; i < toggles; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.ws.ToggleImportant(task.ID); err != nil {
				t.Errorf("toggle: %v", err)
			}
		}()
	}
	wg.Wait()
	f.flush(t)

	stored, err := f.ws.AwaitTask(testContext(t), task.ID)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if len(stored.Steps) != steps {
		t.Fatalf("lost steps: got %d want %d", len(stored.Steps), steps)
	}
	if !entity.StepsDense(stored.Steps) {
		t.Fatalf("steps not dense")
	}
	if stored.Important {
		t.Fatalf("an even number of toggles must leave the task unimportant")
	}
	onServer := f.tasks.Items("alice")
	if len(onServer) != 1 || len(onServer[0].Steps) != steps {
		t.Fatalf("remote copy lost steps: %+v", onServer)
	}
}

func TestWatchStartsAfterEarlierActivity(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 100; i++ {
		if _, err := f.ws.CreateNote("old", ""); err != nil {
			t.Fatalf("create note: %v", err)
		}
	}
	f.flush(t)

	ctx, cancel := context.WithCancel(testContext(t))
	defer cancel()
	events := f.ws.Watch(ctx)
	fresh, err := f.ws.CreateList("fresh", "")
	if err != nil {
		t.Fatalf("create list: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Kind != entity.KindLists || ev.ID != fresh.ID || ev.Action != cache.ChangeCreate {
			t.Fatalf("expected the fresh list create first, got %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no event for the fresh list")
	}
}
