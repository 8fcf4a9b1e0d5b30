package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"tableflip.dev/taskpad/pkg/app"
	"tableflip.dev/taskpad/pkg/entity"
	"tableflip.dev/taskpad/pkg/remote"
	"tableflip.dev/taskpad/pkg/store"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(context.Background(), filepath.Join(t.TempDir(), "taskpad.db"), nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

type client struct {
	t     *testing.T
	base  string
	owner string
}

func newTestServer(t *testing.T) (*DB, *client) {
	t.Helper()
	d := openTestDB(t)
	srv := httptest.NewServer(Handler(d))
	t.Cleanup(srv.Close)
	return d, &client{t: t, base: srv.URL, owner: "alice"}
}

func (c *client) do(method, path string, body any, out any) int {
	c.t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.base+path, r)
	if err != nil {
		c.t.Fatalf("request: %v", err)
	}
	req.Header.Set(OwnerHeader, c.owner)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			c.t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	_, c := newTestServer(t)
	if code := c.do(http.MethodGet, "/health", nil, nil); code != http.StatusOK {
		t.Fatalf("health: %d", code)
	}
}

func TestListsSeedDefault(t *testing.T) {
	_, c := newTestServer(t)
	var lists []entity.TaskList
	if code := c.do(http.MethodGet, "/api/lists", nil, &lists); code != http.StatusOK {
		t.Fatalf("list: %d", code)
	}
	if len(lists) != 1 || lists[0].ID != entity.DefaultListID || !lists[0].IsDefault {
		t.Fatalf("expected seeded default list, got %+v", lists)
	}
	if code := c.do(http.MethodDelete, "/api/lists/default", nil, nil); code != http.StatusForbidden {
		t.Fatalf("deleting the default list should be forbidden, got %d", code)
	}
}

func TestTaskLifecycleWithSteps(t *testing.T) {
	d, c := newTestServer(t)
	var task entity.Task
	code := c.do(http.MethodPost, "/api/tasks", entity.Task{Title: "plan trip", Steps: []entity.Step{{Title: "flights"}}}, &task)
	if code != http.StatusCreated || task.ID == "" || task.ListID != entity.DefaultListID {
		t.Fatalf("create: %d %+v", code, task)
	}
	if len(task.Steps) != 1 || task.Steps[0].ID == "" {
		t.Fatalf("expected step with id, got %+v", task.Steps)
	}

	c.do(http.MethodPost, "/api/tasks/"+task.ID+"/steps", entity.Step{Title: "hotel"}, &task)
	c.do(http.MethodPost, "/api/tasks/"+task.ID+"/steps", entity.Step{Title: "car"}, &task)
	if len(task.Steps) != 3 || !entity.StepsDense(task.Steps) {
		t.Fatalf("unexpected steps %+v", task.Steps)
	}

	done := true
	code = c.do(http.MethodPatch, "/api/tasks/"+task.ID+"/steps/"+task.Steps[1].ID, entity.StepPatch{Completed: &done}, &task)
	if code != http.StatusOK || !task.Steps[1].Completed {
		t.Fatalf("update step: %d %+v", code, task.Steps)
	}
	code = c.do(http.MethodDelete, "/api/tasks/"+task.ID+"/steps/"+task.Steps[0].ID, nil, &task)
	if code != http.StatusOK || len(task.Steps) != 2 || task.Steps[0].Title != "hotel" || task.Steps[0].OrderIndex != 0 {
		t.Fatalf("remove step: %d %+v", code, task.Steps)
	}
	if code := c.do(http.MethodDelete, "/api/tasks/"+task.ID+"/steps/missing", nil, nil); code != http.StatusNotFound {
		t.Fatalf("missing step: %d", code)
	}

	before := task.UpdatedAt
	code = c.do(http.MethodPatch, "/api/tasks/"+task.ID, entity.TaskPatch{Completed: &done}, &task)
	if code != http.StatusOK || !task.Completed || task.CompletedAt == nil || task.UpdatedAt.Before(before) {
		t.Fatalf("complete: %d %+v", code, task)
	}

	if code := c.do(http.MethodDelete, "/api/tasks/"+task.ID, nil, nil); code != http.StatusNoContent {
		t.Fatalf("delete: %d", code)
	}
	var n int
	if err := d.sql.QueryRow(`SELECT COUNT(*) FROM task_steps`).Scan(&n); err != nil || n != 0 {
		t.Fatalf("steps should cascade, got %d %v", n, err)
	}
	if code := c.do(http.MethodGet, "/api/tasks/"+task.ID, nil, nil); code != http.StatusNotFound {
		t.Fatalf("get deleted: %d", code)
	}
}

func TestTaskValidation(t *testing.T) {
	_, c := newTestServer(t)
	if code := c.do(http.MethodPost, "/api/tasks", entity.Task{Title: " "}, nil); code != http.StatusBadRequest {
		t.Fatalf("blank title: %d", code)
	}
	if code := c.do(http.MethodPost, "/api/tasks", entity.Task{Title: "x", ListID: "ghost"}, nil); code != http.StatusBadRequest {
		t.Fatalf("unknown list: %d", code)
	}
	req, _ := http.NewRequest(http.MethodPost, c.base+"/api/tasks", strings.NewReader("{"))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed body: %d", resp.StatusCode)
	}
}

func TestOwnerScoping(t *testing.T) {
	_, c := newTestServer(t)
	var task entity.Task
	c.do(http.MethodPost, "/api/tasks", entity.Task{Title: "private"}, &task)

	other := *c
	other.owner = "mallory"
	if code := other.do(http.MethodGet, "/api/tasks/"+task.ID, nil, nil); code != http.StatusForbidden {
		t.Fatalf("cross-owner get: %d", code)
	}
	var tasks []entity.Task
	other.do(http.MethodGet, "/api/tasks", nil, &tasks)
	if len(tasks) != 0 {
		t.Fatalf("cross-owner list leaked %+v", tasks)
	}
}

func TestDeleteListReassignsTasks(t *testing.T) {
	_, c := newTestServer(t)
	var list entity.TaskList
	c.do(http.MethodPost, "/api/lists", entity.TaskList{Name: "Work"}, &list)
	if list.Color != entity.DefaultColor {
		t.Fatalf("expected default color, got %q", list.Color)
	}
	var task entity.Task
	c.do(http.MethodPost, "/api/tasks", entity.Task{Title: "report", ListID: list.ID}, &task)

	if code := c.do(http.MethodDelete, "/api/lists/"+list.ID, nil, nil); code != http.StatusNoContent {
		t.Fatalf("delete list: %d", code)
	}
	c.do(http.MethodGet, "/api/tasks/"+task.ID, nil, &task)
	if task.ListID != entity.DefaultListID {
		t.Fatalf("task should move to default, got %q", task.ListID)
	}
}

func TestNotesTagsAndHTML(t *testing.T) {
	_, c := newTestServer(t)
	var note entity.Note
	code := c.do(http.MethodPost, "/api/notes", entity.Note{Content: "# Retro\n#team #team notes"}, &note)
	if code != http.StatusCreated || note.Title != entity.UntitledNote || strings.Join(note.Tags, ",") != "team" {
		t.Fatalf("create: %d %+v", code, note)
	}
	var view struct {
		entity.Note
		HTML string `json:"html"`
	}
	c.do(http.MethodGet, "/api/notes/"+note.ID+"?format=html", nil, &view)
	if !strings.Contains(view.HTML, "<h1>Retro</h1>") {
		t.Fatalf("expected rendered html, got %q", view.HTML)
	}
	var tagged []entity.Note
	c.do(http.MethodGet, "/api/notes?tag=TEAM", nil, &tagged)
	if len(tagged) != 1 {
		t.Fatalf("tag filter: %+v", tagged)
	}
}

func TestChangeFeed(t *testing.T) {
	_, c := newTestServer(t)
	url := "ws" + strings.TrimPrefix(c.base, "http") + "/api/changes"
	header := http.Header{}
	header.Set(OwnerHeader, c.owner)
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// The subscription is registered before the upgrade completes.
	c.do(http.MethodPost, "/api/notes", entity.Note{Title: "ping"}, nil)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var n Notice
	if err := conn.ReadJSON(&n); err != nil {
		t.Fatalf("read notice: %v", err)
	}
	if n.Kind != entity.KindNotes {
		t.Fatalf("unexpected notice %+v", n)
	}
}

func TestBackendDrivesWorkspace(t *testing.T) {
	d := openTestDB(t)
	ws, err := app.New(d.Backend(), app.Options{
		Owner: "bob",
		Sync:  store.SyncSettings{Debounce: time.Hour, Timeout: time.Second, Grace: time.Hour},
	})
	if err != nil {
		t.Fatalf("workspace: %v", err)
	}
	defer ws.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ws.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	list, err := ws.CreateList("Garden", "")
	if err != nil {
		t.Fatalf("create list: %v", err)
	}
	if _, err := ws.CreateTask(ctx, entity.Task{Title: "seed", ListID: list.ID}); err != nil {
		t.Fatalf("create task: %v", err)
	}
	if err := ws.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := ws.DeleteList(ctx, entity.DefaultListID, app.DeleteListOptions{}); !errors.Is(err, app.ErrDefaultList) {
		t.Fatalf("expected ErrDefaultList, got %v", err)
	}
	if err := ws.DeleteList(ctx, list.ID, app.DeleteListOptions{}); err != nil {
		t.Fatalf("delete list: %v", err)
	}
	tasks, err := d.Tasks().List(ctx, "bob")
	if err != nil || len(tasks) != 1 || tasks[0].ListID != entity.DefaultListID {
		t.Fatalf("unexpected tasks %+v %v", tasks, err)
	}
	if err := d.Lists().Delete(ctx, entity.DefaultListID, "bob"); !errors.Is(err, remote.ErrPermissionDenied) {
		t.Fatalf("store must refuse the default list, got %v", err)
	}
}
