package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"tableflip.dev/taskpad/pkg/entity"
	"tableflip.dev/taskpad/pkg/markdown"
	"tableflip.dev/taskpad/pkg/remote"
)

const (
	// OwnerHeader carries the owner id of every request.
	OwnerHeader = "X-Owner-ID"
	// DefaultOwner is used when the header is absent.
	DefaultOwner = "local"
)

// Handler builds the REST API over d.
func Handler(d *DB) http.Handler {
	h := &api{d: d, tasks: d.Tasks(), lists: d.Lists(), notes: d.Notes(), log: d.log}

	r := mux.NewRouter()
	r.Use(h.logRequests)

	r.Methods(http.MethodGet).Path("/health").HandlerFunc(h.health)

	r.Methods(http.MethodGet).Path("/api/tasks").HandlerFunc(h.listTasks)
	r.Methods(http.MethodPost).Path("/api/tasks").HandlerFunc(h.createTask)
	r.Methods(http.MethodGet).Path("/api/tasks/{id}").HandlerFunc(h.getTask)
	r.Methods(http.MethodPatch).Path("/api/tasks/{id}").HandlerFunc(h.updateTask)
	r.Methods(http.MethodDelete).Path("/api/tasks/{id}").HandlerFunc(h.deleteTask)
	r.Methods(http.MethodPost).Path("/api/tasks/{taskId}/steps").HandlerFunc(h.addStep)
	r.Methods(http.MethodPatch).Path("/api/tasks/{taskId}/steps/{stepId}").HandlerFunc(h.updateStep)
	r.Methods(http.MethodDelete).Path("/api/tasks/{taskId}/steps/{stepId}").HandlerFunc(h.removeStep)

	r.Methods(http.MethodGet).Path("/api/lists").HandlerFunc(h.listLists)
	r.Methods(http.MethodPost).Path("/api/lists").HandlerFunc(h.createList)
	r.Methods(http.MethodGet).Path("/api/lists/{id}").HandlerFunc(h.getList)
	r.Methods(http.MethodPatch).Path("/api/lists/{id}").HandlerFunc(h.updateList)
	r.Methods(http.MethodDelete).Path("/api/lists/{id}").HandlerFunc(h.deleteList)

	r.Methods(http.MethodGet).Path("/api/notes").HandlerFunc(h.listNotes)
	r.Methods(http.MethodPost).Path("/api/notes").HandlerFunc(h.createNote)
	r.Methods(http.MethodGet).Path("/api/notes/{id}").HandlerFunc(h.getNote)
	r.Methods(http.MethodPatch).Path("/api/notes/{id}").HandlerFunc(h.updateNote)
	r.Methods(http.MethodDelete).Path("/api/notes/{id}").HandlerFunc(h.deleteNote)

	r.Methods(http.MethodGet).Path("/api/changes").HandlerFunc(h.changes)
	return r
}

type api struct {
	d     *DB
	tasks *TaskStore
	lists *ListStore
	notes *NoteStore
	log   *slog.Logger
}

func (h *api) logRequests(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(handler, w, r)
		h.log.Info("handled", "method", r.Method, "url", r.URL, "duration", m.Duration, "status", m.Code)
	})
}

func owner(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get(OwnerHeader)); v != "" {
		return v
	}
	return DefaultOwner
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write json", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// fail maps the error taxonomy onto status codes.
func (h *api) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, entity.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, remote.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, remote.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		h.log.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid body: %v", err))
		return false
	}
	return true
}

func (h *api) health(w http.ResponseWriter, r *http.Request) {
	if err := h.d.sql.PingContext(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *api) listTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.tasks.List(r.Context(), owner(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	if listID := r.URL.Query().Get("listId"); listID != "" {
		kept := tasks[:0]
		for _, t := range tasks {
			if t.ListID == listID {
				kept = append(kept, t)
			}
		}
		tasks = kept
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *api) createTask(w http.ResponseWriter, r *http.Request) {
	var draft entity.Task
	if !decode(w, r, &draft) {
		return
	}
	created, err := h.tasks.Create(r.Context(), draft, owner(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *api) getTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.tasks.Get(r.Context(), mux.Vars(r)["id"], owner(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *api) updateTask(w http.ResponseWriter, r *http.Request) {
	var patch entity.TaskPatch
	if !decode(w, r, &patch) {
		return
	}
	t, err := h.tasks.Update(r.Context(), mux.Vars(r)["id"], patch, owner(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *api) deleteTask(w http.ResponseWriter, r *http.Request) {
	if err := h.tasks.Delete(r.Context(), mux.Vars(r)["id"], owner(r)); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *api) addStep(w http.ResponseWriter, r *http.Request) {
	var step entity.Step
	if !decode(w, r, &step) {
		return
	}
	t, err := h.tasks.AddStep(r.Context(), mux.Vars(r)["taskId"], step, owner(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *api) updateStep(w http.ResponseWriter, r *http.Request) {
	var patch entity.StepPatch
	if !decode(w, r, &patch) {
		return
	}
	vars := mux.Vars(r)
	t, err := h.tasks.UpdateStep(r.Context(), vars["taskId"], vars["stepId"], patch, owner(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *api) removeStep(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	t, err := h.tasks.RemoveStep(r.Context(), vars["taskId"], vars["stepId"], owner(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *api) listLists(w http.ResponseWriter, r *http.Request) {
	lists, err := h.lists.List(r.Context(), owner(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lists)
}

func (h *api) createList(w http.ResponseWriter, r *http.Request) {
	var draft entity.TaskList
	if !decode(w, r, &draft) {
		return
	}
	created, err := h.lists.Create(r.Context(), draft, owner(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *api) getList(w http.ResponseWriter, r *http.Request) {
	l, err := h.lists.Get(r.Context(), mux.Vars(r)["id"], owner(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (h *api) updateList(w http.ResponseWriter, r *http.Request) {
	var patch entity.TaskListPatch
	if !decode(w, r, &patch) {
		return
	}
	l, err := h.lists.Update(r.Context(), mux.Vars(r)["id"], patch, owner(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (h *api) deleteList(w http.ResponseWriter, r *http.Request) {
	if err := h.lists.Delete(r.Context(), mux.Vars(r)["id"], owner(r)); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *api) listNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := h.notes.List(r.Context(), owner(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	if tag := r.URL.Query().Get("tag"); tag != "" {
		kept := notes[:0]
		for _, n := range notes {
			if n.HasTag(tag) {
				kept = append(kept, n)
			}
		}
		notes = kept
	}
	writeJSON(w, http.StatusOK, notes)
}

func (h *api) createNote(w http.ResponseWriter, r *http.Request) {
	var draft entity.Note
	if !decode(w, r, &draft) {
		return
	}
	created, err := h.notes.Create(r.Context(), draft, owner(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// noteView adds the rendered body when ?format=html is requested.
type noteView struct {
	entity.Note
	HTML string `json:"html,omitempty"`
}

func (h *api) getNote(w http.ResponseWriter, r *http.Request) {
	n, err := h.notes.Get(r.Context(), mux.Vars(r)["id"], owner(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	view := noteView{Note: n}
	if r.URL.Query().Get("format") == "html" {
		if view.HTML, err = markdown.HTML(n.Content); err != nil {
			h.fail(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *api) updateNote(w http.ResponseWriter, r *http.Request) {
	var patch entity.NotePatch
	if !decode(w, r, &patch) {
		return
	}
	n, err := h.notes.Update(r.Context(), mux.Vars(r)["id"], patch, owner(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *api) deleteNote(w http.ResponseWriter, r *http.Request) {
	if err := h.notes.Delete(r.Context(), mux.Vars(r)["id"], owner(r)); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// changes streams {"kind": ...} notices for the request owner until the
// client goes away.
func (h *api) changes(w http.ResponseWriter, r *http.Request) {
	notices, stop := h.d.hub.Subscribe(owner(r))
	defer stop()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("failed to upgrade", "err", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	// Reading is only needed to notice the close frame.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-notices:
			if err := conn.WriteJSON(n); err != nil {
				h.log.Debug("change feed closed", "err", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}
