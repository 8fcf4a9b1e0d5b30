// Package mcp provides the Model Context Protocol server integration for taskpad.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tableflip.dev/taskpad/pkg/app"
	"tableflip.dev/taskpad/pkg/cache"
	"tableflip.dev/taskpad/pkg/entity"
	"tableflip.dev/taskpad/pkg/markdown"
)

// Service adapts workspace operations to the shapes the MCP tools return.
// Every write is flushed before returning so callers see confirmed ids.
type Service struct {
	Workspace *app.Workspace
}

// ErrNotFound is returned when an id or list reference cannot be resolved.
var ErrNotFound = errors.New("not found")

// NewService builds a service over ws.
func NewService(ws *app.Workspace) *Service {
	return &Service{Workspace: ws}
}

// TaskDTO is a transport-friendly projection of a task.
type TaskDTO struct {
	ID          string       `json:"id"`
	ListID      string       `json:"listId"`
	List        string       `json:"list,omitempty"`
	Title       string       `json:"title"`
	Notes       string       `json:"notes,omitempty"`
	Completed   bool         `json:"completed"`
	Important   bool         `json:"important"`
	Due         string       `json:"due,omitempty"`
	CompletedAt string       `json:"completedAt,omitempty"`
	Steps       []StepDTO    `json:"steps,omitempty"`
	Status      string       `json:"status"`
	Error       string       `json:"error,omitempty"`
	Created     string       `json:"created"`
	Progress    *ProgressDTO `json:"progress,omitempty"`
}

// StepDTO is one checklist step.
type StepDTO struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

// ProgressDTO counts completed steps.
type ProgressDTO struct {
	Done  int `json:"done"`
	Total int `json:"total"`
}

// ListDTO describes a list with open and total task counts.
type ListDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Color     string `json:"color"`
	IsDefault bool   `json:"isDefault"`
	TaskCount int    `json:"taskCount"`
	OpenCount int    `json:"openCount"`
	Status    string `json:"status"`
}

// NoteDTO is a note with a plain text excerpt.
type NoteDTO struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Content string   `json:"content,omitempty"`
	Excerpt string   `json:"excerpt,omitempty"`
	Tags    []string `json:"tags,omitempty"`
	Status  string   `json:"status"`
	Updated string   `json:"updated"`
}

// ImportDTO summarizes an import.
type ImportDTO struct {
	Success int       `json:"success"`
	Failed  int       `json:"failed"`
	Dropped int       `json:"dropped,omitempty"`
	Errors  []string  `json:"errors,omitempty"`
	Tasks   []TaskDTO `json:"tasks,omitempty"`
}

// ListTasksOptions narrows ListTasks.
type ListTasksOptions struct {
	List          string
	Important     bool
	HideCompleted bool
	Query         string
}

// CreateTaskOptions captures the parameters used to create a task.
type CreateTaskOptions struct {
	Title     string
	List      string
	Notes     string
	Due       string
	Important bool
	Steps     []string
}

func (s *Service) ws() (*app.Workspace, error) {
	if s.Workspace == nil {
		return nil, errors.New("workspace is not configured")
	}
	return s.Workspace, nil
}

func (s *Service) listID(ws *app.Workspace, ref string) (string, error) {
	if strings.TrimSpace(ref) == "" {
		return "", nil
	}
	l, ok := ws.FindList(ref)
	if !ok {
		return "", fmt.Errorf("list %q: %w", ref, ErrNotFound)
	}
	return l.ID, nil
}

// ListTasks returns the visible tasks, newest first.
func (s *Service) ListTasks(ctx context.Context, opts ListTasksOptions) ([]TaskDTO, error) {
	ws, err := s.ws()
	if err != nil {
		return nil, err
	}
	listID, err := s.listID(ws, opts.List)
	if err != nil {
		return nil, err
	}
	items := ws.Tasks(app.TaskFilter{
		ListID:        listID,
		Important:     opts.Important,
		HideCompleted: opts.HideCompleted,
		Query:         opts.Query,
	})
	out := make([]TaskDTO, 0, len(items))
	for _, item := range items {
		out = append(out, s.task(ws, item))
	}
	return out, nil
}

// CreateTask creates a task and waits for the remote store to confirm it.
func (s *Service) CreateTask(ctx context.Context, opts CreateTaskOptions) (*TaskDTO, error) {
	ws, err := s.ws()
	if err != nil {
		return nil, err
	}
	listID, err := s.listID(ws, opts.List)
	if err != nil {
		return nil, err
	}
	draft := entity.Task{
		Title:     strings.TrimSpace(opts.Title),
		ListID:    listID,
		Notes:     opts.Notes,
		Important: opts.Important,
	}
	if due := strings.TrimSpace(opts.Due); due != "" {
		when, err := entity.ParseTime(due)
		if err != nil {
			return nil, fmt.Errorf("invalid due value: %w", err)
		}
		draft.DueAt = &when
	}
	now := time.Now()
	for _, title := range opts.Steps {
		draft.Steps = entity.AddStep(draft.Steps, entity.Step{Title: strings.TrimSpace(title)}, now)
	}
	created, err := ws.CreateTask(ctx, draft)
	if err != nil {
		return nil, err
	}
	if err := ws.Flush(ctx); err != nil {
		return nil, err
	}
	if _, err := ws.AwaitTask(ctx, created.ID); err != nil {
		return nil, err
	}
	return s.taskByID(ws, created.ID)
}

// ToggleTask flips completion.
func (s *Service) ToggleTask(ctx context.Context, id string) (*TaskDTO, error) {
	ws, err := s.ws()
	if err != nil {
		return nil, err
	}
	if _, err := ws.ToggleComplete(id); err != nil {
		return nil, err
	}
	if err := ws.Flush(ctx); err != nil {
		return nil, err
	}
	return s.taskByID(ws, id)
}

// DeleteTask removes a task.
func (s *Service) DeleteTask(ctx context.Context, id string) error {
	ws, err := s.ws()
	if err != nil {
		return err
	}
	if err := ws.DeleteTask(id); err != nil {
		return err
	}
	return ws.Flush(ctx)
}

// ListLists returns every visible list with task counts.
func (s *Service) ListLists(ctx context.Context) ([]ListDTO, error) {
	ws, err := s.ws()
	if err != nil {
		return nil, err
	}
	type counts struct{ total, open int }
	byList := map[string]counts{}
	for _, item := range ws.Tasks(app.TaskFilter{}) {
		c := byList[item.Entity.ListID]
		c.total++
		if !item.Entity.Completed {
			c.open++
		}
		byList[item.Entity.ListID] = c
	}
	items := ws.Lists()
	out := make([]ListDTO, 0, len(items))
	for _, item := range items {
		l := item.Entity
		c := byList[l.ID]
		out = append(out, ListDTO{
			ID:        l.ID,
			Name:      l.Name,
			Color:     l.Color,
			IsDefault: l.IsDefault,
			TaskCount: c.total,
			OpenCount: c.open,
			Status:    string(item.Status),
		})
	}
	return out, nil
}

// CreateList creates a list and waits for it to be confirmed.
func (s *Service) CreateList(ctx context.Context, name, color string) (*ListDTO, error) {
	ws, err := s.ws()
	if err != nil {
		return nil, err
	}
	l, err := ws.CreateList(strings.TrimSpace(name), strings.TrimSpace(color))
	if err != nil {
		return nil, err
	}
	if err := ws.Flush(ctx); err != nil {
		return nil, err
	}
	item, ok := ws.List(l.ID)
	if !ok {
		return nil, fmt.Errorf("list %q: %w", l.ID, ErrNotFound)
	}
	if item.Failed() {
		return nil, errors.New(item.Error)
	}
	return &ListDTO{
		ID:        item.Entity.ID,
		Name:      item.Entity.Name,
		Color:     item.Entity.Color,
		IsDefault: item.Entity.IsDefault,
		Status:    string(item.Status),
	}, nil
}

// DeleteList deletes a list by id or name. Tasks move to moveTo, or to the
// default list, unless cascade deletes them.
func (s *Service) DeleteList(ctx context.Context, ref, moveTo string, cascade bool) error {
	ws, err := s.ws()
	if err != nil {
		return err
	}
	id, err := s.listID(ws, ref)
	if err != nil {
		return err
	}
	if id == "" {
		return errors.New("list is required")
	}
	target, err := s.listID(ws, moveTo)
	if err != nil {
		return err
	}
	return ws.DeleteList(ctx, id, app.DeleteListOptions{MoveTo: target, Cascade: cascade})
}

// ListNotes returns notes, filtered by tag or a free text query.
func (s *Service) ListNotes(ctx context.Context, tag, query string) ([]NoteDTO, error) {
	ws, err := s.ws()
	if err != nil {
		return nil, err
	}
	var items []cache.Item[entity.Note]
	if strings.TrimSpace(query) != "" {
		items = ws.SearchNotes(query)
	} else {
		items = ws.Notes(tag)
	}
	out := make([]NoteDTO, 0, len(items))
	for _, item := range items {
		if tag != "" && !item.Entity.HasTag(strings.TrimPrefix(tag, "#")) {
			continue
		}
		dto := noteDTO(item)
		dto.Content = ""
		out = append(out, dto)
	}
	return out, nil
}

// NoteByID returns one note with its content.
func (s *Service) NoteByID(ctx context.Context, id string) (*NoteDTO, error) {
	ws, err := s.ws()
	if err != nil {
		return nil, err
	}
	item, ok := ws.Note(id)
	if !ok || item.Deleting {
		return nil, fmt.Errorf("note %q: %w", id, ErrNotFound)
	}
	dto := noteDTO(item)
	return &dto, nil
}

// CreateNote creates a note and flushes it.
func (s *Service) CreateNote(ctx context.Context, title, content string) (*NoteDTO, error) {
	ws, err := s.ws()
	if err != nil {
		return nil, err
	}
	n, err := ws.CreateNote(title, content)
	if err != nil {
		return nil, err
	}
	if err := ws.Flush(ctx); err != nil {
		return nil, err
	}
	return s.NoteByID(ctx, n.ID)
}

// ImportTasks parses text and creates one task per root item.
func (s *Service) ImportTasks(ctx context.Context, text, list string) (*ImportDTO, error) {
	ws, err := s.ws()
	if err != nil {
		return nil, err
	}
	listID, err := s.listID(ws, list)
	if err != nil {
		return nil, err
	}
	res, err := ws.Import(ctx, text, listID)
	if err != nil {
		return nil, err
	}
	out := &ImportDTO{Success: res.Success, Failed: res.Failed, Dropped: res.Dropped}
	for _, e := range res.Errors {
		out.Errors = append(out.Errors, e.Error())
	}
	for _, t := range res.Tasks {
		if dto, err := s.taskByID(ws, t.ID); err == nil {
			out.Tasks = append(out.Tasks, *dto)
		}
	}
	return out, nil
}

func (s *Service) taskByID(ws *app.Workspace, id string) (*TaskDTO, error) {
	item, ok := ws.Task(id)
	if !ok || item.Deleting {
		return nil, fmt.Errorf("task %q: %w", id, ErrNotFound)
	}
	if item.Failed() {
		return nil, errors.New(item.Error)
	}
	dto := s.task(ws, item)
	return &dto, nil
}

func (s *Service) task(ws *app.Workspace, item cache.Item[entity.Task]) TaskDTO {
	t := item.Entity
	dto := TaskDTO{
		ID:        t.ID,
		ListID:    t.ListID,
		Title:     t.Title,
		Notes:     t.Notes,
		Completed: t.Completed,
		Important: t.Important,
		Status:    string(item.Status),
		Error:     item.Error,
		Created:   t.CreatedAt.Format(time.RFC3339),
	}
	if l, ok := ws.List(t.ListID); ok {
		dto.List = l.Entity.Name
	}
	if t.DueAt != nil {
		dto.Due = t.DueAt.Format(time.RFC3339)
	}
	if t.CompletedAt != nil {
		dto.CompletedAt = t.CompletedAt.Format(time.RFC3339)
	}
	if len(t.Steps) > 0 {
		p := &ProgressDTO{Total: len(t.Steps)}
		for _, st := range t.Steps {
			dto.Steps = append(dto.Steps, StepDTO{ID: st.ID, Title: st.Title, Completed: st.Completed})
			if st.Completed {
				p.Done++
			}
		}
		dto.Progress = p
	}
	return dto
}

func noteDTO(item cache.Item[entity.Note]) NoteDTO {
	n := item.Entity
	return NoteDTO{
		ID:      n.ID,
		Title:   n.Title,
		Content: n.Content,
		Excerpt: markdown.Excerpt(n.Content, 120),
		Tags:    n.Tags,
		Status:  string(item.Status),
		Updated: n.UpdatedAt.Format(time.RFC3339),
	}
}
