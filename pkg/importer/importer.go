package importer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tableflip.dev/taskpad/pkg/entity"
)

// Creator is what Import needs from the task layer: an optimistic create,
// a way to push queued work, and a way to learn each create's outcome.
type Creator interface {
	CreateTask(ctx context.Context, draft entity.Task) (entity.Task, error)
	Flush(ctx context.Context) error
	AwaitTask(ctx context.Context, id string) (entity.Task, error)
}

// Result tallies an import. Errors holds one entry per failed root task.
type Result struct {
	Success int           `json:"success"`
	Failed  int           `json:"failed"`
	Errors  []error       `json:"-"`
	Tasks   []entity.Task `json:"tasks,omitempty"`
	// Dropped counts nodes nested deeper than a step; they are parsed but
	// not stored.
	Dropped int `json:"dropped,omitempty"`
}

// Draft converts a root node and its direct children into a task with
// steps. Deeper descendants are not represented.
func Draft(n *Node, listID string, now time.Time) entity.Task {
	t := entity.Task{
		ListID:    listID,
		Title:     n.Title,
		Completed: n.Completed,
		Important: n.Important,
		Notes:     n.Notes,
	}
	if n.Completed {
		done := now
		t.CompletedAt = &done
	}
	for _, child := range n.Children {
		t.Steps = entity.AddStep(t.Steps, entity.Step{
			Title:     child.Title,
			Completed: child.Completed,
		}, now)
	}
	return t
}

// Import creates every root in nodes independently. A failed create never
// stops the remaining ones.
func Import(ctx context.Context, creator Creator, listID string, nodes []*Node) Result {
	var res Result
	now := time.Now()
	var created []entity.Task
	for _, n := range nodes {
		res.Dropped += countNested(n)
		draft := Draft(n, listID, now)
		task, err := creator.CreateTask(ctx, draft)
		if err != nil {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Errorf("importer: %q: %w", n.Title, err))
			continue
		}
		created = append(created, task)
	}
	if res.Dropped > 0 {
		slog.Warn("importer: nested tasks below step depth are not stored", "count", res.Dropped)
	}
	if len(created) == 0 {
		return res
	}
	if err := creator.Flush(ctx); err != nil {
		slog.Debug("importer: flush interrupted", "error", err)
	}
	for _, task := range created {
		stored, err := creator.AwaitTask(ctx, task.ID)
		if err != nil {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Errorf("importer: %q: %w", task.Title, err))
			continue
		}
		res.Success++
		res.Tasks = append(res.Tasks, stored)
	}
	return res
}

func countNested(n *Node) int {
	count := 0
	for _, child := range n.Children {
		count += len(child.Children) + countDeep(child.Children)
	}
	return count
}

func countDeep(nodes []*Node) int {
	count := 0
	for _, n := range nodes {
		count += len(n.Children) + countDeep(n.Children)
	}
	return count
}
