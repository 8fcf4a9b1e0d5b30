package entity

import (
	"fmt"
	"sort"
	"time"
)

// Step is a checklist item owned by exactly one Task.
type Step struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Completed  bool       `json:"completed"`
	OrderIndex int        `json:"orderIndex"`
	DueAt      *time.Time `json:"dueAt,omitempty"`
	Assignee   string     `json:"assignee,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// Clone returns a copy that shares no pointers with s.
func (s Step) Clone() Step {
	s.DueAt = cloneTime(s.DueAt)
	return s
}

// StepPatch is a partial step update.
type StepPatch struct {
	Title     *string    `json:"title,omitempty"`
	Completed *bool      `json:"completed,omitempty"`
	DueAt     *time.Time `json:"dueAt,omitempty"`
	Assignee  *string    `json:"assignee,omitempty"`
}

// Apply writes the patch over s and bumps UpdatedAt to now.
func (p StepPatch) Apply(s Step, now time.Time) Step {
	s = s.Clone()
	if p.Title != nil {
		s.Title = *p.Title
	}
	if p.Completed != nil {
		s.Completed = *p.Completed
	}
	if p.DueAt != nil {
		s.DueAt = cloneTime(p.DueAt)
	}
	if p.Assignee != nil {
		s.Assignee = *p.Assignee
	}
	s.UpdatedAt = laterOf(s.UpdatedAt, now)
	return s
}

func cloneSteps(in []Step) []Step {
	if in == nil {
		return nil
	}
	out := make([]Step, len(in))
	for i, s := range in {
		out[i] = s.Clone()
	}
	return out
}

// NormalizeSteps returns the steps sorted by OrderIndex with the indexes
// rewritten to 0..n-1. Ties keep their slice order.
func NormalizeSteps(in []Step) []Step {
	out := cloneSteps(in)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OrderIndex < out[j].OrderIndex
	})
	for i := range out {
		out[i].OrderIndex = i
	}
	return out
}

// StepsDense reports whether the order indexes form 0..n-1 with no gaps or
// duplicates.
func StepsDense(steps []Step) bool {
	seen := make([]bool, len(steps))
	for _, s := range steps {
		if s.OrderIndex < 0 || s.OrderIndex >= len(steps) || seen[s.OrderIndex] {
			return false
		}
		seen[s.OrderIndex] = true
	}
	return true
}

// AddStep appends a step at the end of the task's checklist.
func AddStep(steps []Step, s Step, now time.Time) []Step {
	out := NormalizeSteps(steps)
	if s.ID == "" {
		s.ID = NewID()
	}
	s.OrderIndex = len(out)
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = laterOf(s.CreatedAt, now)
	return append(out, s)
}

// RemoveStep drops the step with the given id and closes the gap.
func RemoveStep(steps []Step, id string) ([]Step, error) {
	out := NormalizeSteps(steps)
	for i, s := range out {
		if s.ID != id {
			continue
		}
		out = append(out[:i], out[i+1:]...)
		for j := range out {
			out[j].OrderIndex = j
		}
		return out, nil
	}
	return nil, fmt.Errorf("entity: step %q: %w", id, ErrStepNotFound)
}

// MoveStep moves the step with the given id to position to, clamped to the
// checklist bounds.
func MoveStep(steps []Step, id string, to int) ([]Step, error) {
	out := NormalizeSteps(steps)
	from := -1
	for i, s := range out {
		if s.ID == id {
			from = i
			break
		}
	}
	if from < 0 {
		return nil, fmt.Errorf("entity: step %q: %w", id, ErrStepNotFound)
	}
	if to < 0 {
		to = 0
	}
	if to >= len(out) {
		to = len(out) - 1
	}
	moved := out[from]
	out = append(out[:from], out[from+1:]...)
	out = append(out[:to], append([]Step{moved}, out[to:]...)...)
	for i := range out {
		out[i].OrderIndex = i
	}
	return out, nil
}

// ReorderSteps rewrites the order to follow ids. Steps missing from ids keep
// their relative order after the listed ones.
func ReorderSteps(steps []Step, ids []string) ([]Step, error) {
	out := NormalizeSteps(steps)
	byID := make(map[string]Step, len(out))
	for _, s := range out {
		byID[s.ID] = s
	}
	result := make([]Step, 0, len(out))
	used := make(map[string]bool, len(ids))
	for _, id := range ids {
		s, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("entity: step %q: %w", id, ErrStepNotFound)
		}
		if used[id] {
			continue
		}
		used[id] = true
		result = append(result, s)
	}
	for _, s := range out {
		if !used[s.ID] {
			result = append(result, s)
		}
	}
	for i := range result {
		result[i].OrderIndex = i
	}
	return result, nil
}

// UpdateStep applies p to the step with the given id.
func UpdateStep(steps []Step, id string, p StepPatch, now time.Time) ([]Step, error) {
	out := NormalizeSteps(steps)
	for i, s := range out {
		if s.ID == id {
			out[i] = p.Apply(s, now)
			return out, nil
		}
	}
	return nil, fmt.Errorf("entity: step %q: %w", id, ErrStepNotFound)
}
