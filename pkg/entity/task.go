package entity

import (
	"strings"
	"time"
)

// Task is a to-do item owned by one list.
type Task struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"ownerId"`
	ListID      string     `json:"listId"`
	Title       string     `json:"title"`
	Completed   bool       `json:"completed"`
	Important   bool       `json:"important"`
	Notes       string     `json:"notes,omitempty"`
	DueAt       *time.Time `json:"dueAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Steps       []Step     `json:"steps,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func (t Task) Key() string        { return t.ID }
func (t Task) Owner() string      { return t.OwnerID }
func (t Task) Created() time.Time { return t.CreatedAt }
func (t Task) Updated() time.Time { return t.UpdatedAt }

func (t Task) WithKey(id string) Task {
	t = t.Clone()
	t.ID = id
	return t
}

func (t Task) WithOwner(owner string) Task {
	t = t.Clone()
	t.OwnerID = owner
	return t
}

func (t Task) Stamped(created, updated time.Time) Task {
	t = t.Clone()
	t.CreatedAt = created
	t.UpdatedAt = updated
	return t
}

// Validate checks the required fields and the step ordering.
func (t Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return required(KindTasks, "title")
	}
	for _, s := range t.Steps {
		if strings.TrimSpace(s.Title) == "" {
			return required(KindTasks, "step title")
		}
	}
	if !StepsDense(t.Steps) {
		return &ValidationError{Kind: KindTasks, Field: "steps", Message: "order is not dense"}
	}
	return nil
}

// Clone returns a deep copy so cached values never share step slices.
func (t Task) Clone() Task {
	t.DueAt = cloneTime(t.DueAt)
	t.CompletedAt = cloneTime(t.CompletedAt)
	if t.Steps != nil {
		steps := make([]Step, len(t.Steps))
		for i, s := range t.Steps {
			steps[i] = s.Clone()
		}
		t.Steps = steps
	}
	return t
}

// Step returns the step with the given id.
func (t Task) Step(id string) (Step, bool) {
	for _, s := range t.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return Step{}, false
}

// TaskPatch is a partial task update. Nil fields are left untouched.
type TaskPatch struct {
	Title       *string    `json:"title,omitempty"`
	Completed   *bool      `json:"completed,omitempty"`
	Important   *bool      `json:"important,omitempty"`
	Notes       *string    `json:"notes,omitempty"`
	DueAt       *time.Time `json:"dueAt,omitempty"`
	ClearDue    bool       `json:"clearDue,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	ListID      *string    `json:"listId,omitempty"`
	Steps       *[]Step    `json:"steps,omitempty"`
}

// Apply returns t with the patch fields written over it. Reopening a task
// clears its completion time.
func (p TaskPatch) Apply(t Task) Task {
	t = t.Clone()
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
		if !t.Completed {
			t.CompletedAt = nil
		}
	}
	if p.CompletedAt != nil && t.Completed {
		t.CompletedAt = cloneTime(p.CompletedAt)
	}
	if p.Important != nil {
		t.Important = *p.Important
	}
	if p.Notes != nil {
		t.Notes = *p.Notes
	}
	if p.ClearDue {
		t.DueAt = nil
	}
	if p.DueAt != nil {
		t.DueAt = cloneTime(p.DueAt)
	}
	if p.ListID != nil {
		t.ListID = *p.ListID
	}
	if p.Steps != nil {
		t.Steps = cloneSteps(*p.Steps)
	}
	return t
}

// Merge folds next over p.
func (p TaskPatch) Merge(next TaskPatch) TaskPatch {
	if next.Title != nil {
		p.Title = next.Title
	}
	if next.Completed != nil {
		p.Completed = next.Completed
		if !*next.Completed {
			p.CompletedAt = nil
		}
	}
	if next.CompletedAt != nil {
		p.CompletedAt = next.CompletedAt
	}
	if next.Important != nil {
		p.Important = next.Important
	}
	if next.Notes != nil {
		p.Notes = next.Notes
	}
	if next.ClearDue {
		p.ClearDue = true
		p.DueAt = nil
	}
	if next.DueAt != nil {
		p.DueAt = next.DueAt
		p.ClearDue = false
	}
	if next.ListID != nil {
		p.ListID = next.ListID
	}
	if next.Steps != nil {
		steps := cloneSteps(*next.Steps)
		p.Steps = &steps
	}
	return p
}

// IsZero reports whether the patch changes nothing.
func (p TaskPatch) IsZero() bool {
	return p.Title == nil && p.Completed == nil && p.Important == nil &&
		p.Notes == nil && p.DueAt == nil && !p.ClearDue && p.CompletedAt == nil &&
		p.ListID == nil && p.Steps == nil
}
