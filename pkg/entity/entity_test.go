package entity

import (
	"errors"
	"reflect"
	"sort"
	"testing"
	"time"

	"pgregory.net/rapid"
)

func TestPlaceholderIDs(t *testing.T) {
	id := NewPlaceholderID()
	if !IsPlaceholder(id) {
		t.Fatalf("expected %q to be a placeholder", id)
	}
	if IsPlaceholder(NewID()) {
		t.Fatalf("server id must not look like a placeholder")
	}
	if NewPlaceholderID() == id {
		t.Fatalf("placeholder ids must be unique")
	}
}

func TestValidate(t *testing.T) {
	err := Task{Title: "  "}.Validate()
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "title" {
		t.Fatalf("expected title field, got %+v", verr)
	}
	if err := (TaskList{}).Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected list name to be required, got %v", err)
	}
	if err := (Note{Content: "body"}).Validate(); err != nil {
		t.Fatalf("note with content should validate: %v", err)
	}
	if err := (Note{}).Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected empty note to be rejected")
	}
}

func TestTaskPatchMergeLastWins(t *testing.T) {
	a, b := "first", "second"
	yes, no := true, false
	p := TaskPatch{Title: &a, Completed: &yes}
	p = p.Merge(TaskPatch{Title: &b})
	p = p.Merge(TaskPatch{Completed: &no})

	task := p.Apply(Task{Title: "orig", Completed: true})
	if task.Title != "second" || task.Completed {
		t.Fatalf("unexpected merge result: %+v", task)
	}
}

func TestTaskPatchReopenClearsCompletedAt(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	yes, no := true, false
	done := TaskPatch{Completed: &yes, CompletedAt: &now}.Apply(Task{Title: "x"})
	if done.CompletedAt == nil || !done.CompletedAt.Equal(now) {
		t.Fatalf("expected completedAt to be stamped, got %v", done.CompletedAt)
	}
	reopened := TaskPatch{Completed: &no}.Apply(done)
	if reopened.CompletedAt != nil {
		t.Fatalf("expected completedAt to be cleared")
	}
	if done.CompletedAt == nil {
		t.Fatalf("apply must not mutate its input")
	}
}

func TestTaskPatchClearDue(t *testing.T) {
	due := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	task := TaskPatch{DueAt: &due}.Apply(Task{Title: "x"})
	if task.DueAt == nil {
		t.Fatalf("expected due date")
	}
	task = TaskPatch{ClearDue: true}.Apply(task)
	if task.DueAt != nil {
		t.Fatalf("expected due date to be cleared")
	}
	p := TaskPatch{ClearDue: true}.Merge(TaskPatch{DueAt: &due})
	if p.ClearDue || p.DueAt == nil {
		t.Fatalf("a later due date must win over an earlier clear: %+v", p)
	}
}

func TestExtractTags(t *testing.T) {
	got := ExtractTags("Meeting notes #work #urgent")
	if want := []string{"work", "urgent"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	got = ExtractTags("#a then #b and #a again, not a#c")
	if want := []string{"a", "b"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if got := ExtractTags("no tags"); len(got) != 0 {
		t.Fatalf("expected no tags, got %v", got)
	}
}

func TestNotePatchRederivesTags(t *testing.T) {
	n := Note{Title: "t"}.Stamped(time.Now(), time.Now())
	content := "plan #q3 #work"
	n = NotePatch{Content: &content}.Apply(n)
	if want := []string{"q3", "work"}; !reflect.DeepEqual(n.Tags, want) {
		t.Fatalf("expected %v, got %v", want, n.Tags)
	}
	if !n.HasTag("#WORK") {
		t.Fatalf("expected case-insensitive tag match")
	}
}

func TestTagsFirstSeenDeduplicated(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		words := rapid.SliceOfN(rapid.StringMatching(`[a-z]{1,6}`), 1, 12).Draw(t, "words")
		content := ""
		for _, w := range words {
			content += "#" + w + " "
		}
		got := ExtractTags(content)

		var want []string
		seen := map[string]bool{}
		for _, w := range words {
			if !seen[w] {
				seen[w] = true
				want = append(want, w)
			}
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("expected %v, got %v", want, got)
		}
	})
}

func TestStepOrderStaysDense(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		now := time.Now()
		var steps []Step
		ops := rapid.SliceOfN(rapid.IntRange(0, 3), 1, 40).Draw(t, "ops")
		for i, op := range ops {
			var err error
			switch {
			case op == 0 || len(steps) == 0:
				steps = AddStep(steps, Step{Title: "step"}, now)
			case op == 1:
				idx := rapid.IntRange(0, len(steps)-1).Draw(t, "remove")
				steps, err = RemoveStep(steps, steps[idx].ID)
			case op == 2:
				idx := rapid.IntRange(0, len(steps)-1).Draw(t, "move")
				to := rapid.IntRange(-2, len(steps)+2).Draw(t, "to")
				steps, err = MoveStep(steps, steps[idx].ID, to)
			default:
				ids := make([]string, len(steps))
				for j, s := range steps {
					ids[j] = s.ID
				}
				perm := rapid.Permutation(ids).Draw(t, "perm")
				steps, err = ReorderSteps(steps, perm)
			}
			if err != nil {
				t.Fatalf("op %d: %v", i, err)
			}
			indexes := make([]int, len(steps))
			for j, s := range steps {
				indexes[j] = s.OrderIndex
			}
			sort.Ints(indexes)
			for j, v := range indexes {
				if v != j {
					t.Fatalf("op %d: order indexes not dense: %v", i, indexes)
				}
			}
		}
	})
}

func TestMoveStep(t *testing.T) {
	now := time.Now()
	var steps []Step
	for _, title := range []string{"a", "b", "c"} {
		steps = AddStep(steps, Step{ID: title, Title: title}, now)
	}
	steps, err := MoveStep(steps, "c", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got []string
	for _, s := range steps {
		got = append(got, s.ID)
	}
	if want := []string{"c", "a", "b"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if _, err := MoveStep(steps, "missing", 0); !errors.Is(err, ErrStepNotFound) {
		t.Fatalf("expected ErrStepNotFound, got %v", err)
	}
}

func TestParseTime(t *testing.T) {
	if _, err := ParseTime("2024-05-01"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := ParseTime("2024-05-01T10:00:00Z")
	if err != nil || got.Hour() != 10 {
		t.Fatalf("unexpected parse: %v %v", got, err)
	}
	if _, err := ParseTime("friday"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestServerKeyReservesDefaultList(t *testing.T) {
	if got := ServerKey(TaskList{Name: "Tasks", IsDefault: true}); got != DefaultListID {
		t.Fatalf("expected %q, got %q", DefaultListID, got)
	}
	got := ServerKey(TaskList{Name: "Errands"})
	if got == DefaultListID || IsPlaceholder(got) || got == "" {
		t.Fatalf("unexpected server key %q", got)
	}
	if ServerKey(Task{Title: "x"}) == ServerKey(Task{Title: "x"}) {
		t.Fatalf("expected fresh ids")
	}
}
