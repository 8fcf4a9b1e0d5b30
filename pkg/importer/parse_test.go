package importer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"tableflip.dev/taskpad/pkg/entity"
)

func titles(nodes []*Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Title
	}
	return out
}

func TestParseCheckboxesAndNotes(t *testing.T) {
	nodes := Parse("- [ ] Buy milk\n- [x] Pay bills\n  Notas: due Friday")
	if len(nodes) != 2 {
		t.Fatalf("expected 2 roots, got %d: %v", len(nodes), titles(nodes))
	}
	if nodes[0].Title != "Buy milk" || nodes[0].Completed {
		t.Fatalf("unexpected first task %+v", nodes[0])
	}
	if nodes[1].Title != "Pay bills" || !nodes[1].Completed || nodes[1].Notes != "due Friday" {
		t.Fatalf("unexpected second task %+v", nodes[1])
	}
}

func TestParseNesting(t *testing.T) {
	nodes := Parse("- [ ] Plan trip\n  - [ ] Book flight\n  - [ ] Book hotel")
	if len(nodes) != 1 || nodes[0].Title != "Plan trip" {
		t.Fatalf("expected one root, got %v", titles(nodes))
	}
	steps := nodes[0].Children
	if len(steps) != 2 || steps[0].Title != "Book flight" || steps[1].Title != "Book hotel" {
		t.Fatalf("unexpected steps %v", titles(steps))
	}
	draft := Draft(nodes[0], "default", time.Now())
	for i, s := range draft.Steps {
		if s.OrderIndex != i || s.Completed {
			t.Fatalf("step %d: unexpected %+v", i, s)
		}
	}
}

func TestParseMarkers(t *testing.T) {
	cases := []struct {
		in        string
		title     string
		completed bool
	}{
		{"[ ] bare box", "bare box", false},
		{"* [X] star box", "star box", true},
		{"☐ open glyph", "open glyph", false},
		{"☑ checked glyph", "checked glyph", true},
		{"✅ done emoji", "done emoji", true},
		{"✓ tick", "tick", true},
		{"TODO: write report", "write report", false},
		{"FEITO: lavar roupa", "lavar roupa", true},
		{"CONCLUÍDO: relatório", "relatório", true},
		{"done: ship it", "ship it", true},
		{"1. numbered", "numbered", false},
		{"2) [x] numbered box", "numbered box", true},
		{"• bullet", "bullet", false},
		{"- DONE: bullet prefix", "bullet prefix", true},
	}
	for _, tc := range cases {
		nodes := Parse(tc.in)
		if len(nodes) != 1 {
			t.Errorf("%q: expected one task, got %d", tc.in, len(nodes))
			continue
		}
		if nodes[0].Title != tc.title || nodes[0].Completed != tc.completed {
			t.Errorf("%q: got %q completed=%v", tc.in, nodes[0].Title, nodes[0].Completed)
		}
	}
}

func TestParseTitleCleanup(t *testing.T) {
	cases := []struct {
		in        string
		title     string
		important bool
		notes     string
	}{
		{"- [ ] ! Call mom", "Call mom", true, ""},
		{"- [ ] Renew passport !!!", "Renew passport", true, ""},
		{"- [ ] Groceries #home #weekly", "Groceries", false, "Tags: #home #weekly"},
		{"- [ ] Fix bike // chain is loose", "Fix bike", false, "chain is loose"},
		{"- [ ] Dentist notes: bring x-ray", "Dentist", false, "bring x-ray"},
		{"- [ ] Buy paint (the blue one)", "Buy paint", false, "the blue one"},
		{"- [ ] Book venue !! #party", "Book venue", true, "Tags: #party"},
	}
	for _, tc := range cases {
		nodes := Parse(tc.in)
		if len(nodes) != 1 {
			t.Errorf("%q: expected one task", tc.in)
			continue
		}
		n := nodes[0]
		if n.Title != tc.title || n.Important != tc.important || n.Notes != tc.notes {
			t.Errorf("%q: got title=%q important=%v notes=%q", tc.in, n.Title, n.Important, n.Notes)
		}
	}
}

func TestParseParentheticalTitleIsTreatedAsNote(t *testing.T) {
	// Titles ending in parentheses lose them to the notes field.
	nodes := Parse("- [ ] Read chapter (2)")
	if nodes[0].Title != "Read chapter" || nodes[0].Notes != "2" {
		t.Fatalf("unexpected %+v", nodes[0])
	}
}

func TestParseParagraphBecomesNotesOfNextTask(t *testing.T) {
	in := "Context for the week\nsecond line\n\n- [ ] First\n- [ ] Second"
	nodes := Parse(in)
	if len(nodes) != 2 {
		t.Fatalf("expected 2 tasks, got %v", titles(nodes))
	}
	if nodes[0].Notes != "Context for the week\nsecond line" {
		t.Fatalf("unexpected notes %q", nodes[0].Notes)
	}
	if nodes[1].Notes != "" {
		t.Fatalf("second task should have no notes, got %q", nodes[1].Notes)
	}
}

func TestParseQuoteAndContinuationNotes(t *testing.T) {
	in := "- [ ] Draft proposal\n  > ask Sam for numbers\n  - [ ] outline\n  remember the appendix"
	nodes := Parse(in)
	if len(nodes) != 1 {
		t.Fatalf("expected 1 task, got %v", titles(nodes))
	}
	n := nodes[0]
	if len(n.Children) != 1 || n.Children[0].Title != "outline" {
		t.Fatalf("unexpected steps %v", titles(n.Children))
	}
	if !strings.Contains(n.Notes, "ask Sam for numbers") || !strings.Contains(n.Notes, "remember the appendix") {
		t.Fatalf("unexpected notes %q", n.Notes)
	}
}

func TestParseInconsistentIndentation(t *testing.T) {
	in := "- [ ] Root\n   - [ ] three spaces\n\t- [ ] tab\n        - [ ] deep"
	nodes := Parse(in)
	if len(nodes) != 1 {
		t.Fatalf("expected 1 root, got %v", titles(nodes))
	}
	root := nodes[0]
	if len(root.Children) != 1 || root.Children[0].Title != "three spaces" {
		t.Fatalf("unexpected steps %v", titles(root.Children))
	}
	step := root.Children[0]
	if len(step.Children) != 1 || step.Children[0].Title != "tab" || step.Children[0].Depth != 2 {
		t.Fatalf("expected nested child at depth 2, got %+v", step.Children)
	}
}

func TestParsePlainListWithoutMarkers(t *testing.T) {
	nodes := Parse("milk\neggs\n\nbread")
	if got := titles(nodes); len(got) != 3 || got[2] != "bread" {
		t.Fatalf("expected every line as a task, got %v", got)
	}
}

func TestParseTrailingParagraphAttachesToLastTask(t *testing.T) {
	nodes := Parse("- [ ] One\n\nsee you later")
	if len(nodes) != 1 || nodes[0].Notes != "see you later" {
		t.Fatalf("unexpected %+v", nodes)
	}
}

type fakeCreator struct {
	next    int
	fail    map[string]error
	created map[string]entity.Task
	stored  []entity.Task
}

func (f *fakeCreator) CreateTask(_ context.Context, draft entity.Task) (entity.Task, error) {
	if err := draft.Validate(); err != nil {
		return entity.Task{}, err
	}
	f.next++
	draft.ID = entity.PlaceholderPrefix + string(rune('a'+f.next))
	if f.created == nil {
		f.created = map[string]entity.Task{}
	}
	f.created[draft.ID] = draft
	return draft, nil
}

func (f *fakeCreator) Flush(context.Context) error { return nil }

func (f *fakeCreator) AwaitTask(_ context.Context, id string) (entity.Task, error) {
	t := f.created[id]
	if err := f.fail[t.Title]; err != nil {
		return entity.Task{}, err
	}
	f.stored = append(f.stored, t)
	return t, nil
}

func TestImportIsolatesFailures(t *testing.T) {
	creator := &fakeCreator{fail: map[string]error{"two": errors.New("remote rejected")}}
	res := Import(context.Background(), creator, "default", Parse("- [ ] one\n- [ ] two\n- [ ] three"))
	if res.Success != 2 || res.Failed != 1 || len(res.Errors) != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(creator.stored) != 2 || creator.stored[0].Title != "one" || creator.stored[1].Title != "three" {
		t.Fatalf("unexpected stored tasks %+v", creator.stored)
	}
}

func TestImportCountsDroppedNesting(t *testing.T) {
	creator := &fakeCreator{}
	res := Import(context.Background(), creator, "default", Parse("- a\n  - b\n    - c\n      - d"))
	if res.Success != 1 || res.Dropped != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	if steps := res.Tasks[0].Steps; len(steps) != 1 || steps[0].Title != "b" {
		t.Fatalf("unexpected steps %+v", steps)
	}
}
