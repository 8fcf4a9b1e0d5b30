package printers

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"tableflip.dev/taskpad/pkg/app"
	"tableflip.dev/taskpad/pkg/cache"
	"tableflip.dev/taskpad/pkg/entity"
	"tableflip.dev/taskpad/pkg/importer"
)

func init() {
	color.NoColor = true
}

var now = time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)

func newPrinter(showID bool) (*PrettyPrint, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return &PrettyPrint{ShowID: showID, Out: buf, Now: func() time.Time { return now }}, buf
}

func TestTasks(t *testing.T) {
	pp, buf := newPrinter(true)
	due := now.AddDate(0, 0, -1)
	pp.Tasks([]cache.Item[entity.Task]{{
		Entity: entity.Task{
			ID:        "t1",
			ListID:    "default",
			Title:     "Renew passport",
			Important: true,
			DueAt:     &due,
			Steps: []entity.Step{
				{ID: "s1", Title: "photos", Completed: true},
				{ID: "s2", Title: "form"},
			},
		},
		Status: entity.StatusError,
		Error:  "permission denied",
	}}, map[string]string{"default": "Tasks"})

	out := buf.String()
	for _, want := range []string{"t1", "Renew passport", "Tasks", "1/2", "photos", "s2", "permission denied", "due Mon Mar 9"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestTasksNone(t *testing.T) {
	pp, buf := newPrinter(false)
	pp.Tasks(nil, nil)
	if !strings.Contains(buf.String(), "none") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestTitleWithCount(t *testing.T) {
	pp, buf := newPrinter(false)
	pp.TitleWithCount("Lists", 1, "list")
	pp.TitleWithCount("Notes", 3, "note")
	if got := buf.String(); got != "Lists - 1 list\nNotes - 3 notes\n" {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestNoteHTML(t *testing.T) {
	pp, buf := newPrinter(false)
	item := cache.Item[entity.Note]{Entity: entity.Note{
		Title:     "Standup",
		Content:   "**Blocked** on review #work",
		Tags:      []string{"work"},
		UpdatedAt: now,
	}}
	if err := pp.Note(item, true); err != nil {
		t.Fatalf("Note failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "<strong>Blocked</strong>") || !strings.Contains(out, "#work") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestReportEmpty(t *testing.T) {
	pp, buf := newPrinter(false)
	pp.Report(app.ReportResult{Since: now.Add(-time.Hour), Until: now}, "1h")
	if !strings.Contains(buf.String(), "No completed tasks") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestImport(t *testing.T) {
	pp, buf := newPrinter(false)
	pp.Import(importer.Result{Success: 2, Failed: 1, Dropped: 1})
	if got := buf.String(); !strings.HasPrefix(got, "imported 2, 1 failed, 1 nested items skipped") {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestDueCounts(t *testing.T) {
	day := func(d int) *time.Time {
		v := time.Date(2026, 3, d, 12, 0, 0, 0, time.Local)
		return &v
	}
	tasks := []entity.Task{
		{Title: "a", DueAt: day(2)},
		{Title: "b", DueAt: day(2)},
		{Title: "c", DueAt: day(31), Completed: true},
		{Title: "d"},
	}
	count := DueCounts(now, tasks)
	if len(count) != 31 || count[1] != 2 || count[30] != 0 {
		t.Fatalf("unexpected counts %v", count)
	}
}

func TestCalendarListsOpenTasks(t *testing.T) {
	pp, buf := newPrinter(false)
	due := time.Date(2026, 3, 14, 0, 0, 0, 0, time.Local)
	pp.Calendar(now, []entity.Task{{Title: "pay rent", DueAt: &due}, {Title: "someday"}})
	out := buf.String()
	if !strings.Contains(out, "14 S  ○ pay rent") {
		t.Errorf("expected due task on the 14th:\n%s", out)
	}
	if !strings.Contains(out, "Open\n○ someday") {
		t.Errorf("expected undated task under Open:\n%s", out)
	}
}

func TestMonthMath(t *testing.T) {
	feb := time.Date(2028, 2, 10, 0, 0, 0, 0, time.Local)
	if DaysIn(feb) != 29 {
		t.Errorf("expected a leap February, got %d days", DaysIn(feb))
	}
	if StartDay(feb) != time.Tuesday {
		t.Errorf("expected February 2028 to start on Tuesday, got %s", StartDay(feb))
	}
	if next := NextMonth(time.Date(2026, 1, 31, 0, 0, 0, 0, time.Local)); next.Month() != time.February {
		t.Errorf("expected February, got %s", next.Month())
	}
}

func TestStructuredYAML(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := Structured(buf, FormatYAML, entity.TaskList{ID: "default", Name: "Tasks"}); err != nil {
		t.Fatalf("Structured failed: %v", err)
	}
	if !strings.Contains(buf.String(), "name: Tasks") {
		t.Fatalf("unexpected yaml %q", buf.String())
	}
	if err := Structured(buf, "toml", nil); err == nil {
		t.Fatal("expected an error for an unknown format")
	}
}
