// Package printers renders workspace state for the terminal.
package printers

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/gosuri/uitable"

	"tableflip.dev/taskpad/pkg/app"
	"tableflip.dev/taskpad/pkg/cache"
	"tableflip.dev/taskpad/pkg/entity"
	"tableflip.dev/taskpad/pkg/glyph"
	"tableflip.dev/taskpad/pkg/importer"
	"tableflip.dev/taskpad/pkg/markdown"
)

type PrettyPrint struct {
	ShowID bool
	// Out defaults to color.Output.
	Out io.Writer
	// Now defaults to time.Now; due dates in the past are highlighted.
	Now func() time.Time
}

func (pp *PrettyPrint) out() io.Writer {
	if pp.Out == nil {
		return color.Output
	}
	return pp.Out
}

func (pp *PrettyPrint) now() time.Time {
	if pp.Now == nil {
		return time.Now()
	}
	return pp.Now()
}

func (pp *PrettyPrint) NewLine() {
	_, _ = fmt.Fprintln(pp.out())
}

func (pp *PrettyPrint) Title(title string) {
	t := color.New(color.Bold, color.Underline)
	_, _ = t.Fprintln(pp.out(), title)
}

func (pp *PrettyPrint) TitleWithCount(title string, count int, noun string) {
	t := color.New(color.Bold, color.Underline)
	c := color.New(color.Faint)

	_, _ = t.Fprint(pp.out(), title)
	_, _ = c.Fprintf(pp.out(), " - %d", count)
	if count == 1 {
		_, _ = c.Fprintf(pp.out(), " %s\n", noun)
	} else {
		_, _ = c.Fprintf(pp.out(), " %ss\n", noun)
	}
}

func (pp *PrettyPrint) none() {
	f := color.New(color.Faint, color.Italic)
	_, _ = f.Fprint(pp.out(), " none\n\n")
}

func (pp *PrettyPrint) table() *uitable.Table {
	tbl := uitable.New()
	tbl.Separator = " "
	tbl.MaxColWidth = 60
	tbl.Wrap = true
	return tbl
}

// Tasks prints one row per task with its steps beneath. listNames maps list
// ids to names; a nil map hides the list column.
func (pp *PrettyPrint) Tasks(items []cache.Item[entity.Task], listNames map[string]string) {
	if len(items) == 0 {
		pp.none()
		return
	}
	y := color.New(color.FgHiYellow, color.Italic, color.Faint)
	f := color.New(color.Faint)
	red := color.New(color.FgRed)
	star := color.New(color.FgYellow, color.Bold)

	tbl := pp.table()
	for _, item := range items {
		t := item.Entity
		row := []any{}
		if pp.ShowID {
			row = append(row, y.Sprint(t.ID))
		}
		status := glyph.ForStatus(item.Status).String()
		if item.Status == entity.StatusError {
			status = red.Sprint(status)
		}
		important := " "
		if t.Important {
			important = star.Sprint(glyph.Important)
		}
		title := t.Title
		if t.Completed {
			title = f.Sprint(glyph.Strike(title))
		}
		row = append(row, status, glyph.ForTask(t).String(), important, title)
		if listNames != nil {
			row = append(row, f.Sprint(listNames[t.ListID]))
		}
		row = append(row, pp.due(t), progress(t.Steps))
		tbl.AddRow(row...)

		for _, s := range t.Steps {
			step := []any{}
			if pp.ShowID {
				step = append(step, y.Sprint(s.ID))
			}
			title := s.Title
			if s.Completed {
				title = f.Sprint(title)
			}
			step = append(step, "", "", " ", "  "+glyph.ForStep(s).String()+" "+title)
			if listNames != nil {
				step = append(step, "")
			}
			step = append(step, "", "")
			tbl.AddRow(step...)
		}
		if item.Error != "" {
			msg := []any{}
			if pp.ShowID {
				msg = append(msg, "")
			}
			msg = append(msg, "", "", " ", red.Sprint("  "+item.Error))
			tbl.AddRow(msg...)
		}
	}
	_, _ = fmt.Fprintln(pp.out(), tbl)
	pp.NewLine()
}

func (pp *PrettyPrint) due(t entity.Task) string {
	if t.DueAt == nil {
		return ""
	}
	label := "due " + t.DueAt.Local().Format("Mon Jan 2")
	if !t.Completed && t.DueAt.Before(pp.now()) {
		return color.New(color.FgRed).Sprint(label)
	}
	return color.New(color.Faint).Sprint(label)
}

func progress(steps []entity.Step) string {
	if len(steps) == 0 {
		return ""
	}
	done := 0
	for _, s := range steps {
		if s.Completed {
			done++
		}
	}
	return color.New(color.Faint).Sprintf("%d/%d", done, len(steps))
}

// ListRow is a list with its task counts.
type ListRow struct {
	Item  cache.Item[entity.TaskList]
	Open  int
	Total int
}

func (pp *PrettyPrint) Lists(rows []ListRow) {
	if len(rows) == 0 {
		pp.none()
		return
	}
	y := color.New(color.FgHiYellow, color.Italic, color.Faint)
	f := color.New(color.Faint)
	bold := color.New(color.Bold)

	tbl := pp.table()
	for _, r := range rows {
		l := r.Item.Entity
		row := []any{}
		if pp.ShowID {
			row = append(row, y.Sprint(l.ID))
		}
		name := l.Name
		if l.IsDefault {
			name = bold.Sprint(name)
		}
		row = append(row, glyph.ForStatus(r.Item.Status).String(), swatch(l.Color), name,
			f.Sprintf("%d open / %d", r.Open, r.Total))
		tbl.AddRow(row...)
	}
	_, _ = fmt.Fprintln(pp.out(), tbl)
	pp.NewLine()
}

// swatch renders a block in the list color when it is a #rrggbb value.
func swatch(hex string) string {
	var r, g, b int
	if _, err := fmt.Sscanf(strings.TrimPrefix(hex, "#"), "%02x%02x%02x", &r, &g, &b); err != nil {
		return "■"
	}
	return color.RGB(r, g, b).Sprint("■")
}

func (pp *PrettyPrint) Notes(items []cache.Item[entity.Note]) {
	if len(items) == 0 {
		pp.none()
		return
	}
	y := color.New(color.FgHiYellow, color.Italic, color.Faint)
	f := color.New(color.Faint)
	c := color.New(color.FgCyan)

	tbl := pp.table()
	for _, item := range items {
		n := item.Entity
		row := []any{}
		if pp.ShowID {
			row = append(row, y.Sprint(n.ID))
		}
		tags := make([]string, len(n.Tags))
		for i, t := range n.Tags {
			tags[i] = "#" + t
		}
		row = append(row, glyph.ForStatus(item.Status).String(), glyph.Note.String(), n.Title,
			f.Sprint(markdown.Excerpt(n.Content, 48)), c.Sprint(strings.Join(tags, " ")))
		tbl.AddRow(row...)
	}
	_, _ = fmt.Fprintln(pp.out(), tbl)
	pp.NewLine()
}

// Note prints one note. When html is set the rendered HTML replaces the
// Markdown source.
func (pp *PrettyPrint) Note(item cache.Item[entity.Note], html bool) error {
	n := item.Entity
	pp.Title(n.Title)
	f := color.New(color.Faint)
	_, _ = f.Fprintf(pp.out(), "updated %s", n.UpdatedAt.Local().Format("2006-01-02 15:04"))
	if len(n.Tags) > 0 {
		_, _ = f.Fprintf(pp.out(), " · #%s", strings.Join(n.Tags, " #"))
	}
	pp.NewLine()
	pp.NewLine()
	body := n.Content
	if html {
		rendered, err := markdown.HTML(n.Content)
		if err != nil {
			return fmt.Errorf("printers: render note: %w", err)
		}
		body = rendered
	}
	_, _ = fmt.Fprintln(pp.out(), strings.TrimRight(body, "\n"))
	return nil
}

func (pp *PrettyPrint) Report(result app.ReportResult, label string) {
	since := result.Since.Local().Format("2006-01-02 15:04")
	until := result.Until.Local().Format("2006-01-02 15:04")
	_, _ = fmt.Fprintf(pp.out(), "Report · last %s (%s → %s)\n", label, since, until)

	if result.Total == 0 {
		_, _ = fmt.Fprintln(pp.out(), "  No completed tasks found in this window.")
		pp.NewLine()
		return
	}
	for _, section := range result.Sections {
		_, _ = fmt.Fprintln(pp.out())
		pp.TitleWithCount(section.List, len(section.Tasks), "task")
		for _, t := range section.Tasks {
			line := fmt.Sprintf("  %s %s", glyph.Completed, t.Title)
			if t.CompletedAt != nil {
				line = fmt.Sprintf("%s  (completed %s)", line, t.CompletedAt.Local().Format("2006-01-02 15:04"))
			}
			_, _ = fmt.Fprintln(pp.out(), line)
		}
	}
	pp.NewLine()
}

func (pp *PrettyPrint) Import(res importer.Result) {
	g := color.New(color.FgGreen)
	r := color.New(color.FgRed)
	_, _ = g.Fprintf(pp.out(), "imported %d", res.Success)
	if res.Failed > 0 {
		_, _ = r.Fprintf(pp.out(), ", %d failed", res.Failed)
	}
	if res.Dropped > 0 {
		_, _ = fmt.Fprintf(pp.out(), ", %d nested items skipped", res.Dropped)
	}
	pp.NewLine()
	for _, err := range res.Errors {
		_, _ = r.Fprintf(pp.out(), "  %v\n", err)
	}
}
