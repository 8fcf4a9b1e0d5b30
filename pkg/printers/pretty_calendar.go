package printers

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"

	"tableflip.dev/taskpad/pkg/entity"
	"tableflip.dev/taskpad/pkg/glyph"
)

const width = len("11 12 13 14 15 16 17") // an example week

// Calendar prints the month containing on with each task listed against its
// due day. Tasks without a due date are listed after the month.
func (pp *PrettyPrint) Calendar(on time.Time, tasks []entity.Task) {
	then := time.Date(on.Year(), on.Month(), 1, 1, 0, 0, 0, time.Local)
	pp.PrintMonthCount(then, DueCounts(then, tasks))
	pp.PrintMonthLong(then, tasks)
}

// DueCounts counts open tasks per day of the month containing then.
func DueCounts(then time.Time, tasks []entity.Task) []int {
	count := make([]int, DaysIn(then))
	for _, t := range tasks {
		if t.DueAt == nil || t.Completed {
			continue
		}
		due := t.DueAt.Local()
		if due.Year() == then.Year() && due.Month() == then.Month() {
			count[due.Day()-1]++
		}
	}
	return count
}

func (pp *PrettyPrint) PrintMonthCount(then time.Time, count []int) {
	out := pp.out()
	d := StartDay(then)

	tf := color.New(color.Italic)

	m := then.Month().String()
	mid := (width - len(m)) / 2
	_, _ = tf.Fprintf(out, "%s%s%s\n", strings.Repeat(" ", mid), m, strings.Repeat(" ", width-mid-len(m)))

	// Pad out the start of the month.
	for i := time.Sunday; i < d; i++ {
		_, _ = fmt.Fprint(out, "   ")
	}

	l1 := color.New(color.Faint)
	l2 := color.New(color.Bold, color.FgHiWhite)

	for i := 0; i < DaysIn(then); i++ {
		if i < len(count) && count[i] > 0 {
			_, _ = l2.Fprintf(out, "%2d ", i+1)
		} else {
			_, _ = l1.Fprintf(out, "%2d ", i+1)
		}

		d++
		if d > time.Saturday {
			d = time.Sunday
			_, _ = fmt.Fprint(out, "\n")
		}
	}
	_, _ = fmt.Fprint(out, "\n\n")
}

func (pp *PrettyPrint) PrintMonthLong(then time.Time, tasks []entity.Task) {
	out := pp.out()
	p := color.New()
	b := color.New(color.Bold)
	s := color.New(color.Underline)
	bs := color.New(color.Underline, color.Bold)

	now := pp.now().Local()
	thisMonth := now.Year() == then.Year() && now.Month() == then.Month()

	byDay := make(map[int][]entity.Task)
	var open []entity.Task
	for _, t := range tasks {
		if t.DueAt == nil {
			open = append(open, t)
			continue
		}
		due := t.DueAt.Local()
		if due.Year() == then.Year() && due.Month() == then.Month() {
			byDay[due.Day()] = append(byDay[due.Day()], t)
		}
	}

	d := StartDay(then)
	for day := 1; day <= DaysIn(then); day++ {
		printer := p
		today := thisMonth && now.Day() == day
		switch {
		case d == time.Sunday && today:
			printer = bs
		case d == time.Sunday:
			printer = s
		case today:
			printer = b
		}
		_, _ = printer.Fprintf(out, "%2d %s", day, d.String()[0:1])

		for i, t := range byDay[day] {
			if i > 0 {
				_, _ = fmt.Fprint(out, "      ")
			} else {
				_, _ = fmt.Fprint(out, "  ")
			}
			_, _ = fmt.Fprintf(out, "%s %s\n", glyph.ForTask(t), t.Title)
		}
		if len(byDay[day]) == 0 {
			_, _ = fmt.Fprint(out, "\n")
		}

		d++
		if d > time.Saturday {
			d = time.Sunday
		}
	}

	if len(open) > 0 {
		_, _ = color.New(color.Italic).Fprintf(out, "\nOpen\n")
		for _, t := range open {
			_, _ = fmt.Fprintf(out, "%s %s\n", glyph.ForTask(t), t.Title)
		}
	}
}

func NextMonth(then time.Time) time.Time {
	return time.Date(then.Year(), then.Month()+1, 1, 1, 0, 0, 0, then.Location())
}

func DaysIn(then time.Time) int {
	return time.Date(then.Year(), then.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func StartDay(then time.Time) time.Weekday {
	return time.Date(then.Year(), then.Month(), 1, 1, 0, 0, 0, time.UTC).Weekday()
}
