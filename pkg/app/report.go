package app

import (
	"sort"
	"time"

	"tableflip.dev/taskpad/pkg/entity"
)

// ReportSection groups the tasks completed in one list.
type ReportSection struct {
	ListID string
	List   string
	Tasks  []entity.Task
}

// ReportResult is a completed-tasks report for a time window.
type ReportResult struct {
	Since    time.Time
	Until    time.Time
	Sections []ReportSection
	Total    int
}

// Report returns the tasks completed between since and until, grouped by
// list name and ordered by completion time within each list.
func (w *Workspace) Report(since, until time.Time) ReportResult {
	if since.After(until) {
		since, until = until, since
	}
	grouped := make(map[string][]entity.Task)
	total := 0
	for _, item := range w.tasks.Visible() {
		t := item.Entity
		if !t.Completed || t.CompletedAt == nil {
			continue
		}
		if t.CompletedAt.Before(since) || t.CompletedAt.After(until) {
			continue
		}
		grouped[t.ListID] = append(grouped[t.ListID], t)
		total++
	}
	if total == 0 {
		return ReportResult{Since: since, Until: until}
	}

	sections := make([]ReportSection, 0, len(grouped))
	for listID, tasks := range grouped {
		sort.SliceStable(tasks, func(i, j int) bool {
			return tasks[i].CompletedAt.Before(*tasks[j].CompletedAt)
		})
		name := listID
		if item, ok := w.lists.Get(listID); ok {
			name = item.Entity.Name
		}
		sections = append(sections, ReportSection{ListID: listID, List: name, Tasks: tasks})
	}
	sort.Slice(sections, func(i, j int) bool { return sections[i].List < sections[j].List })

	return ReportResult{
		Since:    since,
		Until:    until,
		Sections: sections,
		Total:    total,
	}
}
