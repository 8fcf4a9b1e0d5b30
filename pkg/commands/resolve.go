package commands

import (
	"fmt"
	"strconv"
	"strings"

	"tableflip.dev/taskpad/pkg/app"
	"tableflip.dev/taskpad/pkg/cache"
	"tableflip.dev/taskpad/pkg/entity"
)

type taskItem = cache.Item[entity.Task]

// match picks the one candidate whose id equals ref, or failing that the one
// whose id starts with ref or whose title equals it case-insensitively.
func match[E any](kind string, ref string, items []cache.Item[E], id func(E) string, title func(E) string) (E, error) {
	var zero E
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return zero, fmt.Errorf("%s reference is required", kind)
	}
	var found []E
	for _, item := range items {
		if id(item.Entity) == ref {
			return item.Entity, nil
		}
		if strings.HasPrefix(id(item.Entity), ref) || strings.EqualFold(title(item.Entity), ref) {
			found = append(found, item.Entity)
		}
	}
	switch len(found) {
	case 0:
		return zero, fmt.Errorf("no %s matches %q", kind, ref)
	case 1:
		return found[0], nil
	}
	return zero, fmt.Errorf("%q matches %d %ss, use a longer id", ref, len(found), kind)
}

func findTask(ws *app.Workspace, ref string) (entity.Task, error) {
	return match("task", ref, ws.Tasks(app.TaskFilter{}),
		func(t entity.Task) string { return t.ID },
		func(t entity.Task) string { return t.Title })
}

func findNote(ws *app.Workspace, ref string) (entity.Note, error) {
	return match("note", ref, ws.Notes(""),
		func(n entity.Note) string { return n.ID },
		func(n entity.Note) string { return n.Title })
}

// findList accepts an id, a name or an id prefix.
func findList(ws *app.Workspace, ref string) (entity.TaskList, error) {
	if l, ok := ws.FindList(ref); ok {
		return l, nil
	}
	return match("list", ref, ws.Lists(),
		func(l entity.TaskList) string { return l.ID },
		func(l entity.TaskList) string { return l.Name })
}

// findStep accepts a step id, an id prefix or a 1-based position.
func findStep(t entity.Task, ref string) (entity.Step, error) {
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(t.Steps) {
			return entity.Step{}, fmt.Errorf("task %q has no step %d", t.Title, n)
		}
		return t.Steps[n-1], nil
	}
	items := make([]cache.Item[entity.Step], len(t.Steps))
	for i, s := range t.Steps {
		items[i] = cache.Item[entity.Step]{Entity: s}
	}
	return match("step", ref, items,
		func(s entity.Step) string { return s.ID },
		func(s entity.Step) string { return s.Title })
}

// listNames maps list ids to display names.
func listNames(ws *app.Workspace) map[string]string {
	names := make(map[string]string)
	for _, item := range ws.Lists() {
		names[item.Entity.ID] = item.Entity.Name
	}
	return names
}
