package app

import (
	"strings"

	"tableflip.dev/taskpad/pkg/cache"
	"tableflip.dev/taskpad/pkg/entity"
)

// Notes returns the visible notes, newest first. A non-empty tag keeps only
// notes carrying it.
func (w *Workspace) Notes(tag string) []cache.Item[entity.Note] {
	tag = strings.TrimPrefix(strings.TrimSpace(tag), "#")
	items := w.notes.Visible()
	if tag == "" {
		return items
	}
	out := items[:0]
	for _, item := range items {
		if item.Entity.HasTag(tag) {
			out = append(out, item)
		}
	}
	return out
}

// SearchNotes matches q against note titles and content, case-insensitively.
func (w *Workspace) SearchNotes(q string) []cache.Item[entity.Note] {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return w.notes.Visible()
	}
	var out []cache.Item[entity.Note]
	for _, item := range w.notes.Visible() {
		n := item.Entity
		if strings.Contains(strings.ToLower(n.Title), q) || strings.Contains(strings.ToLower(n.Content), q) {
			out = append(out, item)
		}
	}
	return out
}

// Note returns one note by id or placeholder id.
func (w *Workspace) Note(id string) (cache.Item[entity.Note], bool) {
	return w.notes.Get(id)
}

// CreateNote creates a note optimistically. A blank title becomes Untitled.
func (w *Workspace) CreateNote(title, content string) (entity.Note, error) {
	return w.notes.Create(entity.Note{
		Title:   strings.TrimSpace(title),
		Content: content,
		Tags:    entity.ExtractTags(content),
	})
}

// UpdateNote applies patch; tags follow the new content.
func (w *Workspace) UpdateNote(id string, patch entity.NotePatch) (entity.Note, error) {
	return w.notes.Update(id, patch)
}

// DeleteNote deletes a note optimistically.
func (w *Workspace) DeleteNote(id string) error {
	return w.notes.Delete(id)
}
