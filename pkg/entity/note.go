package entity

import (
	"regexp"
	"strings"
	"time"
)

// UntitledNote is used for drafts whose title is blank.
const UntitledNote = "Untitled"

// Note is a Markdown document. Tags are derived from the content.
type Note struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (n Note) Key() string        { return n.ID }
func (n Note) Owner() string      { return n.OwnerID }
func (n Note) Created() time.Time { return n.CreatedAt }
func (n Note) Updated() time.Time { return n.UpdatedAt }

func (n Note) WithKey(id string) Note {
	n.Tags = append([]string(nil), n.Tags...)
	n.ID = id
	return n
}

func (n Note) WithOwner(owner string) Note {
	n.Tags = append([]string(nil), n.Tags...)
	n.OwnerID = owner
	return n
}

// Stamped also fills the derived fields so every created note carries tags.
func (n Note) Stamped(created, updated time.Time) Note {
	n.CreatedAt = created
	n.UpdatedAt = updated
	if strings.TrimSpace(n.Title) == "" {
		n.Title = UntitledNote
	}
	n.Tags = ExtractTags(n.Content)
	return n
}

func (n Note) Validate() error {
	if strings.TrimSpace(n.Title) == "" && strings.TrimSpace(n.Content) == "" {
		return required(KindNotes, "title")
	}
	return nil
}

// HasTag reports whether the note carries tag, ignoring case.
func (n Note) HasTag(tag string) bool {
	tag = strings.TrimPrefix(tag, "#")
	for _, t := range n.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// NotePatch edits a note. Changing content re-derives the tags.
type NotePatch struct {
	Title   *string `json:"title,omitempty"`
	Content *string `json:"content,omitempty"`
}

func (p NotePatch) Apply(n Note) Note {
	n.Tags = append([]string(nil), n.Tags...)
	if p.Title != nil {
		n.Title = *p.Title
	}
	if p.Content != nil {
		n.Content = *p.Content
		n.Tags = ExtractTags(n.Content)
	}
	return n
}

func (p NotePatch) Merge(next NotePatch) NotePatch {
	if next.Title != nil {
		p.Title = next.Title
	}
	if next.Content != nil {
		p.Content = next.Content
	}
	return p
}

var tagPattern = regexp.MustCompile(`(?:^|\s)#([\p{L}\p{N}_][\p{L}\p{N}_-]*)`)

// ExtractTags returns the #word tokens of content without the hash,
// deduplicated, in first-seen order.
func ExtractTags(content string) []string {
	tags := []string{}
	seen := map[string]bool{}
	for _, m := range tagPattern.FindAllStringSubmatch(content, -1) {
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		tags = append(tags, m[1])
	}
	return tags
}
