package entity

import (
	"strings"
	"time"
)

const (
	// DefaultListID identifies the per-owner list that can never be deleted.
	DefaultListID = "default"
	// DefaultListName is the display name of the seeded default list.
	DefaultListName = "Tasks"
	// DefaultColor is used when a list is created without a color.
	DefaultColor = "#3b82f6"
)

// TaskList groups tasks. Exactly one list per owner has IsDefault set.
type TaskList struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	IsDefault bool      `json:"isDefault,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (l TaskList) Key() string        { return l.ID }
func (l TaskList) Owner() string      { return l.OwnerID }
func (l TaskList) Created() time.Time { return l.CreatedAt }
func (l TaskList) Updated() time.Time { return l.UpdatedAt }

func (l TaskList) WithKey(id string) TaskList {
	l.ID = id
	return l
}

func (l TaskList) WithOwner(owner string) TaskList {
	l.OwnerID = owner
	return l
}

func (l TaskList) Stamped(created, updated time.Time) TaskList {
	l.CreatedAt = created
	l.UpdatedAt = updated
	if l.Color == "" {
		l.Color = DefaultColor
	}
	return l
}

// ReservedKey pins the default list to DefaultListID in every store.
func (l TaskList) ReservedKey() string {
	if l.IsDefault {
		return DefaultListID
	}
	return ""
}

func (l TaskList) Validate() error {
	if strings.TrimSpace(l.Name) == "" {
		return required(KindLists, "name")
	}
	return nil
}

// TaskListPatch renames or recolors a list.
type TaskListPatch struct {
	Name  *string `json:"name,omitempty"`
	Color *string `json:"color,omitempty"`
}

func (p TaskListPatch) Apply(l TaskList) TaskList {
	if p.Name != nil {
		l.Name = *p.Name
	}
	if p.Color != nil {
		l.Color = *p.Color
	}
	return l
}

func (p TaskListPatch) Merge(next TaskListPatch) TaskListPatch {
	if next.Name != nil {
		p.Name = next.Name
	}
	if next.Color != nil {
		p.Color = next.Color
	}
	return p
}
