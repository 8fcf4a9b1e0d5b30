// Package glyph holds the symbols the CLI prints next to tasks, notes and
// sync states.
package glyph

import (
	"fmt"

	"tableflip.dev/taskpad/pkg/entity"
)

type Glyph struct {
	Key     string
	Symbol  string
	Meaning string
	// Status marks glyphs that describe sync state rather than content.
	Status bool
}

const (
	escape     = "\x1b"
	resetCode  = 0
	strikeCode = 9
)

func Strike(in string) string {
	return fmt.Sprintf("%s[%dm%s%s[%dm", escape, strikeCode, in, escape, resetCode)
}

type Kind int

const (
	Task Kind = iota
	Completed
	Important
	Step
	StepDone
	Note
	Pending
	Syncing
	Synced
	Failed
)

var defaults = []Glyph{
	Task:      {Key: "o", Symbol: "○", Meaning: "open task"},
	Completed: {Key: "x", Symbol: "✘", Meaning: "completed task"},
	Important: {Key: "*", Symbol: "✷", Meaning: "important"},
	Step:      {Key: "-", Symbol: "◦", Meaning: "open step"},
	StepDone:  {Key: "+", Symbol: "•", Meaning: "completed step"},
	Note:      {Key: "n", Symbol: "⁃", Meaning: "note"},
	Pending:   {Key: "p", Symbol: "…", Meaning: "waiting to sync", Status: true},
	Syncing:   {Key: "s", Symbol: "↻", Meaning: "syncing", Status: true},
	Synced:    {Key: " ", Symbol: " ", Meaning: "synced", Status: true},
	Failed:    {Key: "!", Symbol: "!", Meaning: "sync failed", Status: true},
}

// DefaultGlyphs returns the legend in display order.
func DefaultGlyphs() []Glyph {
	out := make([]Glyph, len(defaults))
	copy(out, defaults)
	return out
}

func (g Glyph) String() string {
	return g.Symbol
}

func (k Kind) Glyph() Glyph {
	return defaults[k]
}

func (k Kind) String() string {
	return k.Glyph().String()
}

// ForTask picks the bullet for a task.
func ForTask(t entity.Task) Kind {
	if t.Completed {
		return Completed
	}
	return Task
}

// ForStep picks the bullet for a step.
func ForStep(s entity.Step) Kind {
	if s.Completed {
		return StepDone
	}
	return Step
}

// ForStatus maps a sync status onto its glyph.
func ForStatus(s entity.SyncStatus) Kind {
	switch s {
	case entity.StatusPending:
		return Pending
	case entity.StatusSyncing:
		return Syncing
	case entity.StatusError:
		return Failed
	default:
		return Synced
	}
}
