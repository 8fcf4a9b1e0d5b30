// Package importer turns a pasted block of free text into draft tasks with
// steps. It tolerates the checkbox notations people paste from other tools:
// markdown checkboxes, unicode ballot glyphs, bullets, numbered lines and
// TODO:/DONE: style prefixes. Lines it cannot classify become notes.
package importer

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// Node is one parsed line. Depth 0 is a task, depth 1 a step of its parent,
// deeper nodes are nested children that are kept in the tree only.
type Node struct {
	Title     string
	Completed bool
	Important bool
	Notes     string
	Depth     int
	Children  []*Node
}

func (n *Node) addNote(note string) {
	note = strings.TrimSpace(note)
	if note == "" {
		return
	}
	if n.Notes == "" {
		n.Notes = note
		return
	}
	n.Notes += "\n" + note
}

func (n *Node) prependNote(note string) {
	note = strings.TrimSpace(note)
	if note == "" {
		return
	}
	if n.Notes == "" {
		n.Notes = note
		return
	}
	n.Notes = note + "\n" + n.Notes
}

var (
	checkboxLine = regexp.MustCompile(`^(?:[-*+•]\s+)?\[([ xX✓✔/-]?)\]\s*(.*)$`)
	glyphLine    = regexp.MustCompile(`^([☐□⬜☑☒✓✔✅✗✘])\s*(.*)$`)
	prefixLine   = regexp.MustCompile(`(?i)^(todo|fazer|feito|conclu[ií]do|done)\s*[:\-]\s*(.*)$`)
	numberedLine = regexp.MustCompile(`^\d+[.)]\s+(.*)$`)
	bulletLine   = regexp.MustCompile(`^[-*+•]\s+(.*)$`)
	notesLine    = regexp.MustCompile(`(?i)^(?:notas?|notes?|obs)\s*:\s*(.*)$`)
	quoteLine    = regexp.MustCompile(`^>\s?(.*)$`)

	leadingBang  = regexp.MustCompile(`^!{1,3}\s*`)
	trailingBang = regexp.MustCompile(`\s*!{1,3}$`)
	trailingTag  = regexp.MustCompile(`\s+#([\p{L}\p{N}_][\p{L}\p{N}_-]*)$`)
	onlyTag      = regexp.MustCompile(`^#([\p{L}\p{N}_][\p{L}\p{N}_-]*)$`)
	commentNote  = regexp.MustCompile(`\s+//\s*(.*)$`)
	inlineNote   = regexp.MustCompile(`(?i)\s+(?:-\s+)?(?:notas?|notes?|obs)\s*:\s*(.*)$`)
	parenNote    = regexp.MustCompile(`\s*\(([^()]*)\)$`)
)

type lineKind int

const (
	lineBlank lineKind = iota
	lineTask
	lineNote
	linePlain
)

type line struct {
	kind  lineKind
	width int
	level int
	text  string
	done  bool
}

// Parse builds the task forest for text. It never fails: unrecognized lines
// end up in the notes of the nearest task.
func Parse(text string) []*Node {
	lines := scan(text)
	assignLevels(lines)

	anyTask := false
	for _, l := range lines {
		if l.kind == lineTask {
			anyTask = true
			break
		}
	}
	if !anyTask {
		// Plain lists without any marker: every line is a task.
		for i := range lines {
			if lines[i].kind == linePlain {
				lines[i].kind = lineTask
			}
		}
	}

	p := &parser{}
	for _, l := range lines {
		p.feed(l)
	}
	p.finish()
	return p.roots
}

func scan(text string) []line {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	raw := strings.Split(text, "\n")
	out := make([]line, 0, len(raw))
	for _, r := range raw {
		width, rest := indent(r)
		rest = strings.TrimRightFunc(rest, unicode.IsSpace)
		if rest == "" {
			out = append(out, line{kind: lineBlank})
			continue
		}
		out = append(out, classify(width, rest))
	}
	return out
}

// indent returns the leading whitespace width with tabs counted as four
// columns, and the remainder of the line.
func indent(s string) (int, string) {
	width := 0
	for i, r := range s {
		switch r {
		case ' ', '\u00a0':
			width++
		case '\t':
			width += 4
		default:
			return width, s[i:]
		}
	}
	return width, ""
}

func classify(width int, text string) line {
	if m := notesLine.FindStringSubmatch(text); m != nil {
		return line{kind: lineNote, width: width, text: m[1]}
	}
	if m := quoteLine.FindStringSubmatch(text); m != nil {
		return line{kind: lineNote, width: width, text: m[1]}
	}
	if title, done, ok := marker(text); ok {
		return line{kind: lineTask, width: width, text: title, done: done}
	}
	return line{kind: linePlain, width: width, text: text}
}

// marker strips a recognized task marker and reports the completion state
// it encodes.
func marker(text string) (string, bool, bool) {
	if m := checkboxLine.FindStringSubmatch(text); m != nil {
		switch m[1] {
		case "x", "X", "✓", "✔":
			return m[2], true, true
		}
		return m[2], false, true
	}
	if m := glyphLine.FindStringSubmatch(text); m != nil {
		switch m[1] {
		case "☑", "☒", "✓", "✔", "✅":
			return m[2], true, true
		}
		return m[2], false, true
	}
	if m := prefixLine.FindStringSubmatch(text); m != nil {
		switch strings.ToLower(m[1]) {
		case "feito", "concluído", "concluido", "done":
			return m[2], true, true
		}
		return m[2], false, true
	}
	if m := numberedLine.FindStringSubmatch(text); m != nil {
		if title, done, ok := marker(m[1]); ok {
			return title, done, true
		}
		return m[1], false, true
	}
	if m := bulletLine.FindStringSubmatch(text); m != nil {
		if title, done, ok := marker(m[1]); ok {
			return title, done, true
		}
		return m[1], false, true
	}
	return "", false, false
}

// assignLevels maps every width to its rank among the distinct widths of
// non-blank lines.
func assignLevels(lines []line) {
	seen := map[int]bool{}
	var widths []int
	for _, l := range lines {
		if l.kind == lineBlank || seen[l.width] {
			continue
		}
		seen[l.width] = true
		widths = append(widths, l.width)
	}
	sort.Ints(widths)
	rank := make(map[int]int, len(widths))
	for i, w := range widths {
		rank[w] = i
	}
	for i := range lines {
		if lines[i].kind != lineBlank {
			lines[i].level = rank[lines[i].width]
		}
	}
}

type parser struct {
	roots     []*Node
	stack     []*Node
	paragraph []string
	afterTask bool
}

func (p *parser) feed(l line) {
	switch l.kind {
	case lineBlank:
		p.afterTask = false
	case lineTask:
		p.task(l)
	case lineNote:
		if target := p.noteTarget(l.level); target != nil {
			target.addNote(l.text)
			return
		}
		p.paragraph = append(p.paragraph, l.text)
	case linePlain:
		if l.level > 0 || p.afterTask {
			if target := p.noteTarget(l.level); target != nil {
				target.addNote(l.text)
				return
			}
		}
		p.paragraph = append(p.paragraph, l.text)
	}
}

func (p *parser) task(l line) {
	level := l.level
	if level > len(p.stack) {
		level = len(p.stack)
	}
	node := &Node{Depth: level, Completed: l.done}
	cleanTitle(node, l.text)

	if level == 0 {
		p.roots = append(p.roots, node)
		p.stack = []*Node{node}
	} else {
		parent := p.stack[level-1]
		parent.Children = append(parent.Children, node)
		p.stack = append(p.stack[:level], node)
	}
	if len(p.paragraph) > 0 {
		p.holder(node).prependNote(strings.Join(p.paragraph, "\n"))
		p.paragraph = nil
	}
	p.afterTask = true
}

// noteTarget finds the task a note at level belongs to: the parent of that
// level, or the current root for level 0.
func (p *parser) noteTarget(level int) *Node {
	if len(p.stack) == 0 {
		return nil
	}
	idx := level - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(p.stack) {
		idx = len(p.stack) - 1
	}
	return p.holder(p.stack[idx])
}

// holder returns n, or its root when n is a step; steps carry no notes.
func (p *parser) holder(n *Node) *Node {
	if n.Depth == 1 && len(p.stack) > 0 {
		return p.stack[0]
	}
	return n
}

func (p *parser) finish() {
	if len(p.paragraph) == 0 || len(p.roots) == 0 {
		return
	}
	p.roots[len(p.roots)-1].addNote(strings.Join(p.paragraph, "\n"))
	p.paragraph = nil
}

// cleanTitle strips importance marks, trailing tags and note suffixes from
// raw and records them on n.
func cleanTitle(n *Node, raw string) {
	title := strings.TrimSpace(raw)
	var notes []string
	var tags []string

	for {
		before := title
		if m := trailingTag.FindStringSubmatch(title); m != nil {
			tags = append([]string{"#" + m[1]}, tags...)
			title = strings.TrimSpace(title[:len(title)-len(m[0])])
		}
		if trailingBang.MatchString(title) && strings.TrimRight(title, "!") != "" {
			n.Important = true
			title = strings.TrimSpace(trailingBang.ReplaceAllString(title, ""))
		}
		if before == title {
			break
		}
	}
	if m := commentNote.FindStringSubmatchIndex(title); m != nil {
		notes = append(notes, title[m[2]:m[3]])
		title = strings.TrimSpace(title[:m[0]])
	}
	if m := inlineNote.FindStringSubmatchIndex(title); m != nil {
		notes = append([]string{title[m[2]:m[3]]}, notes...)
		title = strings.TrimSpace(title[:m[0]])
	}
	if m := parenNote.FindStringSubmatchIndex(title); m != nil && m[0] > 0 {
		notes = append([]string{title[m[2]:m[3]]}, notes...)
		title = strings.TrimSpace(title[:m[0]])
	}
	if loc := leadingBang.FindStringIndex(title); loc != nil && len(title) > loc[1] {
		n.Important = true
		title = title[loc[1]:]
	}
	if trailingBang.MatchString(title) && strings.TrimRight(title, "!") != "" {
		n.Important = true
		title = strings.TrimSpace(trailingBang.ReplaceAllString(title, ""))
	}
	if m := onlyTag.FindStringSubmatch(title); m != nil && len(tags) > 0 {
		tags = append([]string{"#" + m[1]}, tags...)
		title = ""
	}

	if title == "" {
		title = strings.TrimSpace(raw)
		tags = nil
		notes = nil
	}
	n.Title = title
	for _, note := range notes {
		n.addNote(note)
	}
	if len(tags) > 0 {
		n.addNote("Tags: " + strings.Join(tags, " "))
	}
}
