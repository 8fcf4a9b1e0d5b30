// Package markdown renders note content.
package markdown

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

var md = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithExtensions(&externalLinks{}),
)

// HTML renders content to an HTML fragment. Raw HTML in the source is
// escaped.
func HTML(content string) (string, error) {
	var b strings.Builder
	if err := md.Convert([]byte(content), &b); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Excerpt returns the first max runes of the note's text with the Markdown
// syntax stripped and whitespace collapsed.
func Excerpt(content string, max int) string {
	source := []byte(content)
	doc := md.Parser().Parse(text.NewReader(source))
	var b bytes.Buffer
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock {
				b.WriteByte(' ')
			}
			return ast.WalkContinue, nil
		}
		switch t := n.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		case *ast.AutoLink:
			b.Write(t.URL(source))
		}
		return ast.WalkContinue, nil
	})
	out := strings.Join(strings.Fields(b.String()), " ")
	if max <= 0 {
		return out
	}
	if r := []rune(out); len(r) > max {
		return strings.TrimSpace(string(r[:max])) + "…"
	}
	return out
}

type externalLinks struct{}

func (e *externalLinks) Extend(m goldmark.Markdown) {
	m.Parser().AddOptions(parser.WithASTTransformers(
		util.Prioritized(&externalLinkTransformer{}, 100),
	))
}

type externalLinkTransformer struct{}

// Transform opens absolute links in a new tab.
func (t *externalLinkTransformer) Transform(node *ast.Document, reader text.Reader, pc parser.Context) {
	_ = ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		var dest []byte
		switch link := n.(type) {
		case *ast.Link:
			dest = link.Destination
		case *ast.AutoLink:
			if link.AutoLinkType == ast.AutoLinkURL {
				dest = link.URL(reader.Source())
			}
		default:
			return ast.WalkContinue, nil
		}
		if external(dest) {
			n.SetAttributeString("target", []byte("_blank"))
			n.SetAttributeString("rel", []byte("noopener noreferrer"))
		}
		return ast.WalkContinue, nil
	})
}

func external(dest []byte) bool {
	s := strings.ToLower(strings.TrimSpace(string(dest)))
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "//")
}
