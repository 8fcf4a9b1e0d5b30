package printers

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/gosuri/uitable"

	"tableflip.dev/taskpad/pkg/glyph"
)

// Legend prints the content glyphs and then the sync status glyphs.
func (pp *PrettyPrint) Legend() {
	pp.NewLine()
	var content, status []glyph.Glyph
	for _, g := range glyph.DefaultGlyphs() {
		if g.Status {
			status = append(status, g)
		} else {
			content = append(content, g)
		}
	}
	pp.legend("   Bullets", content)
	pp.NewLine()
	pp.legend("      Sync", status)
	pp.NewLine()
}

func (pp *PrettyPrint) legend(heading string, glyphs []glyph.Glyph) {
	bold := color.New(color.Bold)

	tbl := uitable.New()
	tbl.Separator = "  "
	tbl.AddRow(bold.Sprint(heading), bold.Sprint("Meaning"))
	for _, g := range glyphs {
		tbl.AddRow(g.Symbol, g.Meaning)
	}
	tbl.RightAlign(0)

	_, _ = fmt.Fprintln(pp.out(), tbl)
}
