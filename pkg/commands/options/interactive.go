package options

import (
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

type InteractiveOptions struct {
	Interactive bool
}

func InteractiveArgs(cmd *cobra.Command, o *InteractiveOptions) {
	cmd.Flags().BoolVarP(&o.Interactive, "interactive", "i", false,
		`Prompt for choices that were not given as flags.`)
}

// Prompt reports whether the command may ask questions on the terminal.
func (o *InteractiveOptions) Prompt() bool {
	return o.Interactive && isatty.IsTerminal(os.Stdin.Fd())
}
