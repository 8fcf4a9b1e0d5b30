package commands

import (
	"github.com/spf13/cobra"

	"tableflip.dev/taskpad/pkg/printers"
)

func addKey(topLevel *cobra.Command) {
	cmd := &cobra.Command{
		Use:     "key",
		Aliases: []string{"legend"},
		Short:   "Print the glyphs used for tasks, steps, notes and sync state",
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			pp := printers.PrettyPrint{Out: cmd.OutOrStdout()}
			pp.Legend()
		},
	}
	topLevel.AddCommand(cmd)
}
