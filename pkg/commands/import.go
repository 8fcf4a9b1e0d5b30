package commands

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"tableflip.dev/taskpad/pkg/commands/options"
	"tableflip.dev/taskpad/pkg/printers"
)

func addImport(topLevel *cobra.Command) {
	var list string

	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Create tasks from a Markdown checklist",
		Long: options.Wrap80(`Import reads a Markdown checklist from file, or stdin when no file is
given, and creates one task per top level item. Nested items become steps, a
trailing ! marks a task important, and plain text lines become task notes.`),
		Example: `
taskpad import packing.md --list travel
pbpaste | taskpad import
`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			var (
				text []byte
				err  error
			)
			if len(args) == 1 && args[0] != "-" {
				text, err = os.ReadFile(args[0])
			} else {
				text, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return oo.HandleError(err)
			}

			ctx := cmd.Context()
			ws, done, err := openWorkspace(ctx)
			if err != nil {
				return oo.HandleError(err)
			}
			defer done()

			listID := ""
			if list != "" {
				l, err := findList(ws, list)
				if err != nil {
					return oo.HandleError(err)
				}
				listID = l.ID
			}
			res, err := ws.Import(ctx, string(text), listID)
			if err != nil {
				return oo.HandleError(err)
			}
			if oo.Structured() {
				return oo.Print(res)
			}
			pp := printers.PrettyPrint{ShowID: ido.ShowID}
			pp.Import(res)
			return nil
		},
	}
	cmd.Flags().StringVarP(&list, "list", "l", "", "List that receives the tasks, defaults to the default list.")
	_ = cmd.RegisterFlagCompletionFunc("list", listCompletions)
	options.AddShowIDArgs(cmd, ido)
	options.AddOutputArg(cmd, oo)
	topLevel.AddCommand(cmd)
}
