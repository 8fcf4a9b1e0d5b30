package commands

import (
	"github.com/spf13/cobra"

	"tableflip.dev/taskpad/pkg/commands/options"
)

var (
	oo  = &options.OutputOptions{}
	ido = &options.IDOptions{}
	ro  = &rootOptions{}
)

type rootOptions struct {
	Owner   string
	Backend string
}

func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "taskpad",
		Short: options.Wrap80("Tasks, lists and notes that update instantly and sync in the background."),
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return oo.Validate()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVar(&ro.Owner, "owner", "", "Owner id to act as, overrides the configured owner.")
	cmd.PersistentFlags().StringVar(&ro.Backend, "backend", "",
		"Remote store: local, memory, docstore, rest or googletasks.")
	_ = cmd.RegisterFlagCompletionFunc("backend", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return backends, cobra.ShellCompDirectiveNoFileComp
	})

	AddCommands(cmd)
	return cmd
}

func AddCommands(topLevel *cobra.Command) {
	addTask(topLevel)
	addList(topLevel)
	addNote(topLevel)
	addImport(topLevel)
	addServe(topLevel)
	addWatch(topLevel)
	addMCP(topLevel)
	addKey(topLevel)
	addVersion(topLevel)
	addCompletions(topLevel)
}
