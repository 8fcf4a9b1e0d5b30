package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"tableflip.dev/taskpad/pkg/app"
	"tableflip.dev/taskpad/pkg/cache"
	"tableflip.dev/taskpad/pkg/commands/options"
	"tableflip.dev/taskpad/pkg/entity"
	"tableflip.dev/taskpad/pkg/printers"
)

func addList(topLevel *cobra.Command) {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"lists", "l"},
		Short:   "Work with task lists",
	}

	addListAdd(cmd)
	addListLs(cmd)
	addListRename(cmd)
	addListRemove(cmd)
	addListMigrate(cmd)

	topLevel.AddCommand(cmd)
}

func printList(ws *app.Workspace, id string) error {
	item, ok := ws.List(id)
	if err := syncErr(item, ok); err != nil {
		return err
	}
	if oo.Structured() {
		return oo.Print(item.Entity)
	}
	pp := printers.PrettyPrint{ShowID: ido.ShowID}
	pp.Lists(listRows(ws, []cache.Item[entity.TaskList]{item}))
	return nil
}

func listRows(ws *app.Workspace, lists []cache.Item[entity.TaskList]) []printers.ListRow {
	rows := make([]printers.ListRow, len(lists))
	for i, l := range lists {
		rows[i].Item = l
		for _, t := range ws.Tasks(app.TaskFilter{ListID: l.Entity.ID}) {
			rows[i].Total++
			if !t.Entity.Completed {
				rows[i].Open++
			}
		}
	}
	return rows
}

func addListAdd(parent *cobra.Command) {
	var color string

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a list",
		Example: `
taskpad list add groceries --color "#22c55e"
`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			ctx := cmd.Context()
			ws, done, err := openWorkspace(ctx)
			if err != nil {
				return oo.HandleError(err)
			}
			defer done()

			l, err := ws.CreateList(strings.Join(args, " "), color)
			if err != nil {
				return oo.HandleError(err)
			}
			if err := ws.Flush(ctx); err != nil {
				return oo.HandleError(err)
			}
			return oo.HandleError(printList(ws, l.ID))
		},
	}
	cmd.Flags().StringVar(&color, "color", "", fmt.Sprintf("List color, defaults to %s.", entity.DefaultColor))
	options.AddShowIDArgs(cmd, ido)
	options.AddOutputArg(cmd, oo)
	parent.AddCommand(cmd)
}

func addListLs(parent *cobra.Command) {
	cmd := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "Show every list with its task counts",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			ws, done, err := openWorkspace(cmd.Context())
			if err != nil {
				return oo.HandleError(err)
			}
			defer done()

			rows := listRows(ws, ws.Lists())
			if oo.Structured() {
				lists := make([]entity.TaskList, len(rows))
				for i, r := range rows {
					lists[i] = r.Item.Entity
				}
				return oo.Print(lists)
			}
			pp := printers.PrettyPrint{ShowID: ido.ShowID}
			pp.TitleWithCount("Lists", len(rows), "list")
			pp.Lists(rows)
			return nil
		},
	}
	options.AddShowIDArgs(cmd, ido)
	options.AddOutputArg(cmd, oo)
	parent.AddCommand(cmd)
}

func addListRename(parent *cobra.Command) {
	var color string

	cmd := &cobra.Command{
		Use:   "rename <list> [name]",
		Short: "Rename or recolor a list",
		Example: `
taskpad list rename groceries shopping
taskpad list rename shopping --color "#f97316"
`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			if len(args) == 1 && color == "" {
				return errors.New("nothing to change, give a new name or --color")
			}
			ctx := cmd.Context()
			ws, done, err := openWorkspace(ctx)
			if err != nil {
				return oo.HandleError(err)
			}
			defer done()

			l, err := findList(ws, args[0])
			if err != nil {
				return oo.HandleError(err)
			}
			if len(args) > 1 {
				if _, err := ws.RenameList(l.ID, strings.Join(args[1:], " ")); err != nil {
					return oo.HandleError(err)
				}
			}
			if color != "" {
				if _, err := ws.RecolorList(l.ID, color); err != nil {
					return oo.HandleError(err)
				}
			}
			if err := ws.Flush(ctx); err != nil {
				return oo.HandleError(err)
			}
			return oo.HandleError(printList(ws, l.ID))
		},
	}
	cmd.Flags().StringVar(&color, "color", "", "New list color.")
	cmd.ValidArgsFunction = listCompletions
	options.AddShowIDArgs(cmd, ido)
	options.AddOutputArg(cmd, oo)
	parent.AddCommand(cmd)
}

func addListRemove(parent *cobra.Command) {
	var (
		moveTo  string
		cascade bool
		yes     bool
	)
	inter := &options.InteractiveOptions{}

	cmd := &cobra.Command{
		Use:     "rm <list>",
		Aliases: []string{"delete"},
		Short:   "Delete a list",
		Long: `Delete a list. Its tasks move to the default list unless --move-to names
another list or --cascade deletes them too. The default list cannot be deleted.`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: listCompletions,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			if cascade && moveTo != "" {
				return errors.New("--cascade and --move-to cannot be combined")
			}
			ctx := cmd.Context()
			ws, done, err := openWorkspace(ctx)
			if err != nil {
				return oo.HandleError(err)
			}
			defer done()

			l, err := findList(ws, args[0])
			if err != nil {
				return oo.HandleError(err)
			}
			if l.IsDefault {
				return oo.HandleError(app.ErrDefaultList)
			}

			opts := app.DeleteListOptions{Cascade: cascade}
			if moveTo != "" {
				target, err := findList(ws, moveTo)
				if err != nil {
					return oo.HandleError(err)
				}
				opts.MoveTo = target.ID
			}
			if inter.Prompt() {
				if !cascade && moveTo == "" {
					var lists []entity.TaskList
					for _, item := range ws.Lists() {
						lists = append(lists, item.Entity)
					}
					if opts.MoveTo, err = chooseList(cmd, lists, l.ID); err != nil {
						return err
					}
				}
				if !yes && !confirm(cmd, fmt.Sprintf("Delete list %q", l.Name)) {
					return nil
				}
			}

			if err := ws.DeleteList(ctx, l.ID, opts); err != nil {
				return oo.HandleError(err)
			}
			if oo.Structured() {
				return oo.Print(map[string]string{"deleted": l.ID})
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "deleted list %s\n", l.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&moveTo, "move-to", "", "List that receives the tasks, defaults to the default list.")
	cmd.Flags().BoolVar(&cascade, "cascade", false, "Delete the tasks of the list as well.")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation.")
	_ = cmd.RegisterFlagCompletionFunc("move-to", listCompletions)
	options.InteractiveArgs(cmd, inter)
	options.AddOutputArg(cmd, oo)
	parent.AddCommand(cmd)
}

func addListMigrate(parent *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "migrate <from> <to>",
		Short: "Move every task of one list to another",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			ctx := cmd.Context()
			ws, done, err := openWorkspace(ctx)
			if err != nil {
				return oo.HandleError(err)
			}
			defer done()

			from, err := findList(ws, args[0])
			if err != nil {
				return oo.HandleError(err)
			}
			to, err := findList(ws, args[1])
			if err != nil {
				return oo.HandleError(err)
			}
			n, err := ws.MoveTasks(ctx, from.ID, to.ID)
			if err != nil {
				return oo.HandleError(err)
			}
			if oo.Structured() {
				return oo.Print(map[string]any{"from": from.ID, "to": to.ID, "moved": n})
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "moved %d tasks from %s to %s\n", n, from.Name, to.Name)
			return nil
		},
	}
	options.AddOutputArg(cmd, oo)
	parent.AddCommand(cmd)
}
