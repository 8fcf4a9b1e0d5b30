package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tableflip.dev/taskpad/pkg/app"
	"tableflip.dev/taskpad/pkg/commands/options"
	"tableflip.dev/taskpad/pkg/entity"
	"tableflip.dev/taskpad/pkg/printers"
	"tableflip.dev/taskpad/pkg/timeutil"
)

func addTask(topLevel *cobra.Command) {
	cmd := &cobra.Command{
		Use:     "task",
		Aliases: []string{"tasks", "t"},
		Short:   "Work with tasks",
	}

	addTaskAdd(cmd)
	addTaskList(cmd)
	addTaskDone(cmd)
	addTaskStar(cmd)
	addTaskRemove(cmd)
	addTaskReport(cmd)
	addStep(cmd)

	topLevel.AddCommand(cmd)
}

func addTaskAdd(parent *cobra.Command) {
	var (
		list      string
		notes     string
		important bool
		steps     []string
	)
	due := &options.DueOptions{}

	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a task",
		Example: `
taskpad task add renew passport --due 2026-5-1 --step photos --step form
taskpad task add milk --list groceries
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

			dueAt, err := due.GetDue()
			if err != nil {
				return oo.HandleError(fmt.Errorf("invalid --due: %w", err))
			}
			draft := entity.Task{
				Title:     strings.Join(args, " "),
				Notes:     notes,
				Important: important,
				DueAt:     dueAt,
			}
			if list != "" {
				l, err := findList(ws, list)
				if err != nil {
					return oo.HandleError(err)
				}
				draft.ListID = l.ID
			}
			for _, s := range steps {
				draft.Steps = entity.AddStep(draft.Steps, entity.Step{Title: s}, time.Now())
			}

			created, err := ws.CreateTask(ctx, draft)
			if err != nil {
				return oo.HandleError(err)
			}
			if err := ws.Flush(ctx); err != nil {
				return oo.HandleError(err)
			}
			item, ok := ws.Task(created.ID)
			if err := syncErr(item, ok); err != nil {
				return oo.HandleError(err)
			}
			if oo.Structured() {
				return oo.Print(item.Entity)
			}
			pp := printers.PrettyPrint{ShowID: ido.ShowID}
			pp.Tasks([]taskItem{item}, nil)
			return nil
		},
	}

	cmd.Flags().StringVarP(&list, "list", "l", "", "List id or name, defaults to the default list.")
	cmd.Flags().StringVar(&notes, "notes", "", "Free text notes.")
	cmd.Flags().BoolVar(&important, "important", false, "Mark the task important.")
	cmd.Flags().StringArrayVar(&steps, "step", nil, "Add a checklist step, may be repeated.")
	_ = cmd.RegisterFlagCompletionFunc("list", listCompletions)
	options.AddDueArgs(cmd, due)
	options.AddShowIDArgs(cmd, ido)
	options.AddOutputArg(cmd, oo)
	parent.AddCommand(cmd)
}

func addTaskList(parent *cobra.Command) {
	var (
		list     string
		within   string
		month    string
		calendar bool
	)
	f := app.TaskFilter{}

	cmd := &cobra.Command{
		Use:     "ls [query]",
		Aliases: []string{"list"},
		Short:   "List tasks",
		Example: `
taskpad task ls
taskpad task ls --list groceries --hide-completed
taskpad task ls --important
taskpad task ls --due-within 3d
taskpad task ls --calendar --month 2026-5
`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			ctx := cmd.Context()
			ws, done, err := openWorkspace(ctx)
			if err != nil {
				return oo.HandleError(err)
			}
			defer done()

			filter := f
			if len(args) == 1 {
				filter.Query = args[0]
			}
			if list != "" {
				l, err := findList(ws, list)
				if err != nil {
					return oo.HandleError(err)
				}
				filter.ListID = l.ID
			}
			if within != "" {
				d, _, err := timeutil.ParseWindow(within)
				if err != nil {
					return oo.HandleError(fmt.Errorf("invalid --due-within: %w", err))
				}
				filter.DueWithin = d
			}

			items := ws.Tasks(filter)
			if oo.Structured() {
				tasks := make([]entity.Task, len(items))
				for i, item := range items {
					tasks[i] = item.Entity
				}
				return oo.Print(tasks)
			}

			pp := printers.PrettyPrint{ShowID: ido.ShowID}
			if calendar {
				on := time.Now()
				if month != "" {
					on, err = time.ParseInLocation("2006-1", month, time.Local)
					if err != nil {
						return fmt.Errorf("invalid --month: %w", err)
					}
				}
				tasks := make([]entity.Task, len(items))
				for i, item := range items {
					tasks[i] = item.Entity
				}
				pp.Calendar(on, tasks)
				return nil
			}

			names := listNames(ws)
			title := "All tasks"
			if filter.ListID != "" {
				title = names[filter.ListID]
				names = nil
			}
			pp.TitleWithCount(title, len(items), "task")
			pp.Tasks(items, names)
			return nil
		},
	}

	cmd.Flags().StringVarP(&list, "list", "l", "", "Only tasks in this list.")
	cmd.Flags().BoolVar(&f.Important, "important", false, "Only important tasks.")
	cmd.Flags().BoolVar(&f.Planned, "planned", false, "Only tasks with a due date.")
	cmd.Flags().BoolVar(&f.Today, "today", false, "Only tasks due today.")
	cmd.Flags().StringVar(&within, "due-within", "", "Only tasks due within this window, for example 3d.")
	cmd.Flags().BoolVar(&f.HideCompleted, "hide-completed", false, "Leave out completed tasks.")
	cmd.Flags().BoolVar(&calendar, "calendar", false, "Show the tasks on a month calendar by due date.")
	cmd.Flags().StringVar(&month, "month", "", "Month for --calendar, example: 2026-5.")
	_ = cmd.RegisterFlagCompletionFunc("list", listCompletions)
	options.AddShowIDArgs(cmd, ido)
	options.AddOutputArg(cmd, oo)
	parent.AddCommand(cmd)
}

// taskEditFunc changes task t. rest holds the arguments after the task
// reference.
type taskEditFunc func(cmd *cobra.Command, ws *app.Workspace, t entity.Task, rest []string) error

// taskEdit is the shared shape of commands that change one task and print it.
func taskEdit(use, short string, args cobra.PositionalArgs, edit taskEditFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			ctx := cmd.Context()
			ws, done, err := openWorkspace(ctx)
			if err != nil {
				return oo.HandleError(err)
			}
			defer done()

			t, err := findTask(ws, args[0])
			if err != nil {
				return oo.HandleError(err)
			}
			if err := edit(cmd, ws, t, args[1:]); err != nil {
				return oo.HandleError(err)
			}
			if err := ws.Flush(ctx); err != nil {
				return oo.HandleError(err)
			}
			item, ok := ws.Task(t.ID)
			if err := syncErr(item, ok); err != nil {
				return oo.HandleError(err)
			}
			if oo.Structured() {
				return oo.Print(item.Entity)
			}
			pp := printers.PrettyPrint{ShowID: ido.ShowID}
			pp.Tasks([]taskItem{item}, nil)
			return nil
		},
	}
	options.AddShowIDArgs(cmd, ido)
	options.AddOutputArg(cmd, oo)
	return cmd
}

func addTaskDone(parent *cobra.Command) {
	var undo bool
	cmd := taskEdit("done <task>", "Complete a task", cobra.ExactArgs(1),
		func(cmd *cobra.Command, ws *app.Workspace, t entity.Task, _ []string) error {
			completed := !undo
			_, err := ws.UpdateTask(cmd.Context(), t.ID, entity.TaskPatch{Completed: &completed})
			return err
		})
	cmd.Flags().BoolVar(&undo, "undo", false, "Mark the task open again.")
	parent.AddCommand(cmd)
}

func addTaskStar(parent *cobra.Command) {
	parent.AddCommand(taskEdit("star <task>", "Toggle whether a task is important", cobra.ExactArgs(1),
		func(_ *cobra.Command, ws *app.Workspace, t entity.Task, _ []string) error {
			_, err := ws.ToggleImportant(t.ID)
			return err
		}))
}

func addTaskRemove(parent *cobra.Command) {
	var yes bool
	inter := &options.InteractiveOptions{}

	cmd := &cobra.Command{
		Use:     "rm <task>",
		Aliases: []string{"delete"},
		Short:   "Delete a task",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			ctx := cmd.Context()
			ws, done, err := openWorkspace(ctx)
			if err != nil {
				return oo.HandleError(err)
			}
			defer done()

			t, err := findTask(ws, args[0])
			if err != nil {
				return oo.HandleError(err)
			}
			if !yes && inter.Prompt() && !confirm(cmd, fmt.Sprintf("Delete %q", t.Title)) {
				return nil
			}
			if err := ws.DeleteTask(t.ID); err != nil {
				return oo.HandleError(err)
			}
			if err := ws.Flush(ctx); err != nil {
				return oo.HandleError(err)
			}
			item, ok := ws.Task(t.ID)
			if err := syncErr(item, ok); err != nil {
				return oo.HandleError(err)
			}
			if oo.Structured() {
				return oo.Print(map[string]string{"deleted": t.ID})
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", t.Title)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation.")
	options.InteractiveArgs(cmd, inter)
	options.AddOutputArg(cmd, oo)
	parent.AddCommand(cmd)
}

func addTaskReport(parent *cobra.Command) {
	var last string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Display recently completed tasks grouped by list",
		Long: `Report lists completed tasks grouped by list within the specified time window.

Examples:
  taskpad task report
  taskpad task report --last 3d
  taskpad task report --last 1w2d`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			window, err := timeutil.Last(last, time.Now())
			if err != nil {
				return oo.HandleError(err)
			}
			ws, done, err := openWorkspace(cmd.Context())
			if err != nil {
				return oo.HandleError(err)
			}
			defer done()

			result := ws.Report(window.Since, window.Until)
			if oo.Structured() {
				return oo.Print(result)
			}
			pp := printers.PrettyPrint{ShowID: ido.ShowID}
			pp.Report(result, window.Label)
			return nil
		},
	}

	cmd.Flags().StringVar(&last, "last", timeutil.DefaultWindow, "time window to include (for example 3d, 1w)")
	options.AddOutputArg(cmd, oo)
	parent.AddCommand(cmd)
}
