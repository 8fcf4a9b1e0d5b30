package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"tableflip.dev/taskpad/pkg/app"
	"tableflip.dev/taskpad/pkg/entity"
)

func addStep(parent *cobra.Command) {
	cmd := &cobra.Command{
		Use:     "step",
		Aliases: []string{"steps"},
		Short:   "Edit the checklist of a task",
		Long: `Steps are addressed by id, id prefix or their 1-based position in the
checklist as shown by "taskpad task ls".`,
	}

	cmd.AddCommand(
		taskEdit("add <task> <title>", "Append a step to a task", cobra.MinimumNArgs(2),
			func(_ *cobra.Command, ws *app.Workspace, t entity.Task, rest []string) error {
				_, err := ws.AddStep(t.ID, strings.Join(rest, " "))
				return err
			}),
		stepEdit("rm <task> <step>", "Remove a step", 2,
			func(ws *app.Workspace, t entity.Task, s entity.Step, _ []string) error {
				_, err := ws.RemoveStep(t.ID, s.ID)
				return err
			}),
		stepEdit("done <task> <step>", "Toggle whether a step is complete", 2,
			func(ws *app.Workspace, t entity.Task, s entity.Step, _ []string) error {
				_, err := ws.ToggleStep(t.ID, s.ID)
				return err
			}),
		stepEdit("move <task> <step> <position>", "Move a step to a 1-based position", 3,
			func(ws *app.Workspace, t entity.Task, s entity.Step, rest []string) error {
				to, err := strconv.Atoi(rest[0])
				if err != nil || to < 1 {
					return fmt.Errorf("invalid position %q", rest[0])
				}
				_, err = ws.MoveStep(t.ID, s.ID, to-1)
				return err
			}),
	)
	parent.AddCommand(cmd)
}

// stepEdit is a task edit whose second argument names a step.
func stepEdit(use, short string, nargs int, fn func(ws *app.Workspace, t entity.Task, s entity.Step, rest []string) error) *cobra.Command {
	return taskEdit(use, short, cobra.ExactArgs(nargs),
		func(_ *cobra.Command, ws *app.Workspace, t entity.Task, rest []string) error {
			s, err := findStep(t, rest[0])
			if err != nil {
				return err
			}
			return fn(ws, t, s, rest[1:])
		})
}
