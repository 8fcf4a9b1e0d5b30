package commands

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"tableflip.dev/taskpad/pkg/app"
	"tableflip.dev/taskpad/pkg/cache"
	"tableflip.dev/taskpad/pkg/entity"
	"tableflip.dev/taskpad/pkg/glyph"
	"tableflip.dev/taskpad/pkg/store"
)

func addWatch(topLevel *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow changes as they arrive",
		Long: `Watch keeps a workspace open and prints every change to tasks, lists and
notes as the remote store reports it, along with rewrites of the local mirror
made by other taskpad processes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			ctx := cmd.Context()
			ws, done, err := openWorkspace(ctx)
			if err != nil {
				return err
			}
			defer done()

			s, err := settings()
			if err != nil {
				return err
			}
			mirror, err := store.OpenMirror(s)
			if err != nil {
				return err
			}
			files, err := mirror.Watch(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			faint := color.New(color.Faint)
			_, _ = faint.Fprintf(out, "watching %s as %s\n", mirror.BasePath(), ws.Owner())

			changes := ws.Watch(ctx)
			for {
				select {
				case <-ctx.Done():
					return nil
				case ev := <-changes:
					_, _ = fmt.Fprintln(out, describeChange(ws, ev))
				case ev, ok := <-files:
					if !ok {
						files = nil
						continue
					}
					stamp := faint.Sprint(time.Now().Format("15:04:05"))
					if ev.Type == store.EventMirrorInvalidated {
						_, _ = fmt.Fprintf(out, "%s mirror changed\n", stamp)
						continue
					}
					_, _ = fmt.Fprintf(out, "%s mirror %s rewritten for %s\n", stamp, ev.Kind, ev.Owner)
				}
			}
		},
	}
	topLevel.AddCommand(cmd)
}

func describeChange(ws *app.Workspace, ev app.Event) string {
	stamp := color.New(color.Faint).Sprint(time.Now().Format("15:04:05"))
	line := fmt.Sprintf("%s %s %s %s", stamp, ev.Kind, ev.Action, ev.ID)
	if ev.PreviousID != "" {
		line += " (was " + ev.PreviousID + ")"
	}
	if ev.Action == cache.ChangeDelete {
		return line
	}

	var (
		title  string
		status entity.SyncStatus
		msg    string
	)
	switch ev.Kind {
	case entity.KindTasks:
		if item, ok := ws.Task(ev.ID); ok {
			title, status, msg = item.Entity.Title, item.Status, item.Error
		}
	case entity.KindLists:
		if item, ok := ws.List(ev.ID); ok {
			title, status, msg = item.Entity.Name, item.Status, item.Error
		}
	case entity.KindNotes:
		if item, ok := ws.Note(ev.ID); ok {
			title, status, msg = item.Entity.Title, item.Status, item.Error
		}
	}
	line = fmt.Sprintf("%s %s %q", line, glyph.ForStatus(status), title)
	if msg != "" {
		line += " " + color.New(color.FgRed).Sprint(msg)
	}
	return line
}
