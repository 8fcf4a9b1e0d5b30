package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"tableflip.dev/taskpad/pkg/app"
	"tableflip.dev/taskpad/pkg/cache"
	"tableflip.dev/taskpad/pkg/commands/options"
	"tableflip.dev/taskpad/pkg/entity"
	"tableflip.dev/taskpad/pkg/markdown"
	"tableflip.dev/taskpad/pkg/printers"
)

func addNote(topLevel *cobra.Command) {
	cmd := &cobra.Command{
		Use:     "note",
		Aliases: []string{"notes", "n"},
		Short:   "Work with Markdown notes",
	}

	addNoteAdd(cmd)
	addNoteLs(cmd)
	addNoteShow(cmd)
	addNoteEdit(cmd)
	addNoteRemove(cmd)

	topLevel.AddCommand(cmd)
}

// readContent returns the --content value, or the contents of --file where
// "-" means stdin.
func readContent(cmd *cobra.Command, content, file string) (string, bool, error) {
	switch {
	case content != "" && file != "":
		return "", false, errors.New("--content and --file cannot be combined")
	case file == "-":
		b, err := io.ReadAll(cmd.InOrStdin())
		return string(b), true, err
	case file != "":
		b, err := os.ReadFile(file)
		return string(b), true, err
	}
	return content, content != "", nil
}

type noteView struct {
	entity.Note
	HTML string `json:"html,omitempty"`
}

func printNote(ws *app.Workspace, id string, html bool) error {
	item, ok := ws.Note(id)
	if err := syncErr(item, ok); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no note %s", id)
	}
	if oo.Structured() {
		view := noteView{Note: item.Entity}
		if html {
			rendered, err := markdown.HTML(item.Entity.Content)
			if err != nil {
				return err
			}
			view.HTML = rendered
		}
		return oo.Print(view)
	}
	pp := printers.PrettyPrint{ShowID: ido.ShowID}
	return pp.Note(item, html)
}

func addNoteAdd(parent *cobra.Command) {
	var content, file string

	cmd := &cobra.Command{
		Use:   "add [title]",
		Short: "Create a note",
		Example: `
taskpad note add standup --content "**Blocked** on review #work"
taskpad note add retro --file retro.md
echo "# scratch" | taskpad note add --file -
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			body, _, err := readContent(cmd, content, file)
			if err != nil {
				return oo.HandleError(err)
			}
			ctx := cmd.Context()
			ws, done, err := openWorkspace(ctx)
			if err != nil {
				return oo.HandleError(err)
			}
			defer done()

			n, err := ws.CreateNote(strings.Join(args, " "), body)
			if err != nil {
				return oo.HandleError(err)
			}
			if err := ws.Flush(ctx); err != nil {
				return oo.HandleError(err)
			}
			return oo.HandleError(printNote(ws, n.ID, false))
		},
	}
	cmd.Flags().StringVar(&content, "content", "", "Markdown content.")
	cmd.Flags().StringVarP(&file, "file", "f", "", `Read the content from a file, "-" for stdin.`)
	options.AddShowIDArgs(cmd, ido)
	options.AddOutputArg(cmd, oo)
	parent.AddCommand(cmd)
}

func addNoteLs(parent *cobra.Command) {
	var tag string

	cmd := &cobra.Command{
		Use:     "ls [query]",
		Aliases: []string{"list"},
		Short:   "List notes, newest first",
		Example: `
taskpad note ls
taskpad note ls --tag work
taskpad note ls standup
`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			ws, done, err := openWorkspace(cmd.Context())
			if err != nil {
				return oo.HandleError(err)
			}
			defer done()

			var items []cache.Item[entity.Note]
			if len(args) == 1 {
				for _, item := range ws.SearchNotes(args[0]) {
					if tag == "" || item.Entity.HasTag(strings.TrimPrefix(tag, "#")) {
						items = append(items, item)
					}
				}
			} else {
				items = ws.Notes(tag)
			}

			if oo.Structured() {
				notes := make([]entity.Note, len(items))
				for i, item := range items {
					notes[i] = item.Entity
				}
				return oo.Print(notes)
			}
			pp := printers.PrettyPrint{ShowID: ido.ShowID}
			pp.TitleWithCount("Notes", len(items), "note")
			pp.Notes(items)
			return nil
		},
	}
	cmd.Flags().StringVarP(&tag, "tag", "t", "", "Only notes carrying this #tag.")
	options.AddShowIDArgs(cmd, ido)
	options.AddOutputArg(cmd, oo)
	parent.AddCommand(cmd)
}

func addNoteShow(parent *cobra.Command) {
	var html bool

	cmd := &cobra.Command{
		Use:   "show <note>",
		Short: "Print a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			ws, done, err := openWorkspace(cmd.Context())
			if err != nil {
				return oo.HandleError(err)
			}
			defer done()

			n, err := findNote(ws, args[0])
			if err != nil {
				return oo.HandleError(err)
			}
			return oo.HandleError(printNote(ws, n.ID, html))
		},
	}
	cmd.Flags().BoolVar(&html, "html", false, "Render the Markdown to HTML.")
	options.AddShowIDArgs(cmd, ido)
	options.AddOutputArg(cmd, oo)
	parent.AddCommand(cmd)
}

func addNoteEdit(parent *cobra.Command) {
	var title, content, file string

	cmd := &cobra.Command{
		Use:   "edit <note>",
		Short: "Change the title or content of a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			body, hasBody, err := readContent(cmd, content, file)
			if err != nil {
				return oo.HandleError(err)
			}
			var patch entity.NotePatch
			if cmd.Flags().Changed("title") {
				patch.Title = &title
			}
			if hasBody {
				patch.Content = &body
			}
			if patch.Title == nil && patch.Content == nil {
				return errors.New("nothing to change, give --title, --content or --file")
			}

			ctx := cmd.Context()
			ws, done, err := openWorkspace(ctx)
			if err != nil {
				return oo.HandleError(err)
			}
			defer done()

			n, err := findNote(ws, args[0])
			if err != nil {
				return oo.HandleError(err)
			}
			if _, err := ws.UpdateNote(n.ID, patch); err != nil {
				return oo.HandleError(err)
			}
			if err := ws.Flush(ctx); err != nil {
				return oo.HandleError(err)
			}
			return oo.HandleError(printNote(ws, n.ID, false))
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "New title.")
	cmd.Flags().StringVar(&content, "content", "", "New Markdown content.")
	cmd.Flags().StringVarP(&file, "file", "f", "", `Read the new content from a file, "-" for stdin.`)
	options.AddShowIDArgs(cmd, ido)
	options.AddOutputArg(cmd, oo)
	parent.AddCommand(cmd)
}

func addNoteRemove(parent *cobra.Command) {
	var yes bool
	inter := &options.InteractiveOptions{}

	cmd := &cobra.Command{
		Use:     "rm <note>",
		Aliases: []string{"delete"},
		Short:   "Delete a note",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			ctx := cmd.Context()
			ws, done, err := openWorkspace(ctx)
			if err != nil {
				return oo.HandleError(err)
			}
			defer done()

			n, err := findNote(ws, args[0])
			if err != nil {
				return oo.HandleError(err)
			}
			if !yes && inter.Prompt() && !confirm(cmd, fmt.Sprintf("Delete note %q", n.Title)) {
				return nil
			}
			if err := ws.DeleteNote(n.ID); err != nil {
				return oo.HandleError(err)
			}
			if err := ws.Flush(ctx); err != nil {
				return oo.HandleError(err)
			}
			item, ok := ws.Note(n.ID)
			if err := syncErr(item, ok); err != nil {
				return oo.HandleError(err)
			}
			if oo.Structured() {
				return oo.Print(map[string]string{"deleted": n.ID})
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "deleted note %s\n", n.Title)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation.")
	options.InteractiveArgs(cmd, inter)
	options.AddOutputArg(cmd, oo)
	parent.AddCommand(cmd)
}
