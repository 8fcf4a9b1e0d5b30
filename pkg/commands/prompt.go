package commands

import (
	"io"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"tableflip.dev/taskpad/pkg/entity"
)

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// confirm asks a yes/no question. Any answer but yes is a no.
func confirm(cmd *cobra.Command, label string) bool {
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
		Stdin:     io.NopCloser(cmd.InOrStdin()),
		Stdout:    nopCloser{cmd.OutOrStdout()},
	}
	_, err := prompt.Run()
	return err == nil
}

// chooseList asks which list should receive the tasks of a list being
// deleted. An empty result means the default list.
func chooseList(cmd *cobra.Command, lists []entity.TaskList, skip string) (string, error) {
	var choices []entity.TaskList
	for _, l := range lists {
		if l.ID != skip {
			choices = append(choices, l)
		}
	}
	if len(choices) == 0 {
		return "", nil
	}

	templates := &promptui.SelectTemplates{
		Label:    "{{ . }}?",
		Active:   "➜  {{ .Name | bold }} {{ .ID | faint }}",
		Inactive: "   {{ .Name }} {{ .ID | faint }}",
		Selected: "{{ .Name | bold }}",
	}

	searcher := func(input string, index int) bool {
		name := strings.ReplaceAll(strings.ToLower(choices[index].Name), " ", "")
		input = strings.ReplaceAll(strings.ToLower(input), " ", "")
		return strings.Contains(name, input)
	}

	prompt := promptui.Select{
		HideHelp:  true,
		Label:     "Move its tasks to",
		Items:     choices,
		Templates: templates,
		Size:      10,
		Searcher:  searcher,
		Stdin:     io.NopCloser(cmd.InOrStdin()),
		Stdout:    nopCloser{cmd.OutOrStdout()},
	}
	i, _, err := prompt.Run()
	if err != nil {
		return "", err
	}
	return choices[i].ID, nil
}
