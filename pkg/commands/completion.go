package commands

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func addCompletions(topLevel *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "completion",
		Short: "Generates bash completion scripts",
		Long: `To load completion run

. <(taskpad completion)

To configure your bash shell to load completions for each session add to your bashrc

# ~/.bashrc or ~/.profile
. <(taskpad completion)
`,
		Run: func(cmd *cobra.Command, args []string) {
			_ = topLevel.GenBashCompletion(os.Stdout)
		},
	}

	topLevel.AddCommand(cmd)
}

// listCompletions offers list names from the local mirror. It never waits on
// the network for more than a moment.
func listCompletions(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ws, done, err := openWorkspace(ctx)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	defer done()

	var names []string
	for _, item := range ws.Lists() {
		if strings.HasPrefix(strings.ToLower(item.Entity.Name), strings.ToLower(toComplete)) {
			names = append(names, item.Entity.Name)
		}
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}
