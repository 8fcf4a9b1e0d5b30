package commands

import (
	"github.com/spf13/cobra"

	"tableflip.dev/taskpad/pkg/server"
)

func addServe(topLevel *cobra.Command) {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the REST and change feed server backed by sqlite",
		Long: `Serve exposes the sqlite database named by the database setting over HTTP.
Other taskpad processes reach it with backend rest, and receive pushed changes
over the /api/changes websocket.`,
		Example: `
taskpad serve --addr 127.0.0.1:8080
TASKPAD_BACKEND=rest taskpad task ls
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			s, err := settings()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = s.ServerAddr
			}
			ctx := cmd.Context()
			db, err := server.Open(ctx, s.Database, newLogger(s.LogLevel))
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()
			return server.Serve(ctx, addr, db)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address, defaults to the server.addr setting.")
	topLevel.AddCommand(cmd)
}
