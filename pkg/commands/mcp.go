package commands

import (
	"fmt"
	"net"
	"strings"

	"github.com/spf13/cobra"

	"tableflip.dev/taskpad/pkg/runner/mcp"
)

func addMCP(topLevel *cobra.Command) {
	var (
		httpAddr    string
		httpPath    string
		httpTLSCert string
		httpTLSKey  string
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "start the Model Context Protocol server",
		Long: `Launch an MCP server that exposes tasks, lists and notes as tools and
resources. Every write is confirmed by the remote store before a tool returns.

The server speaks stdio unless --http names a listen address.`,
		Example: `
taskpad mcp
taskpad mcp --http 127.0.0.1:8090
taskpad mcp --http :0 --http-path /taskpad
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			ws, done, err := openWorkspace(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			runner := mcp.Runner{
				Workspace: ws,
				Name:      "taskpad",
				Version:   version,
				Transport: mcp.TransportStdio,
			}
			if addr := strings.TrimSpace(httpAddr); addr != "" {
				if _, _, err := net.SplitHostPort(addr); err != nil {
					return fmt.Errorf("invalid --http address %q: %w", addr, err)
				}
				path := "/" + strings.TrimPrefix(strings.TrimSpace(httpPath), "/")
				runner.Transport = mcp.TransportHTTP
				runner.HTTPListenAddr = addr
				runner.HTTPEndpointPath = path
				runner.HTTPServerCert = strings.TrimSpace(httpTLSCert)
				runner.HTTPServerKey = strings.TrimSpace(httpTLSKey)
				runner.OnHTTPListening = func(a net.Addr) {
					scheme := "http"
					if runner.HTTPServerCert != "" {
						scheme = "https"
					}
					_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "MCP HTTP server listening on %s://%s%s\n", scheme, displayAddr(a), path)
				}
			}
			return runner.Do(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http", "", "serve streamable HTTP on this address instead of stdio (use port 0 for random)")
	cmd.Flags().StringVar(&httpPath, "http-path", "/mcp", "HTTP endpoint path")
	cmd.Flags().StringVar(&httpTLSCert, "http-tls-cert", "", "TLS certificate file for HTTPS")
	cmd.Flags().StringVar(&httpTLSKey, "http-tls-key", "", "TLS private key file for HTTPS")

	topLevel.AddCommand(cmd)
}

// displayAddr turns a wildcard listen address into one a client can dial.
func displayAddr(a net.Addr) string {
	tcp, ok := a.(*net.TCPAddr)
	if !ok {
		return a.String()
	}
	host := "127.0.0.1"
	if tcp.IP != nil && !tcp.IP.IsUnspecified() {
		host = tcp.IP.String()
	}
	return net.JoinHostPort(host, fmt.Sprint(tcp.Port))
}
