package mcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"tableflip.dev/taskpad/pkg/app"
)

// Transport selects the mechanism used to expose the MCP server.
type Transport string

const (
	// TransportHTTP serves MCP via the streamable HTTP transport.
	TransportHTTP Transport = "http"
	// TransportStdio serves MCP over stdio.
	TransportStdio Transport = "stdio"
)

// Runner coordinates MCP server startup. The workspace must already be
// started; the runner does not close it.
type Runner struct {
	Workspace *app.Workspace
	Name      string
	Version   string

	Transport        Transport
	HTTPListenAddr   string
	HTTPEndpointPath string
	OnHTTPListening  func(net.Addr)
	HTTPServerCert   string
	HTTPServerKey    string
}

// NewServer builds the MCP server with every tool and resource registered.
func (r Runner) NewServer() *server.MCPServer {
	name := r.Name
	if name == "" {
		name = "taskpad"
	}
	version := r.Version
	if version == "" {
		version = "dev"
	}

	srv := server.NewMCPServer(
		fmt.Sprintf("%s MCP", name),
		version,
		server.WithResourceCapabilities(false, false),
		server.WithToolCapabilities(false),
		server.WithInstructions("Manage taskpad tasks, lists and notes. Writes are confirmed by the remote store before a tool returns."),
		server.WithResourceRecovery(),
		server.WithRecovery(),
	)

	svc := NewService(r.Workspace)
	registerResources(srv, svc)
	registerTools(srv, svc)
	return srv
}

// Do executes the runner until ctx is done or the transport fails.
func (r Runner) Do(ctx context.Context) error {
	if r.Workspace == nil {
		return errors.New("mcp runner requires a workspace")
	}
	srv := r.NewServer()

	switch t := r.Transport; t {
	case "", TransportHTTP:
		return r.serveHTTP(ctx, srv)
	case TransportStdio:
		return server.ServeStdio(srv)
	default:
		return fmt.Errorf("unknown MCP transport %q", t)
	}
}

func (r Runner) serveHTTP(ctx context.Context, srv *server.MCPServer) error {
	if (r.HTTPServerCert == "") != (r.HTTPServerKey == "") {
		return errors.New("both http tls cert and key must be provided")
	}

	path := r.HTTPEndpointPath
	if path == "" {
		path = "/mcp"
	}
	addr := r.HTTPListenAddr
	if addr == "" {
		addr = "127.0.0.1:8080"
	}

	mux := http.NewServeMux()
	mux.Handle(path, server.NewStreamableHTTPServer(srv))
	httpSrv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	if r.OnHTTPListening != nil {
		r.OnHTTPListening(ln.Addr())
	}

	errCh := make(chan error, 1)
	go func() {
		if r.HTTPServerCert != "" {
			errCh <- httpSrv.ServeTLS(ln, r.HTTPServerCert, r.HTTPServerKey)
		} else {
			errCh <- httpSrv.Serve(ln)
		}
	}()

	select {
	case err = <-errCh:
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
		err = <-errCh
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
