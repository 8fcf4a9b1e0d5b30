// Package restclient is a remote backend that talks to the REST fallback
// server. Subscriptions follow the server's websocket change feed.
package restclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tableflip.dev/taskpad/pkg/entity"
	"tableflip.dev/taskpad/pkg/remote"
)

const ownerHeader = "X-Owner-ID"

// Client issues requests against one server.
type Client struct {
	base *url.URL
	http *http.Client
	log  *slog.Logger
	// Reconnect is the delay between change feed reconnects.
	Reconnect time.Duration
}

// New returns a client for the server at baseURL.
func New(baseURL string, httpClient *http.Client, log *slog.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("restclient: parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("restclient: unsupported scheme %q", u.Scheme)
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{base: u, http: httpClient, log: log, Reconnect: time.Second}, nil
}

// Backend returns stores for every kind.
func (c *Client) Backend() *remote.Backend {
	return &remote.Backend{
		Tasks: &Resource[entity.Task, entity.TaskPatch]{c: c, kind: entity.KindTasks, path: "api/tasks"},
		Lists: &Resource[entity.TaskList, entity.TaskListPatch]{c: c, kind: entity.KindLists, path: "api/lists"},
		Notes: &Resource[entity.Note, entity.NotePatch]{c: c, kind: entity.KindNotes, path: "api/notes"},
	}
}

// Health checks the server is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "health", "", nil, nil, "health", "")
}

// errorBody is the server's error payload.
type errorBody struct {
	Error string `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path, owner string, body, out any, kind entity.Kind, id string) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("restclient: encode: %w", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.JoinPath(path).String(), r)
	if err != nil {
		return fmt.Errorf("restclient: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if owner != "" {
		req.Header.Set(ownerHeader, owner)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return remote.Transient(fmt.Errorf("restclient: %s %s: %w", method, path, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var eb errorBody
		_ = json.NewDecoder(resp.Body).Decode(&eb)
		return statusError(resp.StatusCode, eb.Error, kind, id)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return remote.Transient(fmt.Errorf("restclient: decode %s %s: %w", method, path, err))
	}
	return nil
}

// statusError maps HTTP failures onto the remote error taxonomy.
func statusError(code int, msg string, kind entity.Kind, id string) error {
	switch {
	case code == http.StatusNotFound:
		return remote.NotFound(kind, id)
	case code == http.StatusForbidden || code == http.StatusUnauthorized:
		return remote.Denied(kind, id)
	case code == http.StatusBadRequest:
		return &entity.ValidationError{Kind: kind, Field: "request", Message: msg}
	case code == http.StatusTooManyRequests || code >= 500:
		return remote.Transient(fmt.Errorf("restclient: server returned %d: %s", code, msg))
	}
	return errors.New("restclient: unexpected status " + http.StatusText(code) + ": " + msg)
}
