// Package googletasks is a remote backed by the Google Tasks API. It covers
// tasks and lists only. Google has no notion of importance or steps, so
// those fields live in a process-local overlay and are lost on restart.
package googletasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	tasks "google.golang.org/api/tasks/v1"

	"tableflip.dev/taskpad/pkg/entity"
	"tableflip.dev/taskpad/pkg/remote"
)

const (
	// apiDefaultList is Google's alias for the account's default list.
	apiDefaultList = "@default"

	pageSize = 100

	// APITimeout bounds every API call.
	APITimeout = 10 * time.Second

	tasksScope = "https://www.googleapis.com/auth/tasks"
)

// Client talks to the Google Tasks API on behalf of one Google account.
// The owner passed to the stores is stamped on results but the account
// decides what is visible.
type Client struct {
	svc *tasks.Service
	log *slog.Logger

	mu        sync.Mutex
	defaultID string
	listOf    map[string]string
	extras    map[string]extra
}

// extra holds the task fields Google cannot store.
type extra struct {
	important bool
	steps     []entity.Step
}

// New builds a client from oauth_client.json and token.json in dir.
func New(ctx context.Context, dir string, log *slog.Logger) (*Client, error) {
	clientJSON, err := os.ReadFile(filepath.Join(dir, "oauth_client.json"))
	if err != nil {
		return nil, fmt.Errorf("googletasks: read oauth_client.json: %w", err)
	}
	conf, err := google.ConfigFromJSON(clientJSON, tasksScope)
	if err != nil {
		return nil, fmt.Errorf("googletasks: invalid oauth_client.json: %w", err)
	}
	tokenData, err := os.ReadFile(filepath.Join(dir, "token.json"))
	if err != nil {
		return nil, fmt.Errorf("googletasks: read token.json: %w", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(tokenData, &token); err != nil {
		return nil, fmt.Errorf("googletasks: invalid token.json: %w", err)
	}
	httpClient := oauth2.NewClient(ctx, conf.TokenSource(ctx, &token))
	return NewWithHTTPClient(ctx, httpClient, log)
}

// NewWithHTTPClient builds a client on an already authorized HTTP client.
// Extra options such as option.WithEndpoint are passed to the service.
func NewWithHTTPClient(ctx context.Context, httpClient *http.Client, log *slog.Logger, opts ...option.ClientOption) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	svc, err := tasks.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("googletasks: create service: %w", err)
	}
	return &Client{
		svc:    svc,
		log:    log,
		listOf: map[string]string{},
		extras: map[string]extra{},
	}, nil
}

// Backend returns the task and list stores. Notes are unsupported.
func (c *Client) Backend() *remote.Backend {
	return &remote.Backend{
		Tasks: &TaskStore{c: c},
		Lists: &ListStore{c: c},
		Notes: remote.Unsupported[entity.Note, entity.NotePatch]{Kind: entity.KindNotes},
	}
}

// defaultListID returns Google's real id for the default list.
func (c *Client) defaultListID(ctx context.Context) (string, error) {
	c.mu.Lock()
	id := c.defaultID
	c.mu.Unlock()
	if id != "" {
		return id, nil
	}
	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()
	list, err := c.svc.Tasklists.Get(apiDefaultList).Context(ctx).Do()
	if err != nil {
		return "", wrapError(err, entity.KindLists, entity.DefaultListID)
	}
	c.mu.Lock()
	c.defaultID = list.Id
	c.mu.Unlock()
	return list.Id, nil
}

// apiList maps an entity list id onto the id Google expects.
func apiList(id string) string {
	if id == entity.DefaultListID || id == "" {
		return apiDefaultList
	}
	return id
}

// entityList maps a Google list id onto the entity list id.
func (c *Client) entityList(ctx context.Context, id string) (string, error) {
	def, err := c.defaultListID(ctx)
	if err != nil {
		return "", err
	}
	if id == def {
		return entity.DefaultListID, nil
	}
	return id, nil
}

func (c *Client) remember(taskID, listID string) {
	c.mu.Lock()
	c.listOf[taskID] = listID
	c.mu.Unlock()
}

func (c *Client) forget(taskID string) {
	c.mu.Lock()
	delete(c.listOf, taskID)
	delete(c.extras, taskID)
	c.mu.Unlock()
}

func (c *Client) knownList(taskID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.listOf[taskID]
	return id, ok
}

func (c *Client) setExtra(taskID string, t entity.Task) {
	c.mu.Lock()
	c.extras[taskID] = extra{important: t.Important, steps: t.Clone().Steps}
	c.mu.Unlock()
}

func (c *Client) overlay(t entity.Task) entity.Task {
	c.mu.Lock()
	e, ok := c.extras[t.ID]
	c.mu.Unlock()
	if ok {
		t.Important = e.important
		t.Steps = entity.Task{Steps: e.steps}.Clone().Steps
	}
	return t
}

// wrapError maps API failures onto the remote error taxonomy.
func wrapError(err error, kind entity.Kind, id string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return remote.Transient(fmt.Errorf("googletasks: request timed out: %w", err))
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusNotFound:
			return remote.NotFound(kind, id)
		case gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden:
			return fmt.Errorf("googletasks: token expired or revoked: %w", remote.Denied(kind, id))
		case gerr.Code == http.StatusBadRequest:
			return &entity.ValidationError{Kind: kind, Field: "request", Message: gerr.Message}
		case gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500:
			return remote.Transient(err)
		}
	}
	return fmt.Errorf("googletasks: %w", err)
}

func parseTime(v string) time.Time {
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseOptional(v string) *time.Time {
	if v == "" {
		return nil
	}
	t := parseTime(v)
	if t.IsZero() {
		return nil
	}
	return &t
}
