package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"tableflip.dev/taskpad/pkg/app"
	"tableflip.dev/taskpad/pkg/cache"
	"tableflip.dev/taskpad/pkg/entity"
	"tableflip.dev/taskpad/pkg/remote"
	"tableflip.dev/taskpad/pkg/remote/docstore"
	"tableflip.dev/taskpad/pkg/remote/googletasks"
	"tableflip.dev/taskpad/pkg/remote/memory"
	"tableflip.dev/taskpad/pkg/remote/restclient"
	"tableflip.dev/taskpad/pkg/server"
	"tableflip.dev/taskpad/pkg/store"
)

var backends = []string{
	store.BackendLocal,
	store.BackendMemory,
	store.BackendDocstore,
	store.BackendREST,
	store.BackendGoogleTasks,
}

// settings loads the configuration and applies the root flag overrides.
func settings() (*store.Settings, error) {
	s, err := store.LoadConfig()
	if err != nil {
		return nil, err
	}
	if ro.Owner != "" {
		s.Owner = ro.Owner
	}
	if ro.Backend != "" {
		s.Backend = ro.Backend
	}
	return s, nil
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

// openBackend connects the configured remote store. The returned func
// releases it.
func openBackend(ctx context.Context, s *store.Settings, log *slog.Logger) (*remote.Backend, func(), error) {
	switch s.Backend {
	case store.BackendLocal:
		db, err := server.Open(ctx, s.Database, log)
		if err != nil {
			return nil, nil, err
		}
		return db.Backend(), func() { _ = db.Close() }, nil

	case store.BackendMemory:
		return memory.NewBackend(), func() {}, nil

	case store.BackendDocstore:
		if s.PostgresDSN == "" {
			return nil, nil, errors.New("docstore backend needs postgres.dsn")
		}
		db, err := docstore.Open(ctx, s.PostgresDSN, log)
		if err != nil {
			return nil, nil, err
		}
		if err := db.EnsureTable(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return db.Backend(), db.Close, nil

	case store.BackendREST:
		c, err := restclient.New(s.RESTURL, nil, log)
		if err != nil {
			return nil, nil, err
		}
		return c.Backend(), func() {}, nil

	case store.BackendGoogleTasks:
		c, err := googletasks.New(ctx, s.GoogleConfigDir, log)
		if err != nil {
			return nil, nil, err
		}
		return c.Backend(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown backend %q, expected one of %s", s.Backend, strings.Join(backends, ", "))
}

// openWorkspace builds and starts a workspace for the configured owner. The
// returned func flushes pending writes and releases everything.
func openWorkspace(ctx context.Context) (*app.Workspace, func(), error) {
	s, err := settings()
	if err != nil {
		return nil, nil, err
	}
	log := newLogger(s.LogLevel)

	backend, release, err := openBackend(ctx, s, log)
	if err != nil {
		return nil, nil, err
	}
	mirror, err := store.OpenMirror(s)
	if err != nil {
		release()
		return nil, nil, err
	}
	ws, err := app.New(backend, app.Options{
		Owner:  s.Owner,
		Mirror: mirror,
		Sync:   s.Sync,
		Logger: log,
	})
	if err != nil {
		release()
		return nil, nil, err
	}
	if err := ws.Start(ctx); err != nil {
		ws.Close()
		release()
		return nil, nil, err
	}
	return ws, func() {
		if err := ws.Flush(context.Background()); err != nil {
			log.Warn("flush on exit", "error", err)
		}
		ws.Close()
		release()
	}, nil
}

// syncErr reports the sync failure of an entity after a flush.
func syncErr[E any](item cache.Item[E], ok bool) error {
	if ok && item.Status == entity.StatusError {
		return fmt.Errorf("not synced: %s", item.Error)
	}
	return nil
}
