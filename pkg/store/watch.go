package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"tableflip.dev/taskpad/pkg/entity"
)

// EventType describes the nature of a mirror change notification.
type EventType int

const (
	// EventMirrorChanged indicates the blob for Owner and Kind was rewritten.
	EventMirrorChanged EventType = iota

	// EventMirrorInvalidated signals a change that could not be attributed
	// to a single blob; callers should reload everything.
	EventMirrorInvalidated
)

// Event is emitted by Mirror.Watch when another writer touches the mirror.
type Event struct {
	Type  EventType
	Owner string
	Kind  entity.Kind
}

// Watch streams change events until ctx is cancelled. Callers should drain the
// returned channel; events are dropped rather than blocking the watcher. The
// channel is closed once ctx is done or the watcher fails.
func (m *Mirror) Watch(ctx context.Context) (<-chan Event, error) {
	if m.basePath == "" {
		return nil, errors.New("store: mirror base path unknown")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("store: create watcher: %w", err)
	}
	var closeOnce sync.Once
	closeWatcher := func() {
		closeOnce.Do(func() {
			if err := watcher.Close(); err != nil {
				slog.Warn("store: watcher close", "error", err)
			}
		})
	}

	dirs, err := collectDirs(m.basePath)
	if err != nil {
		closeWatcher()
		return nil, fmt.Errorf("store: enumerate directories: %w", err)
	}
	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			closeWatcher()
			return nil, fmt.Errorf("store: watch %s: %w", dir, err)
		}
	}

	events := make(chan Event, 64)

	go func() {
		defer close(events)
		defer closeWatcher()

		watched := make(map[string]struct{}, len(dirs))
		for _, dir := range dirs {
			watched[dir] = struct{}{}
		}

		send := func(ev Event) {
			select {
			case events <- ev:
			default:
			}
		}

		throttle := newEventThrottle(100 * time.Millisecond)
		defer throttle.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Debug("store: watcher error", "error", err)
				throttle.Enqueue(Event{Type: EventMirrorInvalidated}, send)
			case evt, ok := <-watcher.Events:
				if !ok {
					return
				}
				if evt.Op&fsnotify.Create == fsnotify.Create {
					// A new owner directory: watch it so its blobs report.
					if info, err := os.Stat(evt.Name); err == nil && info.IsDir() {
						dir := filepath.Clean(evt.Name)
						if _, found := watched[dir]; !found {
							if err := watcher.Add(dir); err != nil {
								slog.Warn("store: watch directory", "dir", dir, "error", err)
							} else {
								watched[dir] = struct{}{}
							}
						}
						continue
					}
				}
				owner, kind := m.blobForPath(evt.Name)
				if owner == "" {
					throttle.Enqueue(Event{Type: EventMirrorInvalidated}, send)
					continue
				}
				throttle.Enqueue(Event{Type: EventMirrorChanged, Owner: owner, Kind: kind}, send)
			}
		}
	}()

	return events, nil
}

// collectDirs returns base and its immediate owner directories.
func collectDirs(base string) ([]string, error) {
	dirs := []string{base}
	entries, err := os.ReadDir(base)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return dirs, nil
		}
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(base, e.Name()))
		}
	}
	return dirs, nil
}

// blobForPath derives the owner and kind from a diskv path.
func (m *Mirror) blobForPath(path string) (string, entity.Kind) {
	rel, err := filepath.Rel(m.basePath, path)
	if err != nil || rel == "." {
		return "", ""
	}
	parts := strings.Split(rel, string(os.PathSeparator))
	if len(parts) != 2 {
		return "", ""
	}
	owner := fromOwner(parts[0])
	if owner == "" {
		return "", ""
	}
	return owner, entity.Kind(parts[1])
}

// eventThrottle coalesces bursts of filesystem activity into one event per
// blob.
type eventThrottle struct {
	mu      sync.Mutex
	timer   *time.Timer
	pending map[Event]struct{}
	delay   time.Duration
}

func newEventThrottle(delay time.Duration) *eventThrottle {
	return &eventThrottle{
		delay:   delay,
		pending: make(map[Event]struct{}),
	}
}

func (t *eventThrottle) Enqueue(ev Event, send func(Event)) {
	t.mu.Lock()
	t.pending[ev] = struct{}{}
	if t.timer == nil {
		t.timer = time.AfterFunc(t.delay, func() {
			t.flush(send)
		})
	}
	t.mu.Unlock()
}

func (t *eventThrottle) flush(send func(Event)) {
	t.mu.Lock()
	pending := t.pending
	t.pending = make(map[Event]struct{})
	t.timer = nil
	t.mu.Unlock()

	if _, ok := pending[Event{Type: EventMirrorInvalidated}]; ok {
		send(Event{Type: EventMirrorInvalidated})
		return
	}
	for ev := range pending {
		send(ev)
	}
}

func (t *eventThrottle) Stop() {
	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.mu.Unlock()
}
