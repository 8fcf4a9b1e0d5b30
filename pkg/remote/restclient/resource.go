package restclient

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tableflip.dev/taskpad/pkg/entity"
	"tableflip.dev/taskpad/pkg/remote"
)

// Resource is the Store for one collection route such as api/tasks.
type Resource[E any, P any] struct {
	c    *Client
	kind entity.Kind
	path string
}

func (r *Resource[E, P]) List(ctx context.Context, owner string) ([]E, error) {
	var out []E
	if err := r.c.do(ctx, http.MethodGet, r.path, owner, nil, &out, r.kind, ""); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Resource[E, P]) Get(ctx context.Context, id, owner string) (E, error) {
	var out E
	err := r.c.do(ctx, http.MethodGet, r.item(id), owner, nil, &out, r.kind, id)
	return out, err
}

func (r *Resource[E, P]) Create(ctx context.Context, draft E, owner string) (E, error) {
	var out E
	err := r.c.do(ctx, http.MethodPost, r.path, owner, draft, &out, r.kind, "")
	return out, err
}

func (r *Resource[E, P]) Update(ctx context.Context, id string, patch P, owner string) (E, error) {
	var out E
	err := r.c.do(ctx, http.MethodPatch, r.item(id), owner, patch, &out, r.kind, id)
	return out, err
}

func (r *Resource[E, P]) Delete(ctx context.Context, id, owner string) error {
	return r.c.do(ctx, http.MethodDelete, r.item(id), owner, nil, nil, r.kind, id)
}

func (r *Resource[E, P]) item(id string) string {
	return r.path + "/" + url.PathEscape(id)
}

// notice mirrors the server's change feed frames.
type notice struct {
	Kind entity.Kind `json:"kind"`
}

// Subscribe lists the owner's entities, then lists again whenever the
// change feed reports the kind changed. A dropped feed is redialed and
// followed by a fresh list so nothing missed in between is lost.
func (r *Resource[E, P]) Subscribe(ctx context.Context, owner string, onChange func([]E)) (func(), error) {
	conn, err := r.dial(ctx, owner)
	if err != nil {
		return nil, err
	}
	items, err := r.List(ctx, owner)
	if err != nil {
		conn.Close()
		return nil, err
	}
	onChange(items)

	ctx, cancel := context.WithCancel(context.Background())
	var mu sync.Mutex
	current := conn
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			r.follow(ctx, current, owner, onChange)
			if ctx.Err() != nil {
				return
			}
			next, err := r.redial(ctx, owner)
			if err != nil {
				return
			}
			mu.Lock()
			current = next
			mu.Unlock()
			if items, err := r.List(ctx, owner); err == nil {
				onChange(items)
			}
		}
	}()
	return func() {
		cancel()
		mu.Lock()
		current.Close()
		mu.Unlock()
		<-done
	}, nil
}

func (r *Resource[E, P]) follow(ctx context.Context, conn *websocket.Conn, owner string, onChange func([]E)) {
	defer conn.Close()
	for {
		var n notice
		if err := conn.ReadJSON(&n); err != nil {
			if ctx.Err() == nil {
				r.c.log.Debug("change feed dropped", "kind", r.kind, "err", err)
			}
			return
		}
		if n.Kind != r.kind {
			continue
		}
		items, err := r.List(ctx, owner)
		if err != nil {
			r.c.log.Warn("refresh after change failed", "kind", r.kind, "err", err)
			continue
		}
		onChange(items)
	}
}

func (r *Resource[E, P]) redial(ctx context.Context, owner string) (*websocket.Conn, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.c.Reconnect):
		}
		conn, err := r.dial(ctx, owner)
		if err == nil {
			return conn, nil
		}
		r.c.log.Debug("change feed redial failed", "kind", r.kind, "err", err)
	}
}

func (r *Resource[E, P]) dial(ctx context.Context, owner string) (*websocket.Conn, error) {
	u := *r.c.base.JoinPath("api/changes")
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	header := http.Header{}
	header.Set(ownerHeader, owner)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, remote.Transient(err)
	}
	return conn, nil
}
