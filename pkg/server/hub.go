package server

import (
	"context"
	"sync"

	"tableflip.dev/taskpad/pkg/entity"
)

// Notice tells subscribers that an owner's entities of one kind changed.
type Notice struct {
	Kind  entity.Kind `json:"kind"`
	Owner string      `json:"-"`
}

type hubSub struct {
	owner string
	ch    chan Notice
}

// Hub fans change notices out to subscribers of one owner. A slow
// subscriber misses notices rather than blocking writers.
type Hub struct {
	mu   sync.Mutex
	subs map[int]hubSub
	next int
}

func NewHub() *Hub {
	return &Hub{subs: map[int]hubSub{}}
}

// Subscribe returns a channel of notices for owner and a func that ends the
// subscription.
func (h *Hub) Subscribe(owner string) (<-chan Notice, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.next
	h.next++
	ch := make(chan Notice, 16)
	h.subs[id] = hubSub{owner: owner, ch: ch}
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

// Publish delivers n to the owner's subscribers.
func (h *Hub) Publish(n Notice) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		if sub.owner != n.Owner {
			continue
		}
		select {
		case sub.ch <- n:
		default:
		}
	}
}

// follow lists the owner's entities once and again after each notice for
// kind, handing every snapshot to fn until the returned func is called.
func follow[E any](ctx context.Context, hub *Hub, kind entity.Kind, owner string,
	list func(context.Context, string) ([]E, error), fn func([]E)) (func(), error) {
	notices, unsubscribe := hub.Subscribe(owner)
	items, err := list(ctx, owner)
	if err != nil {
		unsubscribe()
		return nil, err
	}
	fn(items)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case n := <-notices:
				if n.Kind != kind {
					continue
				}
				items, err := list(ctx, owner)
				if err != nil {
					continue
				}
				fn(items)
			}
		}
	}()
	return func() {
		unsubscribe()
		cancel()
		<-done
	}, nil
}
