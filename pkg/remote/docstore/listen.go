package docstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Subscribe delivers the owner's documents now and again after every
// notification for this kind and owner. The listener holds one pooled
// connection until stopped.
func (s *Store[E, P]) Subscribe(ctx context.Context, owner string, onChange func([]E)) (func(), error) {
	conn, err := s.db.pool.Acquire(ctx)
	if err != nil {
		return nil, s.translate(err, "")
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{Channel}.Sanitize()); err != nil {
		conn.Release()
		return nil, fmt.Errorf("docstore: listen: %w", err)
	}
	items, err := s.List(ctx, owner)
	if err != nil {
		conn.Release()
		return nil, err
	}
	onChange(items)

	want := payload(s.kind, owner)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		// The connection still has LISTEN active, so it is closed rather
		// than handed back to the pool.
		defer func() {
			_ = conn.Conn().Close(context.Background())
			conn.Release()
		}()
		for {
			n, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() == nil {
					s.db.log.Warn("change listener stopped", "kind", s.kind, "err", err)
				}
				return
			}
			if n.Payload != want {
				continue
			}
			items, err := s.List(ctx, owner)
			if err != nil {
				s.db.log.Warn("refresh after notify failed", "kind", s.kind, "err", err)
				continue
			}
			onChange(items)
		}
	}()
	return func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
		}
	}, nil
}
