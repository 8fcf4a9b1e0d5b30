// Package syncq batches remote operations per entity id. The latest operation
// enqueued for an id wins, a debounce timer dispatches the batch, and an id
// never has more than one operation in flight.
package syncq

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultDebounce is the delay between the first enqueue of a burst and the
// dispatch of the batch.
const DefaultDebounce = 300 * time.Millisecond

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("syncq: queue closed")

// Op is one remote operation. Its error is only logged; the caller records
// failures on the entity itself.
type Op func(ctx context.Context) error

// Options configures a Queue. Zero values select the defaults.
type Options struct {
	Debounce    time.Duration
	MaxInFlight int
	Logger      *slog.Logger
}

// Queue is safe for concurrent use.
type Queue struct {
	debounce time.Duration
	limit    int
	log      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	pending  map[string]Op
	order    []string
	inflight map[string]struct{}
	timer    *time.Timer
	closed   bool
	changed  chan struct{}

	wg sync.WaitGroup
}

// New creates a queue whose operations run under ctx.
func New(ctx context.Context, opts Options) *Queue {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = 8
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Queue{
		debounce: opts.Debounce,
		limit:    opts.MaxInFlight,
		log:      opts.Logger,
		ctx:      ctx,
		cancel:   cancel,
		pending:  make(map[string]Op),
		inflight: make(map[string]struct{}),
		changed:  make(chan struct{}),
	}
}

// Enqueue stores op as the next operation for id, replacing any operation
// for id that has not been dispatched yet, and arms the debounce timer.
func (q *Queue) Enqueue(id string, op Op) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	if _, ok := q.pending[id]; !ok {
		q.order = append(q.order, id)
	}
	q.pending[id] = op
	q.armLocked()
	return nil
}

// Cancel drops the undispatched operation for id.
func (q *Queue) Cancel(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.pending[id]; !ok {
		return false
	}
	q.removeLocked(id)
	q.signalLocked()
	return true
}

// Pending lists the ids with an undispatched operation, in enqueue order.
func (q *Queue) Pending() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.order...)
}

// IsPending reports whether id has an undispatched operation.
func (q *Queue) IsPending(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.pending[id]
	return ok
}

// InFlight reports whether an operation for id is running.
func (q *Queue) InFlight(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.inflight[id]
	return ok
}

// Flush dispatches every pending operation whose id is idle and waits for
// those operations to settle. It cancels the debounce timer.
func (q *Queue) Flush(ctx context.Context) error {
	q.mu.Lock()
	q.stopTimerLocked()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	type job struct {
		id string
		op Op
	}
	var batch []job
	var waiting []string
	for _, id := range q.order {
		if _, busy := q.inflight[id]; busy {
			waiting = append(waiting, id)
			continue
		}
		batch = append(batch, job{id: id, op: q.pending[id]})
		delete(q.pending, id)
		q.inflight[id] = struct{}{}
	}
	q.order = waiting
	if len(batch) == 0 {
		q.mu.Unlock()
		return nil
	}
	q.wg.Add(1)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer q.wg.Done()
		defer close(done)
		var g errgroup.Group
		g.SetLimit(q.limit)
		for _, j := range batch {
			g.Go(func() error {
				defer q.settle(j.id)
				if err := j.op(q.ctx); err != nil {
					q.log.Debug("sync operation failed", "id", j.id, "error", err)
				}
				return nil
			})
		}
		_ = g.Wait()
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain flushes until nothing is pending or in flight.
func (q *Queue) Drain(ctx context.Context) error {
	for {
		if err := q.Flush(ctx); err != nil {
			return err
		}
		q.mu.Lock()
		if len(q.pending) == 0 && len(q.inflight) == 0 {
			q.mu.Unlock()
			return nil
		}
		changed := q.changed
		busy := len(q.inflight) > 0
		q.mu.Unlock()
		if !busy {
			continue
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close cancels running operations, stops the timer and waits for the
// dispatch goroutines to exit. Pending operations are discarded.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.stopTimerLocked()
	q.pending = make(map[string]Op)
	q.order = nil
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
}

func (q *Queue) settle(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inflight, id)
	if _, again := q.pending[id]; again && !q.closed {
		q.armLocked()
	}
	q.signalLocked()
}

func (q *Queue) armLocked() {
	if q.timer != nil {
		return
	}
	q.timer = time.AfterFunc(q.debounce, func() {
		if err := q.Flush(q.ctx); err != nil && !errors.Is(err, ErrClosed) {
			q.log.Debug("debounced flush interrupted", "error", err)
		}
	})
}

func (q *Queue) stopTimerLocked() {
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
}

func (q *Queue) removeLocked(id string) {
	delete(q.pending, id)
	for i, key := range q.order {
		if key == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			return
		}
	}
}

func (q *Queue) signalLocked() {
	close(q.changed)
	q.changed = make(chan struct{})
}
