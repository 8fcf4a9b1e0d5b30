package syncq

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestEnqueueCoalescesLastWriteWins(t *testing.T) {
	q := New(context.Background(), Options{Debounce: time.Hour})
	defer q.Close()

	var mu sync.Mutex
	var ran []int
	for i := 1; i <= 3; i++ {
		if err := q.Enqueue("a", func(context.Context) error {
			mu.Lock()
			ran = append(ran, i)
			mu.Unlock()
			return nil
		}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	if got := q.Pending(); len(got) != 1 || got[0] != "a" {
		t.Fatalf("expected one pending id, got %v", got)
	}
	if err := q.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if len(ran) != 1 || ran[0] != 3 {
		t.Fatalf("expected only the last op to run, got %v", ran)
	}
	if len(q.Pending()) != 0 {
		t.Fatalf("expected empty queue after flush")
	}
}

func TestDebounceDispatchesOncePerBurst(t *testing.T) {
	q := New(context.Background(), Options{Debounce: 30 * time.Millisecond})
	defer q.Close()

	var calls atomic.Int32
	done := make(chan struct{}, 10)
	for i := 0; i < 5; i++ {
		_ = q.Enqueue("a", func(context.Context) error {
			calls.Add(1)
			done <- struct{}{}
			return nil
		})
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("debounce timer never fired")
	}
	time.Sleep(60 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected one dispatch, got %d", got)
	}
}

func TestFailureDoesNotBlockOthers(t *testing.T) {
	q := New(context.Background(), Options{Debounce: time.Hour})
	defer q.Close()

	var ok atomic.Int32
	_ = q.Enqueue("bad", func(context.Context) error { return errors.New("boom") })
	_ = q.Enqueue("good", func(context.Context) error { ok.Add(1); return nil })
	if err := q.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if ok.Load() != 1 {
		t.Fatalf("expected the healthy op to run")
	}
	if len(q.Pending()) != 0 {
		t.Fatalf("failed op must be dropped from the queue")
	}
}

func TestSameIDNeverRunsConcurrently(t *testing.T) {
	q := New(context.Background(), Options{Debounce: 10 * time.Millisecond})
	defer q.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	var second atomic.Bool
	_ = q.Enqueue("a", func(context.Context) error {
		close(started)
		<-release
		return nil
	})
	go func() { _ = q.Flush(context.Background()) }()
	<-started

	_ = q.Enqueue("a", func(context.Context) error {
		second.Store(true)
		return nil
	})
	if err := q.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if second.Load() {
		t.Fatalf("second op dispatched while the first was in flight")
	}
	if !q.InFlight("a") || !q.IsPending("a") {
		t.Fatalf("expected a to be in flight with a queued follow-up")
	}

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := q.Drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if !second.Load() {
		t.Fatalf("follow-up op never ran")
	}
}

func TestCancel(t *testing.T) {
	q := New(context.Background(), Options{Debounce: time.Hour})
	defer q.Close()

	var ran atomic.Bool
	_ = q.Enqueue("a", func(context.Context) error { ran.Store(true); return nil })
	if !q.Cancel("a") {
		t.Fatalf("expected cancel to report a dropped op")
	}
	if q.Cancel("a") {
		t.Fatalf("second cancel must be a no-op")
	}
	_ = q.Flush(context.Background())
	if ran.Load() {
		t.Fatalf("cancelled op ran")
	}
}

func TestCloseStopsTimerAndRejectsEnqueue(t *testing.T) {
	q := New(context.Background(), Options{Debounce: 20 * time.Millisecond})
	var ran atomic.Bool
	_ = q.Enqueue("a", func(context.Context) error { ran.Store(true); return nil })
	q.Close()
	time.Sleep(50 * time.Millisecond)
	if ran.Load() {
		t.Fatalf("op ran after close")
	}
	if err := q.Enqueue("b", func(context.Context) error { return nil }); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestCloseCancelsRunningOps(t *testing.T) {
	q := New(context.Background(), Options{Debounce: time.Hour})
	started := make(chan struct{})
	_ = q.Enqueue("a", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	go func() { _ = q.Flush(context.Background()) }()
	<-started

	closed := make(chan struct{})
	go func() {
		q.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatalf("close did not cancel the running op")
	}
}
