package queue

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestSubmitAndDrainFIFO(t *testing.T) {
	q := New()
	ctx := context.Background()

	var order []int
	for i := 0; i < 3; i++ {
		i := i
		if err := q.Submit(ctx, func() { order = append(order, i) }); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}

	for i := 0; i < 3; i++ {
		task, ok := q.DrainOne()
		if !ok {
			t.Fatalf("expected a task")
		}
		task()
	}

	if len(order) != 3 || order[0] != 0 || order[1] != 1 || order[2] != 2 {
		t.Fatalf("tasks did not run in FIFO order: %v", order)
	}
}

func TestSubmitBlocksWhenFull(t *testing.T) {
	q := &Queue{ch: make(chan Task, 1)}
	ctx := context.Background()

	if err := q.Submit(ctx, func() {}); err != nil {
		t.Fatalf("first submit should not block: %v", err)
	}

	blocked := make(chan struct{})
	go func() {
		_ = q.Submit(ctx, func() {})
		close(blocked)
	}()

	select {
	case <-blocked:
		t.Fatalf("second submit should have blocked on a full queue")
	case <-time.After(50 * time.Millisecond):
	}

	// Draining one slot should unblock the submitter.
	if _, ok := q.DrainOne(); !ok {
		t.Fatalf("expected a task to drain")
	}

	select {
	case <-blocked:
	case <-time.After(time.Second):
		t.Fatalf("submit did not unblock after a slot freed")
	}
}

func TestSubmitResultAwait(t *testing.T) {
	q := New()
	ctx := context.Background()

	fut, err := SubmitResult(ctx, q, func() (int, error) { return 42, nil })
	if err != nil {
		t.Fatalf("submit result: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		task, ok := q.DrainOne()
		for !ok {
			task, ok = q.DrainOne()
		}
		task()
	}()
	wg.Wait()

	v, err := Await(ctx, fut)
	if err != nil || v != 42 {
		t.Fatalf("Await() = (%d, %v), want (42, nil)", v, err)
	}
}
