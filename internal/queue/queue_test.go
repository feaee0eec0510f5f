package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestQueue_BasicOperations(t *testing.T) {
	q := New(10)
	defer q.Close() //nolint:errcheck

	if size := q.Size(); size != 0 {
		t.Errorf("Expected empty queue, got size %d", size)
	}
	if _, err := q.Peek(); !errors.Is(err, ErrQueueEmpty) {
		t.Errorf("Expected ErrQueueEmpty, got %v", err)
	}

	ctx := context.Background()
	job := Job{DocID: "d1", Title: "Intro", Chars: 12}
	if err := q.Enqueue(ctx, job); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if !q.Contains("d1") {
		t.Error("Expected d1 to be queued")
	}

	peeked, err := q.Peek()
	if err != nil || peeked.DocID != "d1" {
		t.Errorf("Peek = %v, %v", peeked, err)
	}

	got, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if got != job {
		t.Errorf("Dequeued %+v, want %+v", got, job)
	}
	if q.Contains("d1") {
		t.Error("d1 still reported as queued")
	}

	stats := q.Stats()
	if stats.TotalEnqueued != 1 || stats.TotalDequeued != 1 || stats.QueuedChars != 0 {
		t.Errorf("Unexpected stats %+v", stats)
	}
}

func TestQueue_PriorityOrdering(t *testing.T) {
	q := New(10)
	ctx := context.Background()

	for _, j := range []Job{
		{DocID: "a"},
		{DocID: "b"},
		{DocID: "urgent1", Priority: true},
		{DocID: "c"},
		{DocID: "urgent2", Priority: true},
	} {
		if err := q.Enqueue(ctx, j); err != nil {
			t.Fatalf("Enqueue(%s): %v", j.DocID, err)
		}
	}

	want := []string{"urgent1", "urgent2", "a", "b", "c"}
	for i, id := range want {
		got, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue %d: %v", i, err)
		}
		if got.DocID != id {
			t.Errorf("Position %d: got %s, want %s", i, got.DocID, id)
		}
	}

	if stats := q.Stats(); stats.HighPriorityCount != 2 || stats.PeakSize != 5 {
		t.Errorf("Unexpected stats %+v", stats)
	}
}

func TestQueue_Duplicate(t *testing.T) {
	q := New(5)
	ctx := context.Background()

	if err := q.Enqueue(ctx, Job{DocID: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(ctx, Job{DocID: "a", Priority: true}); !errors.Is(err, ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate, got %v", err)
	}
}

func TestQueue_EnqueueBatch(t *testing.T) {
	q := New(3)

	n, err := q.EnqueueBatch([]Job{{DocID: "a"}, {DocID: "a"}, {DocID: "b"}, {DocID: "c"}, {DocID: "d"}})
	if !errors.Is(err, ErrQueueFull) {
		t.Errorf("Expected ErrQueueFull, got %v", err)
	}
	if n != 3 {
		t.Errorf("Added %d jobs, want 3", n)
	}
	if q.Contains("d") {
		t.Error("d should not fit")
	}
}

func TestQueue_RemoveAndClear(t *testing.T) {
	q := New(5)
	if _, err := q.EnqueueBatch([]Job{{DocID: "a", Chars: 3}, {DocID: "b", Chars: 4}, {DocID: "c", Chars: 5}}); err != nil {
		t.Fatal(err)
	}

	if !q.Remove("b") {
		t.Error("Remove(b) reported false")
	}
	if q.Remove("b") {
		t.Error("second Remove(b) reported true")
	}
	if got := q.Stats().QueuedChars; got != 8 {
		t.Errorf("QueuedChars = %d, want 8", got)
	}

	first, _ := q.Dequeue(context.Background())
	if first.DocID != "a" {
		t.Errorf("Expected a after removal, got %s", first.DocID)
	}

	q.Clear()
	if q.Size() != 0 || q.Contains("c") {
		t.Error("Clear left jobs behind")
	}
}

func TestQueue_CloseDrains(t *testing.T) {
	q := New(5)
	ctx := context.Background()
	_ = q.Enqueue(ctx, Job{DocID: "a"})
	_ = q.Close()

	if err := q.Enqueue(ctx, Job{DocID: "b"}); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Enqueue after close: %v", err)
	}
	if got, err := q.Dequeue(ctx); err != nil || got.DocID != "a" {
		t.Errorf("Dequeue after close = %v, %v", got, err)
	}
	if _, err := q.Dequeue(ctx); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Expected ErrQueueClosed once drained, got %v", err)
	}
}

func TestQueue_Backpressure(t *testing.T) {
	q := New(1)
	ctx := context.Background()
	_ = q.Enqueue(ctx, Job{DocID: "a"})

	done := make(chan error, 1)
	go func() {
		done <- q.Enqueue(ctx, Job{DocID: "b"})
	}()

	select {
	case err := <-done:
		t.Fatalf("Enqueue returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	if _, err := q.Dequeue(ctx); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Blocked Enqueue failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Enqueue did not resume after space freed")
	}
}

func TestQueue_WaitForSpaceCancelled(t *testing.T) {
	q := New(1)
	_ = q.Enqueue(context.Background(), Job{DocID: "a"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := q.WaitForSpace(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline error, got %v", err)
	}
	if err := q.Enqueue(ctx, Job{DocID: "b"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline error from Enqueue, got %v", err)
	}
}

func TestQueue_DequeueCancelled(t *testing.T) {
	q := New(1)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := q.Dequeue(ctx)
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Dequeue did not observe cancellation")
	}
}

func TestQueue_ConcurrentWorkers(t *testing.T) {
	q := New(4)
	ctx := context.Background()

	var (
		mu   sync.Mutex
		seen = make(map[string]int)
		wg   sync.WaitGroup
	)
	for w := 0; w < 3; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, err := q.Dequeue(ctx)
				if err != nil {
					return
				}
				mu.Lock()
				seen[job.DocID]++
				mu.Unlock()
			}
		}()
	}

	ids := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}
	for _, id := range ids {
		if err := q.Enqueue(ctx, Job{DocID: id}); err != nil {
			t.Fatalf("Enqueue(%s): %v", id, err)
		}
	}
	_ = q.Close()
	wg.Wait()

	for _, id := range ids {
		if seen[id] != 1 {
			t.Errorf("%s processed %d times", id, seen[id])
		}
	}
}
