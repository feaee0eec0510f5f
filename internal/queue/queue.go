package queue

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrQueueFull is returned when the queue is at capacity
	ErrQueueFull = errors.New("queue is full")

	// ErrQueueClosed is returned once a closed queue has been drained
	ErrQueueClosed = errors.New("queue is closed")

	// ErrQueueEmpty is returned by Peek when nothing is queued
	ErrQueueEmpty = errors.New("queue is empty")

	// ErrDuplicate is returned when a document is already queued
	ErrDuplicate = errors.New("document already queued")
)

// Job is a document waiting for synthesis.
type Job struct {
	DocID    string
	Title    string
	Chars    int
	Priority bool
}

// Stats tracks queue counters.
type Stats struct {
	TotalEnqueued     int64
	TotalDequeued     int64
	HighPriorityCount int64
	CurrentSize       int
	PeakSize          int
	LastEnqueue       time.Time
	LastDequeue       time.Time
	QueuedChars       int
}

// Queue is a bounded priority queue of synthesis jobs. It is safe for
// concurrent use by one producer and any number of workers.
type Queue struct {
	items   jobHeap
	queued  map[string]bool
	maxSize int
	seq     uint64

	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond

	closed bool
	stats  Stats
}

// New creates a queue that holds at most maxSize jobs.
func New(maxSize int) *Queue {
	if maxSize <= 0 {
		maxSize = 1
	}
	q := &Queue{
		queued:  make(map[string]bool),
		maxSize: maxSize,
	}
	heap.Init(&q.items)
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Enqueue adds a job, waiting for space while the queue is full.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.notFull.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.queued[job.DocID] {
		return ErrDuplicate
	}
	for q.items.Len() >= q.maxSize && !q.closed {
		if err := ctx.Err(); err != nil {
			return err
		}
		q.notFull.Wait()
	}
	if q.closed {
		return ErrQueueClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	q.pushLocked(job)
	q.notEmpty.Signal()
	return nil
}

// EnqueueBatch adds as many jobs as fit without waiting. Duplicates are
// skipped. It returns the number added and ErrQueueFull if some were left out.
func (q *Queue) EnqueueBatch(jobs []Job) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return 0, ErrQueueClosed
	}

	added := 0
	for _, job := range jobs {
		if q.queued[job.DocID] {
			continue
		}
		if q.items.Len() >= q.maxSize {
			if added > 0 {
				q.notEmpty.Broadcast()
			}
			return added, ErrQueueFull
		}
		q.pushLocked(job)
		added++
	}
	if added > 0 {
		q.notEmpty.Broadcast()
	}
	return added, nil
}

func (q *Queue) pushLocked(job Job) {
	q.seq++
	heap.Push(&q.items, &item{job: job, seq: q.seq})
	q.queued[job.DocID] = true

	q.stats.TotalEnqueued++
	if job.Priority {
		q.stats.HighPriorityCount++
	}
	q.stats.LastEnqueue = time.Now()
	q.stats.QueuedChars += job.Chars
	if n := q.items.Len(); n > q.stats.PeakSize {
		q.stats.PeakSize = n
	}
}

// Dequeue removes the next job, waiting while the queue is empty. Priority
// jobs come first and jobs of equal priority keep their insertion order.
// After Close the remaining jobs are still handed out, then ErrQueueClosed.
func (q *Queue) Dequeue(ctx context.Context) (Job, error) {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.notEmpty.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	for q.items.Len() == 0 && !q.closed {
		if err := ctx.Err(); err != nil {
			return Job{}, err
		}
		q.notEmpty.Wait()
	}
	if q.items.Len() == 0 {
		return Job{}, ErrQueueClosed
	}
	if err := ctx.Err(); err != nil {
		return Job{}, err
	}

	it := heap.Pop(&q.items).(*item)
	delete(q.queued, it.job.DocID)

	q.stats.TotalDequeued++
	q.stats.LastDequeue = time.Now()
	q.stats.QueuedChars -= it.job.Chars
	q.notFull.Signal()

	return it.job, nil
}

// Peek returns the next job without removing it.
func (q *Queue) Peek() (Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.items.Len() == 0 {
		return Job{}, ErrQueueEmpty
	}
	return q.items[0].job, nil
}

// Contains reports whether a document is queued.
func (q *Queue) Contains(docID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.queued[docID]
}

// Remove drops a queued document. It reports whether the document was queued.
func (q *Queue) Remove(docID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, it := range q.items {
		if it.job.DocID == docID {
			heap.Remove(&q.items, i)
			delete(q.queued, docID)
			q.stats.QueuedChars -= it.job.Chars
			q.notFull.Signal()
			return true
		}
	}
	return false
}

// Size returns the number of queued jobs.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Clear removes all queued jobs.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = q.items[:0]
	q.queued = make(map[string]bool)
	q.stats.QueuedChars = 0
	q.notFull.Broadcast()
}

// Stats returns a snapshot of the queue counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := q.stats
	stats.CurrentSize = q.items.Len()
	return stats
}

// Close stops accepting jobs and wakes every waiter. Jobs already queued can
// still be dequeued.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
	return nil
}

// WaitForSpace blocks until the queue has room, the queue is closed, or the
// context is cancelled.
func (q *Queue) WaitForSpace(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.notFull.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	for q.items.Len() >= q.maxSize && !q.closed {
		if err := ctx.Err(); err != nil {
			return err
		}
		q.notFull.Wait()
	}
	if q.closed {
		return ErrQueueClosed
	}
	return ctx.Err()
}

type item struct {
	job   Job
	seq   uint64
	index int
}

type jobHeap []*item

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	if h[i].job.Priority != h[j].job.Priority {
		return h[i].job.Priority
	}
	return h[i].seq < h[j].seq
}

func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *jobHeap) Push(x any) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}
