// Package queue provides the two Queue implementations: a default
// in-memory channel queue, and an optional goqite-backed durable queue.
package queue

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/awehrman/peas/internal/models"
	"github.com/awehrman/peas/internal/pipeline"
)

// ErrNoMessage is returned by a non-blocking receive against an empty queue.
var ErrNoMessage = errors.New("queue: no message")

type delayedJob struct {
	readyAt time.Time
	job     *models.Job
	index   int
}

type delayQueue []*delayedJob

func (q delayQueue) Len() int            { return len(q) }
func (q delayQueue) Less(i, j int) bool  { return q[i].readyAt.Before(q[j].readyAt) }
func (q delayQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i]; q[i].index = i; q[j].index = j }
func (q *delayQueue) Push(x any)         { j := x.(*delayedJob); j.index = len(*q); *q = append(*q, j) }
func (q *delayQueue) Pop() any {
	old := *q
	n := len(old)
	j := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return j
}

// dedupeEntry records when a jobId was last accepted, for the add-time
// dedup window.
type dedupeEntry struct {
	at time.Time
}

// MemoryQueue is the default bounded in-memory channel queue. It is safe for concurrent use by many producers and
// workers.
type MemoryQueue struct {
	name string

	mu      sync.Mutex
	ready   chan *models.Job
	delayed delayQueue
	dedupe  map[string]dedupeEntry
	pending map[string]*models.Job // jobId -> in-flight job, for Nack/Ack bookkeeping

	wake chan struct{}
	stop chan struct{}
}

// NewMemoryQueue constructs a MemoryQueue named name with the given
// channel capacity.
func NewMemoryQueue(name string, capacity int) *MemoryQueue {
	q := &MemoryQueue{
		name:    name,
		ready:   make(chan *models.Job, capacity),
		dedupe:  make(map[string]dedupeEntry),
		pending: make(map[string]*models.Job),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
	go q.delayLoop()
	return q
}

func (q *MemoryQueue) Name() string { return q.name }

// Add enqueues a job. A job with a jobId already accepted within its
// dedup window is a silent no-op.
func (q *MemoryQueue) Add(ctx context.Context, actionName string, payload []byte, jobID string, opts *models.EnqueueOptions) error {
	if jobID == "" {
		return pipeline.InvalidInput("queue.Add", errors.New("jobId is required"))
	}

	now := time.Now()

	q.mu.Lock()
	window := time.Duration(0)
	if opts != nil {
		window = opts.DedupeWindow
	}
	if window > 0 {
		if prev, ok := q.dedupe[jobID]; ok && now.Sub(prev.at) < window {
			q.mu.Unlock()
			return nil
		}
	}
	if _, inFlight := q.pending[jobID]; inFlight {
		q.mu.Unlock()
		return nil
	}
	q.dedupe[jobID] = dedupeEntry{at: now}
	q.mu.Unlock()

	job := &models.Job{
		JobID:         jobID,
		AttemptNumber: 1,
		ActionName:    actionName,
		QueueName:     q.name,
		Payload:       payload,
		EnqueuedAt:    now,
		Options:       opts,
	}

	var delay time.Duration
	if opts != nil {
		delay = opts.Delay
	}
	if delay <= 0 {
		return q.enqueueReady(ctx, job)
	}

	q.mu.Lock()
	heap.Push(&q.delayed, &delayedJob{readyAt: now.Add(delay), job: job})
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

func (q *MemoryQueue) enqueueReady(ctx context.Context, job *models.Job) error {
	select {
	case q.ready <- job:
		return nil
	case <-ctx.Done():
		return pipeline.Cancelled("queue.Add", ctx.Err())
	}
}

// Pull blocks until a job is available or ctx is done.
func (q *MemoryQueue) Pull(ctx context.Context) (*models.Job, error) {
	select {
	case job := <-q.ready:
		q.mu.Lock()
		q.pending[job.JobID] = job
		q.mu.Unlock()
		return job, nil
	case <-ctx.Done():
		return nil, pipeline.Cancelled("queue.Pull", ctx.Err())
	}
}

// Ack commits a successfully processed job: it is dropped from in-flight
// bookkeeping and its dedup entry is left standing for the dedup window.
func (q *MemoryQueue) Ack(ctx context.Context, jobID string) error {
	q.mu.Lock()
	delete(q.pending, jobID)
	q.mu.Unlock()
	return nil
}

// Nack returns a job for retry after retryAfter, or drops it (leaving it
// out of pending) if retryAfter is zero, signalling the caller already
// recorded a terminal/dead-letter outcome.
func (q *MemoryQueue) Nack(ctx context.Context, jobID string, reason string, retryAfter time.Duration) error {
	q.mu.Lock()
	job, ok := q.pending[jobID]
	delete(q.pending, jobID)
	delete(q.dedupe, jobID)
	q.mu.Unlock()

	if !ok {
		return nil
	}
	job.AttemptNumber++

	if retryAfter <= 0 {
		return nil
	}
	q.mu.Lock()
	heap.Push(&q.delayed, &delayedJob{readyAt: time.Now().Add(retryAfter), job: job})
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// Close stops the queue's delay-promotion goroutine.
func (q *MemoryQueue) Close() {
	close(q.stop)
}

func (q *MemoryQueue) delayLoop() {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		q.mu.Lock()
		var next time.Duration = time.Hour
		if len(q.delayed) > 0 {
			next = time.Until(q.delayed[0].readyAt)
			if next < 0 {
				next = 0
			}
		}
		q.mu.Unlock()
		timer.Reset(next)

		select {
		case <-q.stop:
			return
		case <-q.wake:
			continue
		case <-timer.C:
			q.promoteReady()
		}
	}
}

func (q *MemoryQueue) promoteReady() {
	now := time.Now()
	for {
		q.mu.Lock()
		if len(q.delayed) == 0 || q.delayed[0].readyAt.After(now) {
			q.mu.Unlock()
			return
		}
		dj := heap.Pop(&q.delayed).(*delayedJob)
		q.mu.Unlock()

		select {
		case q.ready <- dj.job:
		default:
			// ready is full; put it back for the next tick rather than block.
			q.mu.Lock()
			heap.Push(&q.delayed, dj)
			q.mu.Unlock()
			return
		}
	}
}

