package dispatch

import (
	"context"
	"sync"

	"github.com/ignite/storefront-insights/internal/metrics"
	"github.com/ignite/storefront-insights/internal/pkg/logger"
)

// Queue runs dispatches asynchronously on a fixed number of workers.
type Queue struct {
	dispatcher *Dispatcher
	jobs       chan Content
	workers    int
	onResult   func(Content, bool)

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
	log    *logger.Logger
}

// NewQueue creates a queue holding at most size pending digests.
func NewQueue(d *Dispatcher, size, workers int) *Queue {
	if size < 1 {
		size = 1
	}
	if workers < 1 {
		workers = 1
	}
	return &Queue{
		dispatcher: d,
		jobs:       make(chan Content, size),
		workers:    workers,
		log:        logger.Default().With("component", "digest-queue"),
	}
}

// OnResult registers a callback invoked after every dispatch. Must be set
// before Start.
func (q *Queue) OnResult(fn func(Content, bool)) { q.onResult = fn }

// Start launches the workers. They exit when Close drains the queue.
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
	q.log.Info("digest queue started", "workers", q.workers, "capacity", cap(q.jobs))
}

func (q *Queue) worker(ctx context.Context, id int) {
	defer q.wg.Done()
	for c := range q.jobs {
		metrics.QueueDepth.Set(float64(len(q.jobs)))
		delivered := q.dispatcher.Dispatch(ctx, c)
		q.log.Debug("digest processed", "worker", id, "key", c.Key(), "delivered", delivered)
		if q.onResult != nil {
			q.onResult(c, delivered)
		}
	}
}

// Enqueue schedules c without blocking. It returns false when the queue is
// full or closed; the digest is then dropped and logged.
func (q *Queue) Enqueue(c Content) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.log.Warn("digest dropped, queue closed", "key", c.Key())
		metrics.DispatchTotal.WithLabelValues(metrics.DispatchDropped).Inc()
		return false
	}
	select {
	case q.jobs <- c:
		metrics.QueueDepth.Set(float64(len(q.jobs)))
		return true
	default:
		q.log.Warn("digest dropped, queue full", "key", c.Key(), "capacity", cap(q.jobs))
		metrics.DispatchTotal.WithLabelValues(metrics.DispatchDropped).Inc()
		return false
	}
}

// Close stops accepting work, lets the workers drain what is queued and waits.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()
	q.wg.Wait()
}
