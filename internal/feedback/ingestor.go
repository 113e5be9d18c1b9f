// Package feedback implements the Feedback Ingestor: the bounded-queue
// front door that calls the Candidate Store with each transaction
// outcome. See spec.md §5 "Backpressure".
package feedback

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/nimbus-psp/psp-router/internal/candidatestore"
	"github.com/nimbus-psp/psp-router/internal/model"
)

// Ingestor buffers feedback in a bounded FIFO and applies it to the
// Candidate Store from a fixed pool of workers. On overflow the oldest
// queued item is dropped and a counter incremented — feedback ingestion
// degrades under load, but Decisions are never affected (spec.md §5).
// Grounded on the teacher's single-writer-goroutine discipline
// (internal/orchestrator.go's PaymentStore), generalized from a plain map
// write to a bounded producer/consumer queue.
type Ingestor struct {
	store *candidatestore.Store

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []model.Feedback
	capacity int
	closed   bool

	dropped atomic.Int64
	workers int
	wg      sync.WaitGroup

	onEvent func(event string, fields ...any) // metrics/telemetry hook, optional
}

// New builds an Ingestor with the given bounded capacity and worker pool
// size, applying accepted feedback to store.
func New(store *candidatestore.Store, capacity, workers int) *Ingestor {
	if capacity <= 0 {
		capacity = 10000
	}
	if workers <= 0 {
		workers = 1
	}
	i := &Ingestor{store: store, capacity: capacity, workers: workers}
	i.cond = sync.NewCond(&i.mu)
	return i
}

// OnEvent installs a hook invoked whenever feedback is dropped due to queue
// overflow — the seam internal/telemetry's Prometheus registry attaches to,
// mirroring router.Router.OnEvent.
func (i *Ingestor) OnEvent(fn func(event string, fields ...any)) {
	i.onEvent = fn
}

func (i *Ingestor) emit(event string, fields ...any) {
	if i.onEvent != nil {
		i.onEvent(event, fields...)
	}
}

// Start launches the worker pool. Call Stop to drain and shut down.
func (i *Ingestor) Start() {
	for w := 0; w < i.workers; w++ {
		i.wg.Add(1)
		go i.runWorker()
	}
}

// Submit enqueues feedback for asynchronous application. Never blocks the
// caller: on a full queue, the oldest entry is dropped to make room.
func (i *Ingestor) Submit(fb model.Feedback) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return
	}

	if len(i.queue) >= i.capacity {
		i.queue = i.queue[1:]
		i.dropped.Add(1)
		slog.Warn("feedback_queue_overflow_dropped_oldest", "decision_id", fb.DecisionID)
		i.emit("feedback_dropped", "decision_id", fb.DecisionID)
	}
	i.queue = append(i.queue, fb)
	i.cond.Signal()
}

// DroppedCount returns the number of feedback entries dropped due to
// queue overflow since startup.
func (i *Ingestor) DroppedCount() int64 {
	return i.dropped.Load()
}

// Stop signals every worker to drain the remaining queue and exit, then
// waits for them to finish.
func (i *Ingestor) Stop() {
	i.mu.Lock()
	i.closed = true
	i.cond.Broadcast()
	i.mu.Unlock()
	i.wg.Wait()
}

func (i *Ingestor) runWorker() {
	defer i.wg.Done()
	for {
		fb, ok := i.next()
		if !ok {
			return
		}
		i.store.ApplyFeedback(fb)
	}
}

// next blocks until a feedback item is available, or the ingestor is
// stopped with an empty queue.
func (i *Ingestor) next() (model.Feedback, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()

	for len(i.queue) == 0 && !i.closed {
		i.cond.Wait()
	}
	if len(i.queue) == 0 {
		return model.Feedback{}, false
	}

	fb := i.queue[0]
	i.queue = i.queue[1:]
	return fb, true
}
