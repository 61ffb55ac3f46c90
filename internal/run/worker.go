package run

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrQueueFull reports that the execution queue has no room for another run.
	ErrQueueFull = errors.New("run: execution queue full")
	// ErrWorkerStopped reports an enqueue attempt after Stop.
	ErrWorkerStopped = errors.New("run: worker stopped")
)

// Worker executes queued runs in the background. Request handlers enqueue a
// created run and return immediately; pollers observe progress only through
// the store, never the in-flight execution.
type Worker struct {
	orch *Orchestrator
	jobs chan *Run

	wg       sync.WaitGroup
	stopOnce sync.Once

	mu     sync.Mutex
	closed bool
}

// NewWorker creates a Worker over the given orchestrator.
func NewWorker(orch *Orchestrator, queueSize int, workers int) *Worker {
	if queueSize <= 0 {
		queueSize = 16
	}
	if workers <= 0 {
		workers = 1
	}

	w := &Worker{
		orch: orch,
		jobs: make(chan *Run, queueSize),
	}

	for i := 0; i < workers; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			for r := range w.jobs {
				// Errors surface through the run's failed status; there
				// is no request left to report them to.
				_, _ = w.orch.ExecuteRun(context.Background(), r)
			}
		}()
	}

	return w
}

// Enqueue schedules a pending run for execution.
func (w *Worker) Enqueue(r *Run) error {
	if w == nil || w.jobs == nil {
		return errors.New("run: nil worker")
	}
	if r == nil {
		return errors.New("run: nil run")
	}

	// The lock orders enqueues against Stop closing the channel, so a late
	// caller gets ErrWorkerStopped instead of a send-on-closed panic.
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWorkerStopped
	}

	select {
	case w.jobs <- r:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop drains the queue and waits for in-flight runs to finish.
func (w *Worker) Stop() {
	if w == nil {
		return
	}
	w.stopOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		close(w.jobs)
		w.mu.Unlock()
	})
	w.wg.Wait()
}
