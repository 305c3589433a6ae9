// Package worker runs jobs one at a time on a single background goroutine.
//
// The goroutine starts on the first submitted job. Holders announce interest
// with Resume and withdraw it with Pause; while at least one holder is
// active the goroutine stays alive between jobs. When the last holder
// pauses, or when no holder ever resumed, the goroutine drains the queue and
// exits. The next job starts it again.
package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/mesh-intelligence/larder/internal/logging"
)

// Worker is a FIFO job queue served by one goroutine.
type Worker struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	holders map[any]struct{}
	running bool
}

// New returns an idle worker.
func New() *Worker {
	w := &Worker{holders: make(map[any]struct{})}
	w.cond = sync.NewCond(&w.mu)
	return w
}

var (
	sharedOnce sync.Once
	shared     *Worker
)

// Shared returns the process-wide worker used by database handles.
func Shared() *Worker {
	sharedOnce.Do(func() { shared = New() })
	return shared
}

// Post enqueues job without waiting for it.
func (w *Worker) Post(job func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.queue = append(w.queue, job)
	if !w.running {
		w.running = true
		go w.loop()
		return
	}
	w.cond.Signal()
}

// Do runs fn on the worker and returns its error. If ctx is cancelled first
// Do returns ctx.Err(); the job still runs when its turn comes.
func (w *Worker) Do(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	w.Post(func() { done <- run(fn) })
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Resume registers holder as active. Registering the same holder twice has
// no further effect.
func (w *Worker) Resume(holder any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.holders[holder] = struct{}{}
}

// Pause removes holder. When no holders remain the goroutine exits once the
// queue is empty.
func (w *Worker) Pause(holder any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.holders, holder)
	if len(w.holders) == 0 {
		w.cond.Broadcast()
	}
}

// Holders returns the number of active holders.
func (w *Worker) Holders() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.holders)
}

// Running reports whether the goroutine is alive.
func (w *Worker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Worker) loop() {
	for {
		w.mu.Lock()
		for len(w.queue) == 0 && len(w.holders) > 0 {
			w.cond.Wait()
		}
		if len(w.queue) == 0 {
			w.running = false
			w.mu.Unlock()
			return
		}
		job := w.queue[0]
		w.queue[0] = nil
		w.queue = w.queue[1:]
		w.mu.Unlock()

		if err := run(func() error { job(); return nil }); err != nil {
			logging.Error("worker job failed", "error", err)
		}
	}
}

// run calls fn and converts a panic into an error.
func run(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.JobPanic(r)
			err = fmt.Errorf("worker job panicked: %v", r)
		}
	}()
	return fn()
}
