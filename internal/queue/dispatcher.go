package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"clinical-backend/internal/shared/telemetry"
)

// Dispatcher runs job processing on an in-process bounded worker pool. Work
// accepted by Send is executed off the request path and always runs to
// completion, whether or not the submitting client polls again.
type Dispatcher struct {
	proc Processor
	msgs chan Message
	wg   sync.WaitGroup

	// mu guards closed and, on the read side, spans the whole send in
	// Send so Close cannot close msgs between the check and the send.
	mu     sync.RWMutex
	closed bool
}

// ErrDispatcherClosed is returned by Send after Close.
var ErrDispatcherClosed = errors.New("dispatcher closed")

// NewDispatcher starts workers goroutines consuming from a buffered queue.
func NewDispatcher(proc Processor, workers, buffer int) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if buffer < 0 {
		buffer = 0
	}
	d := &Dispatcher{
		proc: proc,
		msgs: make(chan Message, buffer),
	}
	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.worker()
	}
	return d
}

// Send enqueues a message, blocking until a worker slot frees up or ctx ends.
func (d *Dispatcher) Send(ctx context.Context, msg Message) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}

	select {
	case d.msgs <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops intake and waits for in-flight work to finish. It blocks until
// sends already in flight have either handed off their message or given up.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.msgs)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for msg := range d.msgs {
		d.process(msg)
	}
}

func (d *Dispatcher) process(msg Message) {
	defer func() {
		if rec := recover(); rec != nil {
			telemetry.Error("dispatch.panic", map[string]any{
				"job_id":     msg.JobID,
				"request_id": msg.RequestID,
				"error":      fmt.Sprintf("%v", rec),
			})
		}
	}()

	// Detached from the submitting request on purpose.
	if err := d.proc.ProcessJob(context.Background(), msg.JobID); err != nil {
		telemetry.Error("dispatch.process", map[string]any{
			"job_id":     msg.JobID,
			"request_id": msg.RequestID,
			"error":      err.Error(),
		})
	}
}

var _ Client = (*Dispatcher)(nil)
