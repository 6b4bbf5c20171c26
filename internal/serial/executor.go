// Package serial provides a FIFO executor that runs at most one task at a time.
package serial

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
)

// ErrClosed is returned for tasks submitted to, or still queued on, a closed executor.
var ErrClosed = errors.New("executor closed")

// PanicError is reported to the submitter of a task that panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}

// Task is a unit of work run by an Executor.
type Task func() error

// Future reports the outcome of a submitted task.
type Future struct {
	done chan struct{}
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(err error) {
	f.err = err
	close(f.done)
}

// Done is closed once the task has finished or was rejected.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Err returns the task result. It is only meaningful after Done is closed.
func (f *Future) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

// Wait blocks until the task finishes or ctx is cancelled.
// Cancelling ctx does not withdraw the task.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Option configures an Executor.
type Option func(*Executor)

// WithPanicHandler registers a hook invoked after a task panics.
// The hook runs on the executor goroutine; it may Submit or Close but must not Wait.
func WithPanicHandler(fn func(value any)) Option {
	return func(e *Executor) {
		e.onPanic = fn
	}
}

type queuedTask struct {
	fn     Task
	future *Future
}

// Executor runs submitted tasks one at a time in submission order.
// A drain goroutine is started on demand and exits when the queue is empty.
//
// Tasks may Submit further tasks; those are appended to the tail and never run inline.
// A task must not Wait on a task it submitted: that would deadlock.
type Executor struct {
	mu      sync.Mutex
	tasks   []queuedTask
	running bool
	closed  bool
	onPanic func(any)
}

// New creates an Executor.
func New(opts ...Option) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Submit enqueues fn and returns a Future for its result.
func (e *Executor) Submit(fn Task) *Future {
	f := newFuture()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		f.resolve(ErrClosed)
		return f
	}
	e.tasks = append(e.tasks, queuedTask{fn: fn, future: f})
	if !e.running {
		e.running = true
		go e.drain()
	}
	e.mu.Unlock()

	return f
}

// Do submits fn and waits for its result.
func (e *Executor) Do(ctx context.Context, fn Task) error {
	return e.Submit(fn).Wait(ctx)
}

// Close rejects new tasks and all queued tasks with ErrClosed.
// A task that is already running is allowed to finish.
func (e *Executor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	pending := e.tasks
	e.tasks = nil
	e.mu.Unlock()

	for _, t := range pending {
		t.future.resolve(ErrClosed)
	}
}

// Closed reports whether Close has been called.
func (e *Executor) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Pending returns the number of queued tasks, excluding a running one.
func (e *Executor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.tasks)
}

func (e *Executor) drain() {
	for {
		e.mu.Lock()
		if len(e.tasks) == 0 {
			e.running = false
			e.mu.Unlock()
			return
		}
		t := e.tasks[0]
		e.tasks[0] = queuedTask{}
		e.tasks = e.tasks[1:]
		e.mu.Unlock()

		t.future.resolve(e.run(t.fn))
	}
}

func (e *Executor) run(fn Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
			if e.onPanic != nil {
				e.onPanic(r)
			}
		}
	}()
	return fn()
}

// Call runs fn on e and returns its value.
func Call[T any](ctx context.Context, e *Executor, fn func() (T, error)) (T, error) {
	var out T
	err := e.Do(ctx, func() error {
		v, err := fn()
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
