// Serializes outgoing API calls so bursts from the dashboard cannot overwhelm
// the backend. One worker drains a FIFO queue, pausing a fixed delay between
// tasks; results are handed back to the enqueuer through a Future.
package requestqueue

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/function61/gokit/logex"
)

const DefaultDelay = 100 * time.Millisecond

type Task func(ctx context.Context) (interface{}, error)

type Result struct {
	Value interface{}
	Err   error
}

// Future delivers a task's own outcome to its enqueuer. Wait may be called
// once; the result is consumed by the first waiter.
type Future struct {
	done chan Result
}

func (f *Future) Wait(ctx context.Context) (interface{}, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-f.done:
		return res.Value, res.Err
	}
}

type State int

const (
	StateIdle State = iota
	StateDraining
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateDraining:
		return "Draining"
	default:
		return "Unknown"
	}
}

type queued struct {
	ctx    context.Context
	task   Task
	future *Future
}

// Coordinator owns its queue and worker state; construct one per session
// instead of sharing a process-wide instance.
type Coordinator struct {
	mu    sync.Mutex
	state State
	queue []*queued
	delay time.Duration
	logl  *logex.Leveled
}

// zero delay means DefaultDelay
func New(delay time.Duration, logger *log.Logger) *Coordinator {
	if delay <= 0 {
		delay = DefaultDelay
	}

	return &Coordinator{
		state: StateIdle,
		delay: delay,
		logl:  logex.Levels(logger),
	}
}

// Enqueue appends the task to the queue and returns immediately. The worker
// is started only on the Idle -> Draining transition, so concurrent Enqueue
// calls never spawn parallel workers. Enqueued tasks cannot be cancelled;
// ctx only bounds the task's own execution.
func (c *Coordinator) Enqueue(ctx context.Context, task Task) *Future {
	future := &Future{done: make(chan Result, 1)}

	c.mu.Lock()
	c.queue = append(c.queue, &queued{ctx: ctx, task: task, future: future})
	startWorker := c.state == StateIdle
	if startWorker {
		c.state = StateDraining
	}
	c.mu.Unlock()

	if startWorker {
		go c.drain()
	}

	return future
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

func (c *Coordinator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.queue)
}

func (c *Coordinator) drain() {
	for {
		c.mu.Lock()
		if len(c.queue) == 0 {
			c.state = StateIdle
			c.mu.Unlock()
			return
		}
		head := c.queue[0]
		c.queue = c.queue[1:]
		c.mu.Unlock()

		value, err := head.task(head.ctx)
		if err != nil {
			// forwarded, never swallowed. retry policy belongs to the caller
			c.logl.Error.Printf("task failed: %v", err)
		}
		head.future.done <- Result{Value: value, Err: err}

		time.Sleep(c.delay)
	}
}
