package requestqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/function61/gokit/assert"
)

func TestTasksRunInFIFOOrder(t *testing.T) {
	coordinator := New(time.Millisecond, nil)

	var mu sync.Mutex
	order := []int{}

	futures := []*Future{}
	for i := 0; i < 5; i++ {
		i := i
		futures = append(futures, coordinator.Enqueue(context.Background(), func(_ context.Context) (interface{}, error) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return i, nil
		}))
	}

	for i, future := range futures {
		value, err := future.Wait(context.Background())
		assert.Ok(t, err)
		assert.Assert(t, value.(int) == i)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Assert(t, len(order) == 5)
	for i, got := range order {
		assert.Assert(t, got == i)
	}
}

func TestOnlyOneWorkerEverRuns(t *testing.T) {
	coordinator := New(time.Millisecond, nil)

	var running, maxRunning int32

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			future := coordinator.Enqueue(context.Background(), func(_ context.Context) (interface{}, error) {
				now := atomic.AddInt32(&running, 1)
				defer atomic.AddInt32(&running, -1)

				for {
					observed := atomic.LoadInt32(&maxRunning)
					if now <= observed || atomic.CompareAndSwapInt32(&maxRunning, observed, now) {
						break
					}
				}

				time.Sleep(time.Millisecond)
				return nil, nil
			})

			_, err := future.Wait(context.Background())
			assert.Ok(t, err)
		}()
	}
	wg.Wait()

	assert.Assert(t, atomic.LoadInt32(&maxRunning) == 1)
}

func TestErrorsAreForwardedToTheCaller(t *testing.T) {
	coordinator := New(time.Millisecond, nil)

	boom := errors.New("backend exploded")

	_, err := coordinator.Enqueue(context.Background(), func(_ context.Context) (interface{}, error) {
		return nil, boom
	}).Wait(context.Background())

	assert.Assert(t, errors.Is(err, boom))

	// a failed task does not stall the queue
	value, err := coordinator.Enqueue(context.Background(), func(_ context.Context) (interface{}, error) {
		return "still alive", nil
	}).Wait(context.Background())
	assert.Ok(t, err)
	assert.EqualString(t, value.(string), "still alive")
}

func TestWorkerGoesIdleAndRestarts(t *testing.T) {
	coordinator := New(time.Millisecond, nil)

	assert.Assert(t, coordinator.State() == StateIdle)

	_, err := coordinator.Enqueue(context.Background(), func(_ context.Context) (interface{}, error) {
		return nil, nil
	}).Wait(context.Background())
	assert.Ok(t, err)

	// worker parks once the queue is drained
	deadline := time.Now().Add(time.Second)
	for coordinator.State() != StateIdle {
		if time.Now().After(deadline) {
			t.Fatal("worker did not become idle")
		}
		time.Sleep(time.Millisecond)
	}

	// a later enqueue starts it again
	value, err := coordinator.Enqueue(context.Background(), func(_ context.Context) (interface{}, error) {
		return 42, nil
	}).Wait(context.Background())
	assert.Ok(t, err)
	assert.Assert(t, value.(int) == 42)
}

func TestInterTaskDelayElapsesBetweenTasks(t *testing.T) {
	delay := 30 * time.Millisecond
	coordinator := New(delay, nil)

	var first, second time.Time

	f1 := coordinator.Enqueue(context.Background(), func(_ context.Context) (interface{}, error) {
		first = time.Now()
		return nil, nil
	})
	f2 := coordinator.Enqueue(context.Background(), func(_ context.Context) (interface{}, error) {
		second = time.Now()
		return nil, nil
	})

	_, err := f1.Wait(context.Background())
	assert.Ok(t, err)
	_, err = f2.Wait(context.Background())
	assert.Ok(t, err)

	assert.Assert(t, second.Sub(first) >= delay)
}

func TestWaitRespectsContext(t *testing.T) {
	coordinator := New(time.Millisecond, nil)

	release := make(chan struct{})
	future := coordinator.Enqueue(context.Background(), func(_ context.Context) (interface{}, error) {
		<-release
		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := future.Wait(ctx)
	assert.Assert(t, errors.Is(err, context.Canceled))

	close(release)
}

func TestStateString(t *testing.T) {
	assert.EqualString(t, fmt.Sprintf("%s -> %s", StateIdle, StateDraining), "Idle -> Draining")
}
