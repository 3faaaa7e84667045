package matching

import (
	"context"
	"fmt"
	"hash/fnv"
	"runtime/debug"
	"sync"

	"github.com/sirupsen/logrus"
)

const (
	defaultShardCount     = 4
	defaultShardQueueSize = 1024
)

type shardTask struct {
	isin string
	fn   func()
	done chan error
}

// Dispatcher runs work for one instrument on one goroutine, in arrival order.
// Instruments are spread over shards by FNV hash of the ISIN.
type Dispatcher struct {
	shards []chan shardTask

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(shardCount int) *Dispatcher {
	if shardCount <= 0 {
		shardCount = defaultShardCount
	}

	d := &Dispatcher{shards: make([]chan shardTask, shardCount)}
	for i := range d.shards {
		d.shards[i] = make(chan shardTask, defaultShardQueueSize)
		d.wg.Add(1)
		go d.loop(i, d.shards[i])
	}

	return d
}

func (d *Dispatcher) loop(id int, tasks <-chan shardTask) {
	defer d.wg.Done()

	for task := range tasks {
		task.done <- d.run(id, task)
	}
}

func (d *Dispatcher) run(id int, task shardTask) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			logrus.WithFields(logrus.Fields{
				"shard": id,
				"isin":  task.isin,
				"panic": recovered,
				"stack": string(debug.Stack()),
			}).Error("engine panic recovered")
			err = fmt.Errorf("%w: %v", ErrEngineFault, recovered)
		}
	}()

	task.fn()
	return nil
}

func (d *Dispatcher) shardFor(isin string) chan shardTask {
	h := fnv.New32a()
	_, _ = h.Write([]byte(isin))
	return d.shards[h.Sum32()%uint32(len(d.shards))]
}

// Do runs fn on the shard owning isin and waits for it. Once fn is queued it
// runs to completion even if ctx is cancelled meanwhile.
func (d *Dispatcher) Do(ctx context.Context, isin string, fn func()) error {
	done := make(chan error, 1)

	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return ErrDispatcherClosed
	}
	select {
	case d.shardFor(isin) <- shardTask{isin: isin, fn: fn, done: done}:
		d.mu.RUnlock()
	case <-ctx.Done():
		d.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting work and waits for queued tasks to drain.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, ch := range d.shards {
		close(ch)
	}
	d.mu.Unlock()

	d.wg.Wait()
}
