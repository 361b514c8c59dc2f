package hook

import (
	"context"
	"log"
	"sync"

	"github.com/ayusman/gazetrack/internal/publish"
)

const queueSize = 64

// Dispatcher runs matching hooks for each event on a single background
// goroutine, in event order. Events that arrive while the queue is full are
// dropped.
type Dispatcher struct {
	manager  *Manager
	executor *Executor
	queue    chan publish.Event
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu      sync.Mutex
	dropped int
}

// NewDispatcher creates a Dispatcher and starts its worker.
func NewDispatcher(m *Manager, e *Executor) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		manager:  m,
		executor: e,
		queue:    make(chan publish.Event, queueSize),
		ctx:      ctx,
		cancel:   cancel,
	}
	d.wg.Add(1)
	go d.work()
	return d
}

// Dispatch queues e without blocking.
func (d *Dispatcher) Dispatch(e publish.Event) {
	if len(d.manager.Matching(e.Type)) == 0 {
		return
	}
	select {
	case d.queue <- e:
	default:
		d.mu.Lock()
		d.dropped++
		d.mu.Unlock()
	}
}

// Dropped returns the number of events discarded because the queue was full.
func (d *Dispatcher) Dropped() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

// Close runs the events already queued and stops the worker.
func (d *Dispatcher) Close() {
	close(d.queue)
	d.wg.Wait()
	d.cancel()
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for e := range d.queue {
		for _, h := range d.manager.Matching(e.Type) {
			if err := d.executor.Run(d.ctx, h, e); err != nil {
				log.Printf("Hook error: %v", err)
			}
		}
	}
}
