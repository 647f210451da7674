package events

import (
	"context"
	"sync"
	"time"

	"github.com/straja-ai/soundlens/internal/redact"
)

// Sink consumes events (stdout, file, webhook).
type Sink interface {
	Name() string
	Deliver(context.Context, *Event) error
	Close(context.Context) error
}

// Metrics is a point-in-time copy of the emitter's delivery counters.
type Metrics struct {
	enqueued uint64
	dropped  uint64

	sinkSuccess map[string]uint64
	sinkFailure map[string]uint64
}

func (m Metrics) Enqueued() uint64                { return m.enqueued }
func (m Metrics) Dropped() uint64                 { return m.dropped }
func (m Metrics) SinkSuccess(name string) uint64 { return m.sinkSuccess[name] }
func (m Metrics) SinkFailure(name string) uint64 { return m.sinkFailure[name] }

// counters is the live, mutex-guarded form of Metrics.
type counters struct {
	mu sync.Mutex
	m  Metrics
}

func newCounters() *counters {
	return &counters{m: Metrics{
		sinkSuccess: make(map[string]uint64),
		sinkFailure: make(map[string]uint64),
	}}
}

func (c *counters) enqueued() {
	c.mu.Lock()
	c.m.enqueued++
	c.mu.Unlock()
}

func (c *counters) dropped() {
	c.mu.Lock()
	c.m.dropped++
	c.mu.Unlock()
}

func (c *counters) delivered(sink string, err error) {
	c.mu.Lock()
	if err != nil {
		c.m.sinkFailure[sink]++
	} else {
		c.m.sinkSuccess[sink]++
	}
	c.mu.Unlock()
}

func (c *counters) snapshot() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := Metrics{
		enqueued:    c.m.enqueued,
		dropped:     c.m.dropped,
		sinkSuccess: make(map[string]uint64, len(c.m.sinkSuccess)),
		sinkFailure: make(map[string]uint64, len(c.m.sinkFailure)),
	}
	for k, v := range c.m.sinkSuccess {
		out.sinkSuccess[k] = v
	}
	for k, v := range c.m.sinkFailure {
		out.sinkFailure[k] = v
	}
	return out
}

// EmitterConfig controls worker and queue sizing.
type EmitterConfig struct {
	QueueSize       int
	Workers         int
	ShutdownTimeout time.Duration
	// OnDrop runs for every event discarded because the queue was full or
	// the emitter was closed.
	OnDrop func()
}

// Emitter buffers events and fans them out to sinks from worker goroutines.
// Deliveries run under the emitter's own context, which Close cancels once
// the shutdown timeout has passed.
type Emitter struct {
	queue           chan *Event
	sinks           []Sink
	stats           *counters
	shutdownTimeout time.Duration
	onDrop          func()

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewEmitter starts background workers to deliver events to the provided sinks.
func NewEmitter(cfg EmitterConfig, sinks []Sink) *Emitter {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 2 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	em := &Emitter{
		queue:           make(chan *Event, cfg.QueueSize),
		sinks:           sinks,
		stats:           newCounters(),
		shutdownTimeout: cfg.ShutdownTimeout,
		onDrop:          cfg.OnDrop,
		ctx:             ctx,
		cancel:          cancel,
	}
	for i := 0; i < cfg.Workers; i++ {
		em.wg.Add(1)
		go em.worker()
	}
	return em
}

// Emit enqueues ev without blocking; when the queue is full the event is
// dropped and counted.
func (e *Emitter) Emit(_ context.Context, ev *Event) {
	if e == nil || ev == nil {
		return
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		e.drop()
		return
	}
	select {
	case e.queue <- ev:
		e.stats.enqueued()
	default:
		e.drop()
	}
}

func (e *Emitter) drop() {
	e.stats.dropped()
	if e.onDrop != nil {
		e.onDrop()
	}
}

// cancelGrace bounds the wait for workers after in-flight deliveries were
// canceled.
const cancelGrace = 500 * time.Millisecond

// Close stops accepting events and waits up to the shutdown timeout for the
// queue to drain. Deliveries still running after that are canceled before
// the sinks are closed.
func (e *Emitter) Close(ctx context.Context) {
	if e == nil {
		return
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.queue)
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	if ctx == nil {
		ctx = context.Background()
	}
	waitCtx, cancel := context.WithTimeout(ctx, e.shutdownTimeout)
	defer cancel()

	select {
	case <-done:
	case <-waitCtx.Done():
		redact.Logf("events: shutdown timeout reached, canceling undelivered events")
		e.cancel()
		select {
		case <-done:
		case <-time.After(cancelGrace):
		}
	}
	e.cancel()

	closeCtx, closeCancel := context.WithTimeout(context.Background(), cancelGrace)
	defer closeCancel()
	for _, s := range e.sinks {
		if err := s.Close(closeCtx); err != nil {
			redact.Logf("events: sink %s close error: %v", s.Name(), err)
		}
	}
}

// MetricsSnapshot copies the current counters.
func (e *Emitter) MetricsSnapshot() Metrics {
	if e == nil || e.stats == nil {
		return Metrics{}
	}
	return e.stats.snapshot()
}

func (e *Emitter) worker() {
	defer e.wg.Done()
	for ev := range e.queue {
		for _, s := range e.sinks {
			err := s.Deliver(e.ctx, ev)
			e.stats.delivered(s.Name(), err)
			if err != nil {
				redact.Logf("events: sink %s failed: %v", s.Name(), err)
			}
		}
	}
}
