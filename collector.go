package linkz

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collector is an in-memory Reporter that buffers finished spans until they
// are exported. Report never blocks the finishing goroutine: spans arriving
// while the intake queue is full are dropped and counted.
//
//nolint:govet // Field alignment optimized for readability over memory efficiency
type Collector struct {
	name     string
	intake   chan Span
	stop     chan struct{}
	stopped  chan struct{}
	mu       sync.Mutex
	spans    []Span
	dropped  atomic.Int64
	closed   atomic.Bool
	syncMode atomic.Bool
	once     sync.Once
}

// NewCollector starts a collector whose intake queue holds queueSize spans.
func NewCollector(name string, queueSize int) *Collector {
	c := &Collector{
		name:    name,
		intake:  make(chan Span, queueSize),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go c.run()
	return c
}

// Name returns the collector name.
func (c *Collector) Name() string {
	return c.name
}

func (c *Collector) run() {
	defer close(c.stopped)
	for {
		select {
		case span := <-c.intake:
			c.buffer(span)
		case <-c.stop:
			for {
				select {
				case span := <-c.intake:
					c.buffer(span)
				default:
					return
				}
			}
		}
	}
}

// Report queues span. Tags are copied because every handler of a finished
// span receives the same map.
func (c *Collector) Report(span Span) {
	if c.closed.Load() {
		c.dropped.Add(1)
		return
	}
	span.Tags = copyTags(span.Tags)

	if c.syncMode.Load() {
		c.buffer(span)
		return
	}
	select {
	case c.intake <- span:
	default:
		c.dropped.Add(1)
	}
}

func copyTags(tags map[Tag]string) map[Tag]string {
	if tags == nil {
		return nil
	}
	out := make(map[Tag]string, len(tags))
	for k, v := range tags {
		out[k] = v
	}
	return out
}

func (c *Collector) buffer(span Span) {
	c.mu.Lock()
	c.spans = append(c.spans, span)
	c.mu.Unlock()
}

// Export hands over every buffered span in report order and empties the
// buffer. It returns nil when nothing is buffered.
func (c *Collector) Export() []Span {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.spans
	c.spans = nil
	return out
}

// Trace returns the buffered spans of one trace without removing them.
func (c *Collector) Trace(id TraceID) []Span {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Span
	for _, span := range c.spans {
		if span.Context.TraceID == id {
			out = append(out, span)
		}
	}
	return out
}

// Count returns the number of buffered spans.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.spans)
}

// DroppedCount returns how many spans were refused, either because the
// intake queue was full or because the collector was closed.
func (c *Collector) DroppedCount() int64 {
	return c.dropped.Load()
}

// SetSyncMode buffers spans on the reporting goroutine, for deterministic tests.
func (c *Collector) SetSyncMode(sync bool) {
	c.syncMode.Store(sync)
}

// Reset discards buffered spans and zeroes the drop counter.
func (c *Collector) Reset() {
	c.mu.Lock()
	c.spans = nil
	c.mu.Unlock()
	c.dropped.Store(0)
}

// Close stops intake after draining whatever is already queued. Buffered
// spans stay exportable.
func (c *Collector) Close() {
	c.once.Do(func() {
		c.closed.Store(true)
		close(c.stop)
		select {
		case <-c.stopped:
		case <-time.After(100 * time.Millisecond):
		}
	})
}
