package linkz

import (
	"sync"
)

// IDPool hands out non-zero 64-bit ids generated ahead of demand, keeping
// crypto/rand off the request path. Zero is never returned: B3 treats an
// all-zero id as absent.
type IDPool struct {
	generate func() uint64
	ready    chan uint64
	stop     chan struct{}
	stopOnce sync.Once
}

// NewIDPool starts a pool holding up to capacity ids from generate.
// generate must be safe for concurrent use.
func NewIDPool(capacity int, generate func() uint64) *IDPool {
	p := &IDPool{
		generate: generate,
		ready:    make(chan uint64, capacity),
		stop:     make(chan struct{}),
	}
	go p.fill()
	return p
}

// Get returns a pooled id, or a freshly generated one when the pool has run
// dry. It keeps working after Close.
func (p *IDPool) Get() uint64 {
	select {
	case id := <-p.ready:
		return id
	default:
		return p.next()
	}
}

func (p *IDPool) next() uint64 {
	for {
		if id := p.generate(); id != 0 {
			return id
		}
	}
}

func (p *IDPool) fill() {
	for {
		id := p.next()
		select {
		case p.ready <- id:
		case <-p.stop:
			return
		}
	}
}

// Close stops background generation. Safe to call more than once.
func (p *IDPool) Close() {
	p.stopOnce.Do(func() { close(p.stop) })
}
