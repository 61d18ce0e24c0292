package pacing

import (
	"fmt"
	"sync/atomic"
)

// Pool hands out loops round-robin so that independent playback sessions
// spread across a fixed number of pacing goroutines.
type Pool struct {
	loops []*Loop
	next  atomic.Uint64
}

// NewPool creates size loops named "<prefix>-<n>".
func NewPool(prefix string, size int) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("loop pool size must be positive, got %d", size)
	}
	p := &Pool{loops: make([]*Loop, size)}
	for i := range p.loops {
		p.loops[i] = NewLoop(fmt.Sprintf("%s-%d", prefix, i))
	}
	return p, nil
}

// Next returns the next loop in round-robin order.
func (p *Pool) Next() *Loop {
	n := p.next.Add(1) - 1
	return p.loops[n%uint64(len(p.loops))]
}

// Size returns the number of loops.
func (p *Pool) Size() int {
	return len(p.loops)
}

// Close stops every loop in the pool.
func (p *Pool) Close() {
	for _, l := range p.loops {
		l.Close()
	}
}
