package buffer

import (
	"sync"
	"sync/atomic"
)

var defaultSizes = []int{
	64,
	256,
	1024,
	4096,
	16384,
	65536,
}

// Pool recycles blocks in power-of-four size classes.
type Pool struct {
	pools     []*sync.Pool
	sizes     []int
	gets      atomic.Uint64
	puts      atomic.Uint64
	allocates atomic.Uint64
}

// PoolStats is a snapshot of pool counters.
type PoolStats struct {
	Gets      uint64
	Puts      uint64
	Allocates uint64
}

func NewPool() *Pool {
	p := &Pool{
		pools: make([]*sync.Pool, len(defaultSizes)),
		sizes: defaultSizes,
	}
	for i, size := range defaultSizes {
		p.pools[i] = &sync.Pool{
			New: func() any {
				p.allocates.Add(1)
				b := make([]byte, size)
				return &b
			},
		}
	}
	return p
}

// New returns a zeroed pooled buffer of exactly size bytes.
func (p *Pool) New(size int) *Buffer {
	if p == nil {
		return New(size)
	}
	if size < 0 {
		size = 0
	}
	p.gets.Add(1)
	for i, s := range p.sizes {
		if s >= size {
			bp := p.pools[i].Get().(*[]byte)
			data := (*bp)[:size]
			clear(data)
			return newHandle(&block{data: data, pool: p})
		}
	}
	p.allocates.Add(1)
	return newHandle(&block{data: make([]byte, size)})
}

func (p *Pool) put(data []byte) {
	c := cap(data)
	for i, s := range p.sizes {
		if s == c {
			p.puts.Add(1)
			data = data[:c]
			p.pools[i].Put(&data)
			return
		}
	}
}

func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Gets:      p.gets.Load(),
		Puts:      p.puts.Load(),
		Allocates: p.allocates.Load(),
	}
}
