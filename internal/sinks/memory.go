package sinks

import (
	"sync"

	"github.com/danmuck/telectl/internal/protocol"
)

// Memory keeps clones of the most recent packets.
type Memory struct {
	mu    sync.Mutex
	limit int
	ring  []*protocol.Packet
	next  int
	total uint64
}

func NewMemory(limit int) *Memory {
	if limit <= 0 {
		limit = 64
	}
	return &Memory{limit: limit}
}

func (m *Memory) Handle(p *protocol.Packet) error {
	c := p.Clone()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total++
	if len(m.ring) < m.limit {
		m.ring = append(m.ring, c)
		return nil
	}
	m.ring[m.next].Release()
	m.ring[m.next] = c
	m.next = (m.next + 1) % m.limit
	return nil
}

// Snapshot returns clones of the kept packets, oldest first.
func (m *Memory) Snapshot() []*protocol.Packet {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*protocol.Packet, 0, len(m.ring))
	for i := range m.ring {
		out = append(out, m.ring[(m.next+i)%len(m.ring)].Clone())
	}
	return out
}

// Total counts every packet seen, including evicted ones.
func (m *Memory) Total() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.ring {
		p.Release()
	}
	m.ring, m.next = nil, 0
	return nil
}
