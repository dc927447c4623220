package protocol

import (
	"fmt"

	"github.com/danmuck/telectl/internal/protocol/buffer"
	"github.com/danmuck/telectl/internal/protocol/schema"
)

// Packet is one measurement: a catalog message type, a timestamp in seconds
// and exactly MessageType.PayloadSize payload bytes. Payload is nil iff the
// payload size is zero.
//
// Payload may alias a larger receive buffer. A Packet holds a strong
// reference to that buffer until Release is called.
type Packet struct {
	MessageType schema.MessageType
	Timestamp   uint64
	Payload     *buffer.View
}

// NewPacket builds a packet that owns a private copy of payload.
func NewPacket(mt schema.MessageType, timestamp uint64, payload []byte) (*Packet, error) {
	if len(payload) != mt.PayloadSize {
		return nil, fmt.Errorf("%w: %s wants %d bytes, got %d", ErrSchemaMismatch, mt.Type, mt.PayloadSize, len(payload))
	}
	p := &Packet{MessageType: mt.Clone(), Timestamp: timestamp}
	if mt.PayloadSize == 0 {
		return p, nil
	}
	buf := buffer.Copy(payload)
	view, err := buf.View(0, len(payload))
	buf.Release()
	if err != nil {
		return nil, err
	}
	p.Payload = view
	return p, nil
}

// PayloadBytes returns the payload without copying, or nil when absent.
func (p *Packet) PayloadBytes() []byte {
	if p == nil {
		return nil
	}
	return p.Payload.Bytes()
}

// Endpoints returns the packet's endpoint list in wire order.
func (p *Packet) Endpoints() []schema.Endpoint {
	if p == nil {
		return nil
	}
	return p.MessageType.Endpoints
}

// Retain returns a second packet sharing this packet's payload reference.
// Handlers that keep a packet beyond their call must retain it.
func (p *Packet) Retain() *Packet {
	if p == nil {
		return nil
	}
	return &Packet{
		MessageType: p.MessageType.Clone(),
		Timestamp:   p.Timestamp,
		Payload:     p.Payload.Retain(),
	}
}

// Release drops the packet's payload reference.
func (p *Packet) Release() {
	if p == nil {
		return
	}
	p.Payload.Release()
}

// Clone returns a deep copy that shares no memory with p.
func (p *Packet) Clone() *Packet {
	if p == nil {
		return nil
	}
	out := &Packet{
		MessageType: p.MessageType.Clone(),
		Timestamp:   p.Timestamp,
	}
	if data := p.PayloadBytes(); data != nil {
		buf := buffer.Copy(data)
		out.Payload, _ = buf.View(0, len(data))
		buf.Release()
	}
	return out
}
