package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/danmuck/telectl/internal/protocol/buffer"
	"github.com/danmuck/telectl/internal/protocol/schema"
)

const (
	typeSize         = 4
	payloadSizeSize  = 4
	timestampSize    = 8
	numEndpointsSize = 4

	// EndpointSize is the width of one endpoint table entry.
	EndpointSize = 4
	// HeaderSize is the fixed part of every encoded packet.
	HeaderSize = typeSize + payloadSizeSize + timestampSize + numEndpointsSize
)

// Codec encodes and decodes packets in one byte order. The zero value uses
// little endian and unpooled buffers.
type Codec struct {
	Order binary.ByteOrder
	Pool  *buffer.Pool
}

// NewCodec returns a codec for order backed by a fresh buffer pool.
func NewCodec(order binary.ByteOrder) Codec {
	return Codec{Order: order, Pool: buffer.NewPool()}
}

// ByteOrder returns the effective byte order.
func (c Codec) ByteOrder() binary.ByteOrder {
	return c.order()
}

func (c Codec) order() binary.ByteOrder {
	if c.Order == nil {
		return binary.LittleEndian
	}
	return c.Order
}

// PacketSize returns the encoded length of p.
func PacketSize(p *Packet) int {
	return HeaderSize + p.MessageType.NumEndpoints()*EndpointSize + p.MessageType.PayloadSize
}

// EncodeInto writes p at the start of dst and returns the number of bytes
// written. dst must hold at least PacketSize(p) bytes.
func (c Codec) EncodeInto(p *Packet, dst *buffer.Buffer) (int, error) {
	if p == nil || dst == nil {
		return 0, ErrNullInput
	}
	need := PacketSize(p)
	out := dst.Bytes()
	if len(out) < need {
		return 0, fmt.Errorf("%w: need %d bytes, have %d", ErrSize, need, len(out))
	}
	payload := p.PayloadBytes()
	if p.MessageType.PayloadSize > 0 && payload == nil {
		return 0, fmt.Errorf("%w: payload missing for %s", ErrNullInput, p.MessageType.Type)
	}
	if len(payload) != p.MessageType.PayloadSize {
		return 0, fmt.Errorf("%w: payload has %d bytes, header says %d", ErrSchemaMismatch, len(payload), p.MessageType.PayloadSize)
	}

	order := c.order()
	off := 0
	order.PutUint32(out[off:], uint32(p.MessageType.Type))
	off += typeSize
	order.PutUint32(out[off:], uint32(p.MessageType.PayloadSize))
	off += payloadSizeSize
	order.PutUint64(out[off:], p.Timestamp)
	off += timestampSize
	order.PutUint32(out[off:], uint32(p.MessageType.NumEndpoints()))
	off += numEndpointsSize
	for _, ep := range p.MessageType.Endpoints {
		order.PutUint32(out[off:], uint32(ep))
		off += EndpointSize
	}
	off += copy(out[off:], payload)
	return off, nil
}

// Encode returns a new buffer of exactly PacketSize(p) bytes holding p.
func (c Codec) Encode(p *Packet) (*buffer.Buffer, error) {
	if p == nil {
		return nil, ErrNullInput
	}
	buf := c.Pool.New(PacketSize(p))
	if _, err := c.EncodeInto(p, buf); err != nil {
		buf.Release()
		return nil, err
	}
	return buf, nil
}

// Decode parses buf into a packet whose payload aliases buf. The caller may
// release buf right away; the packet keeps the memory alive until it is
// released. Any malformed input returns a nil packet.
func (c Codec) Decode(buf *buffer.Buffer) (*Packet, error) {
	if buf == nil {
		return nil, ErrNullInput
	}
	data := buf.Bytes()
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes, header needs %d", ErrTruncated, len(data), HeaderSize)
	}

	order := c.order()
	off := 0
	typeID := order.Uint32(data[off:])
	off += typeSize
	payloadSize := order.Uint32(data[off:])
	off += payloadSizeSize
	timestamp := order.Uint64(data[off:])
	off += timestampSize
	numEndpoints := order.Uint32(data[off:])
	off += numEndpointsSize

	need := uint64(numEndpoints)*EndpointSize + uint64(payloadSize)
	if remaining := uint64(len(data) - off); remaining < need {
		return nil, fmt.Errorf("%w: body needs %d bytes, have %d", ErrTruncated, need, remaining)
	}

	mt := schema.MessageType{
		Type:        schema.DataType(typeID),
		PayloadSize: int(payloadSize),
	}
	if numEndpoints > 0 {
		mt.Endpoints = make([]schema.Endpoint, numEndpoints)
		for i := range mt.Endpoints {
			mt.Endpoints[i] = schema.Endpoint(order.Uint32(data[off:]))
			off += EndpointSize
		}
	}

	p := &Packet{MessageType: mt, Timestamp: timestamp}
	if payloadSize > 0 {
		view, err := buf.View(off, int(payloadSize))
		if err != nil {
			return nil, err
		}
		p.Payload = view
	}
	return p, nil
}

// DecodeBytes decodes b without copying. b must not be modified while the
// returned packet is alive.
func (c Codec) DecodeBytes(b []byte) (*Packet, error) {
	buf := buffer.Wrap(b)
	defer buf.Release()
	return c.Decode(buf)
}

// Encode uses the zero Codec.
func Encode(p *Packet) (*buffer.Buffer, error) {
	return Codec{}.Encode(p)
}

// Decode uses the zero Codec.
func Decode(buf *buffer.Buffer) (*Packet, error) {
	return Codec{}.Decode(buf)
}

// DecodeBytes uses the zero Codec.
func DecodeBytes(b []byte) (*Packet, error) {
	return Codec{}.DecodeBytes(b)
}
