package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/danmuck/telectl/internal/protocol/schema"
)

// Scalar is any fixed-width number a payload can be made of.
type Scalar interface {
	~int8 | ~int16 | ~int32 | ~int64 |
		~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// EncodeValues lays out vals in order as a payload.
func EncodeValues[T Scalar](order binary.ByteOrder, vals []T) ([]byte, error) {
	out := make([]byte, 0, len(vals)*binary.Size(*new(T)))
	return binary.Append(out, order, vals)
}

// DecodeValues copies p's payload out as a slice of T. The payload length
// must be a multiple of T's width.
func DecodeValues[T Scalar](order binary.ByteOrder, p *Packet) ([]T, error) {
	if p == nil {
		return nil, ErrNullInput
	}
	data := p.PayloadBytes()
	if data == nil {
		if p.MessageType.PayloadSize == 0 {
			return []T{}, nil
		}
		return nil, fmt.Errorf("%w: payload missing", ErrNullInput)
	}
	width := binary.Size(*new(T))
	if len(data)%width != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrSchemaMismatch, len(data), width)
	}
	out := make([]T, len(data)/width)
	if _, err := binary.Decode(data, order, out); err != nil {
		return nil, err
	}
	return out, nil
}

// DecodeValue returns the payload as a single T; the payload must be exactly
// one element wide.
func DecodeValue[T Scalar](order binary.ByteOrder, p *Packet) (T, error) {
	var zero T
	vals, err := DecodeValues[T](order, p)
	if err != nil {
		return zero, err
	}
	if len(vals) != 1 {
		return zero, fmt.Errorf("%w: payload holds %d elements, want 1", ErrSchemaMismatch, len(vals))
	}
	return vals[0], nil
}

// Bytes returns a private copy of p's payload.
func (p *Packet) Bytes() []byte {
	data := p.PayloadBytes()
	if data == nil {
		return nil
	}
	return append([]byte(nil), data...)
}

// InferKind returns the element kind the catalog declares for p's type,
// falling back to the width payload_size / elements when the catalog does
// not name one.
func InferKind(catalog *schema.Catalog, p *Packet) schema.ElementKind {
	if catalog == nil || p == nil {
		return schema.KindBytes
	}
	entry, err := catalog.Entry(p.MessageType.Type)
	if err != nil {
		return schema.KindBytes
	}
	if entry.Kind != schema.KindBytes {
		return entry.Kind
	}
	elems := entry.Elements
	if elems == 0 {
		elems = 1
	}
	switch entry.PayloadSize() / elems {
	case 1:
		return schema.KindU8
	case 2:
		return schema.KindU16
	case 4:
		return schema.KindF32
	case 8:
		return schema.KindF64
	default:
		return schema.KindBytes
	}
}
