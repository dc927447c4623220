package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/telectl/internal/protocol/buffer"
)

const (
	Magic     uint32 = 0x54454C31 // "TEL1"
	Version   uint16 = 1
	HeaderLen        = 16

	// FlagBigEndian marks a body encoded with big endian packet fields.
	FlagBigEndian uint16 = 0x01
)

var (
	ErrShortHeader        = errors.New("frame: short header")
	ErrBadMagic           = errors.New("frame: bad magic")
	ErrUnsupportedVersion = errors.New("frame: unsupported version")
	ErrBodyTooLarge       = errors.New("frame: body too large")
	ErrShortBody          = errors.New("frame: short body")
)

// Header precedes every encoded packet on a stream or in a file.
type Header struct {
	Magic    uint32
	Version  uint16
	Flags    uint16
	Sequence uint32
	BodyLen  uint32
}

// Frame is one header plus the encoded packet it carries. Body is owned by
// the frame; call Release when done.
type Frame struct {
	Header Header
	Body   *buffer.Buffer
}

func (f Frame) Release() {
	f.Body.Release()
}

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxBodyBytes uint32
}

func DefaultLimits() Limits {
	return Limits{MaxBodyBytes: 1 << 20}
}

// ReadFrame reads one frame from r into a buffer taken from pool. A stream
// that ends cleanly between frames returns io.EOF.
func ReadFrame(r io.Reader, pool *buffer.Pool, limits Limits) (Frame, error) {
	var fixed [HeaderLen]byte
	if n, err := io.ReadFull(r, fixed[:]); err != nil {
		if errors.Is(err, io.EOF) && n == 0 {
			return Frame{}, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, ErrShortHeader
		}
		return Frame{}, err
	}

	h := DecodeHeader(fixed)
	if h.Magic != Magic {
		return Frame{}, fmt.Errorf("%w: 0x%08x", ErrBadMagic, h.Magic)
	}
	if h.Version != Version {
		return Frame{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}
	if limits.MaxBodyBytes > 0 && h.BodyLen > limits.MaxBodyBytes {
		return Frame{}, fmt.Errorf("%w: %d > %d", ErrBodyTooLarge, h.BodyLen, limits.MaxBodyBytes)
	}

	body := pool.New(int(h.BodyLen))
	if h.BodyLen > 0 {
		if _, err := io.ReadFull(r, body.Bytes()); err != nil {
			body.Release()
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return Frame{}, ErrShortBody
			}
			return Frame{}, err
		}
	}
	return Frame{Header: h, Body: body}, nil
}

// WriteFrame writes body behind a header carrying seq and flags.
func WriteFrame(w io.Writer, seq uint32, flags uint16, body []byte, limits Limits) error {
	if limits.MaxBodyBytes > 0 && uint64(len(body)) > uint64(limits.MaxBodyBytes) {
		return fmt.Errorf("%w: %d > %d", ErrBodyTooLarge, len(body), limits.MaxBodyBytes)
	}
	h := Header{
		Magic:    Magic,
		Version:  Version,
		Flags:    flags,
		Sequence: seq,
		BodyLen:  uint32(len(body)),
	}
	hb := EncodeHeader(h)
	if _, err := w.Write(hb[:]); err != nil {
		return err
	}
	if len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			return err
		}
	}
	return nil
}

func EncodeHeader(h Header) [HeaderLen]byte {
	var buf [HeaderLen]byte
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	binary.BigEndian.PutUint16(buf[4:6], h.Version)
	binary.BigEndian.PutUint16(buf[6:8], h.Flags)
	binary.BigEndian.PutUint32(buf[8:12], h.Sequence)
	binary.BigEndian.PutUint32(buf[12:16], h.BodyLen)
	return buf
}

func DecodeHeader(b [HeaderLen]byte) Header {
	return Header{
		Magic:    binary.BigEndian.Uint32(b[0:4]),
		Version:  binary.BigEndian.Uint16(b[4:6]),
		Flags:    binary.BigEndian.Uint16(b[6:8]),
		Sequence: binary.BigEndian.Uint32(b[8:12]),
		BodyLen:  binary.BigEndian.Uint32(b[12:16]),
	}
}

// OrderFlags returns the flag bits describing a codec byte order.
func OrderFlags(order binary.ByteOrder) uint16 {
	if order == binary.BigEndian {
		return FlagBigEndian
	}
	return 0
}

// ByteOrder returns the packet byte order a frame was written with.
func (h Header) ByteOrder() binary.ByteOrder {
	if h.Flags&FlagBigEndian != 0 {
		return binary.BigEndian
	}
	return binary.LittleEndian
}
