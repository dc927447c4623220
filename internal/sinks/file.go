package sinks

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/danmuck/telectl/internal/protocol"
	"github.com/danmuck/telectl/internal/protocol/buffer"
	"github.com/danmuck/telectl/internal/protocol/frame"
)

// FileSink appends every packet as a frame to a file, the way the board
// writes its SD card log.
type FileSink struct {
	mu    sync.Mutex
	f     *os.File
	w     *bufio.Writer
	codec protocol.Codec
	seq   uint32
}

func OpenFile(path string, codec protocol.Codec) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("sinks: open %s: %w", path, err)
	}
	return &FileSink{f: f, w: bufio.NewWriter(f), codec: codec}, nil
}

func (s *FileSink) Handle(p *protocol.Packet) error {
	buf, err := s.codec.Encode(p)
	if err != nil {
		return err
	}
	defer buf.Release()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return os.ErrClosed
	}
	s.seq++
	if err := frame.WriteFrame(s.w, s.seq, frame.OrderFlags(s.codec.ByteOrder()), buf.Bytes(), frame.DefaultLimits()); err != nil {
		return err
	}
	return s.w.Flush()
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := errors.Join(s.w.Flush(), s.f.Sync(), s.f.Close())
	s.f = nil
	return err
}

// ReadFile replays a frame file, calling fn with each frame header and its
// decoded packet in order. The packet is released after fn returns.
func ReadFile(path string, fn func(h frame.Header, p *protocol.Packet) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("sinks: open %s: %w", path, err)
	}
	defer f.Close()
	return ReadFrames(bufio.NewReader(f), fn)
}

// ReadFrames is ReadFile over any reader.
func ReadFrames(r io.Reader, fn func(h frame.Header, p *protocol.Packet) error) error {
	pool := buffer.NewPool()
	for {
		fr, err := frame.ReadFrame(r, pool, frame.DefaultLimits())
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		codec := protocol.Codec{Order: fr.Header.ByteOrder(), Pool: pool}
		p, err := codec.Decode(fr.Body)
		fr.Release()
		if err != nil {
			return fmt.Errorf("sinks: frame %d: %w", fr.Header.Sequence, err)
		}
		err = fn(fr.Header, p)
		p.Release()
		if err != nil {
			return err
		}
	}
}
