// Package buffer owns reference-counted byte regions shared between the
// wire codec and decoded packet payloads.
//
// Every *Buffer and *View is one strong reference. The backing block is
// recycled (or dropped) only after the last reference is released, so a
// payload View taken during decode stays valid after the caller releases the
// receive buffer it came from.
package buffer

import (
	"errors"
	"fmt"
	"sync/atomic"
)

var (
	ErrOutOfRange = errors.New("buffer: view out of range")
	ErrReleased   = errors.New("buffer: use after release")
)

type block struct {
	data []byte
	refs atomic.Int64
	pool *Pool
}

func (b *block) release() {
	if b.refs.Add(-1) != 0 {
		return
	}
	data := b.data
	b.data = nil
	if b.pool != nil {
		b.pool.put(data)
	}
}

// Buffer is one handle on a shared block.
type Buffer struct {
	blk      *block
	released atomic.Bool
}

// New allocates a zeroed buffer of exactly size bytes.
func New(size int) *Buffer {
	if size < 0 {
		size = 0
	}
	return newHandle(&block{data: make([]byte, size)})
}

// Wrap takes ownership of b without copying. The caller must not write to b
// afterwards.
func Wrap(b []byte) *Buffer {
	return newHandle(&block{data: b})
}

// Copy returns a new buffer holding a private copy of b.
func Copy(b []byte) *Buffer {
	buf := New(len(b))
	copy(buf.blk.data, b)
	return buf
}

func newHandle(blk *block) *Buffer {
	blk.refs.Store(1)
	return &Buffer{blk: blk}
}

// Bytes returns the backing bytes, or nil once this handle is released.
func (b *Buffer) Bytes() []byte {
	if b == nil || b.released.Load() {
		return nil
	}
	return b.blk.data
}

func (b *Buffer) Len() int {
	return len(b.Bytes())
}

// Refs reports the number of live references on the shared block.
func (b *Buffer) Refs() int64 {
	if b == nil {
		return 0
	}
	return b.blk.refs.Load()
}

// Retain returns a new handle sharing the same block.
func (b *Buffer) Retain() *Buffer {
	if b == nil {
		return nil
	}
	if b.released.Load() {
		panic(ErrReleased)
	}
	b.blk.refs.Add(1)
	return &Buffer{blk: b.blk}
}

// Release drops this handle's reference. Calling it twice is a no-op.
func (b *Buffer) Release() {
	if b == nil {
		return
	}
	if !b.released.CompareAndSwap(false, true) {
		return
	}
	b.blk.release()
}

// View returns a zero-copy window of n bytes at off that keeps the block alive.
func (b *Buffer) View(off, n int) (*View, error) {
	if b == nil || b.released.Load() {
		return nil, ErrReleased
	}
	if off < 0 || n < 0 || off > len(b.blk.data) || n > len(b.blk.data)-off {
		return nil, fmt.Errorf("%w: off=%d n=%d len=%d", ErrOutOfRange, off, n, len(b.blk.data))
	}
	return &View{buf: b.Retain(), off: off, n: n}, nil
}

// View is a zero-copy slice of a Buffer holding its own reference.
type View struct {
	buf *Buffer
	off int
	n   int
}

// Bytes returns the viewed bytes, or nil once the view is released.
func (v *View) Bytes() []byte {
	if v == nil {
		return nil
	}
	data := v.buf.Bytes()
	if data == nil {
		return nil
	}
	return data[v.off : v.off+v.n : v.off+v.n]
}

func (v *View) Len() int {
	if v == nil {
		return 0
	}
	return v.n
}

// Shares reports whether v aliases the same block as b.
func (v *View) Shares(b *Buffer) bool {
	return v != nil && b != nil && v.buf.blk == b.blk
}

// Retain returns another view of the same window.
func (v *View) Retain() *View {
	if v == nil {
		return nil
	}
	return &View{buf: v.buf.Retain(), off: v.off, n: v.n}
}

func (v *View) Release() {
	if v == nil {
		return
	}
	v.buf.Release()
}
