package buffer

import (
	"errors"
	"sync"
	"testing"
)

func TestNewIsZeroedExactSize(t *testing.T) {
	b := New(13)
	if b.Len() != 13 {
		t.Fatalf("len got=%d", b.Len())
	}
	for i, v := range b.Bytes() {
		if v != 0 {
			t.Fatalf("byte %d not zero: %x", i, v)
		}
	}
}

func TestViewOutlivesOriginalHandle(t *testing.T) {
	b := New(8)
	copy(b.Bytes(), []byte{1, 2, 3, 4, 5, 6, 7, 8})

	v, err := b.View(4, 4)
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if b.Refs() != 2 {
		t.Fatalf("refs got=%d want=2", b.Refs())
	}
	b.Release()
	if b.Bytes() != nil {
		t.Fatalf("released handle still exposes bytes")
	}
	got := v.Bytes()
	if len(got) != 4 || got[0] != 5 || got[3] != 8 {
		t.Fatalf("view bytes after release: %v", got)
	}
	v.Release()
	if v.Bytes() != nil {
		t.Fatalf("released view still exposes bytes")
	}
}

func TestViewIsZeroCopy(t *testing.T) {
	b := New(4)
	v, err := b.View(1, 2)
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	defer v.Release()
	b.Bytes()[1] = 0xAB
	if v.Bytes()[0] != 0xAB {
		t.Fatalf("view does not alias buffer")
	}
	if !v.Shares(b) {
		t.Fatalf("expected shared block")
	}
	if cap(v.Bytes()) != 2 {
		t.Fatalf("view capacity leaks past window: %d", cap(v.Bytes()))
	}
}

func TestViewBounds(t *testing.T) {
	b := New(4)
	if _, err := b.View(3, 2); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	if _, err := b.View(-1, 1); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	b.Release()
	if _, err := b.View(0, 1); !errors.Is(err, ErrReleased) {
		t.Fatalf("expected ErrReleased, got %v", err)
	}
}

func TestReleaseIsIdempotentPerHandle(t *testing.T) {
	b := New(2)
	other := b.Retain()
	b.Release()
	b.Release()
	if other.Refs() != 1 {
		t.Fatalf("double release dropped a foreign reference: refs=%d", other.Refs())
	}
	if other.Len() != 2 {
		t.Fatalf("surviving handle lost its bytes")
	}
	other.Release()
}

func TestRetainAfterReleasePanics(t *testing.T) {
	b := New(1)
	b.Release()
	defer func() {
		if r := recover(); r != ErrReleased {
			t.Fatalf("expected ErrReleased panic, got %v", r)
		}
	}()
	b.Retain()
}

func TestPoolRecyclesOnLastRelease(t *testing.T) {
	p := NewPool()
	b := p.New(10)
	copy(b.Bytes(), []byte("abcdefghij"))
	v, err := b.View(0, 10)
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	b.Release()
	if got := p.Stats().Puts; got != 0 {
		t.Fatalf("block recycled while a view was alive: puts=%d", got)
	}
	if string(v.Bytes()) != "abcdefghij" {
		t.Fatalf("view corrupted: %q", v.Bytes())
	}
	v.Release()
	if got := p.Stats().Puts; got != 1 {
		t.Fatalf("puts got=%d want=1", got)
	}

	again := p.New(10)
	defer again.Release()
	for i, c := range again.Bytes() {
		if c != 0 {
			t.Fatalf("pooled buffer not zeroed at %d", i)
		}
	}
}

func TestPoolOversizedAllocation(t *testing.T) {
	p := NewPool()
	b := p.New(1 << 20)
	if b.Len() != 1<<20 {
		t.Fatalf("len got=%d", b.Len())
	}
	b.Release()
	if p.Stats().Puts != 0 {
		t.Fatalf("oversized block should not be pooled")
	}
}

func TestConcurrentRetainRelease(t *testing.T) {
	p := NewPool()
	b := p.New(32)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		h := b.Retain()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				v, err := h.View(0, 8)
				if err != nil {
					t.Errorf("view: %v", err)
					return
				}
				_ = v.Bytes()
				v.Release()
			}
			h.Release()
		}()
	}
	wg.Wait()
	if b.Refs() != 1 {
		t.Fatalf("refs got=%d want=1", b.Refs())
	}
	b.Release()
	if p.Stats().Puts != 1 {
		t.Fatalf("expected exactly one recycle, got %d", p.Stats().Puts)
	}
}
