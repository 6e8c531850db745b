package video

import (
	"sync"
)

// Buffer is a fixed capacity FIFO. Putting into a full buffer evicts the
// oldest element first. All methods are safe for concurrent use.
type Buffer[T any] struct {
	// OnEvict, if set, receives every element dropped to make room.
	OnEvict func(T)

	// buffer contains elements, oldest first.
	buffer []T
	size   int
	l      sync.Mutex
}

func NewBuffer[T any](size int) *Buffer[T] {
	if size < 1 {
		size = 1
	}
	return &Buffer[T]{
		buffer: make([]T, 0, size),
		size:   size,
	}
}

// Put appends v, evicting the oldest element if the buffer is full.
func (b *Buffer[T]) Put(v T) {
	b.l.Lock()
	var evicted T
	full := len(b.buffer) >= b.size
	if full {
		evicted = b.buffer[0]
		// Shift in place to keep the backing array bounded.
		copy(b.buffer, b.buffer[1:])
		b.buffer[len(b.buffer)-1] = v
	} else {
		b.buffer = append(b.buffer, v)
	}
	b.l.Unlock()

	if full && b.OnEvict != nil {
		b.OnEvict(evicted)
	}
}

// Get removes and returns the oldest element. ok is false if the buffer is
// empty.
func (b *Buffer[T]) Get() (v T, ok bool) {
	b.l.Lock()
	defer b.l.Unlock()
	if len(b.buffer) == 0 {
		return v, false
	}
	v = b.buffer[0]
	var zero T
	b.buffer[0] = zero
	b.buffer = append(b.buffer[:0], b.buffer[1:]...)
	return v, true
}

// Peek returns the element at index i without removing it. Negative indices
// count from the newest element, so Peek(-1) is the most recent Put.
func (b *Buffer[T]) Peek(i int) (v T, ok bool) {
	b.l.Lock()
	defer b.l.Unlock()
	if i < 0 {
		i += len(b.buffer)
	}
	if i < 0 || i >= len(b.buffer) {
		return v, false
	}
	return b.buffer[i], true
}

// Drain removes and returns every element, oldest first.
func (b *Buffer[T]) Drain() []T {
	b.l.Lock()
	defer b.l.Unlock()
	out := make([]T, len(b.buffer))
	copy(out, b.buffer)
	var zero T
	for i := range b.buffer {
		b.buffer[i] = zero
	}
	b.buffer = b.buffer[:0]
	return out
}

func (b *Buffer[T]) Len() int {
	b.l.Lock()
	defer b.l.Unlock()
	return len(b.buffer)
}

func (b *Buffer[T]) Cap() int {
	return b.size
}

func (b *Buffer[T]) IsEmpty() bool {
	return b.Len() == 0
}

func (b *Buffer[T]) IsFull() bool {
	return b.Len() == b.size
}
