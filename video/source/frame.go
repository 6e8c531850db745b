package source

import (
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

// Frame is a published, immutable snapshot of a source's pixels. Frames are
// reference counted: the holder of a reference must call Release exactly once,
// and the pixels are closed when the last reference goes away.
type Frame struct {
	Pixels Pixels
	// Seq increases by one for every frame a fetcher publishes.
	Seq  uint64
	Time time.Time

	refs atomic.Int32
}

// NewFrame wraps p in a frame holding a single reference.
func NewFrame(p Pixels, seq uint64) *Frame {
	f := &Frame{
		Pixels: p,
		Seq:    seq,
		Time:   time.Now(),
	}
	f.refs.Store(1)
	return f
}

// Retain adds a reference and returns f for convenience.
func (f *Frame) Retain() *Frame {
	if f.refs.Add(1) <= 1 {
		panic("retain of released frame")
	}
	return f
}

// Release drops a reference, closing the pixels when none remain.
func (f *Frame) Release() {
	switch n := f.refs.Add(-1); {
	case n == 0:
		if err := f.Pixels.Close(); err != nil {
			log.Errorf("Failed to close frame %d: %v", f.Seq, err)
		}
	case n < 0:
		panic("frame released too many times")
	}
}
