// Package sourcetest provides in-memory capture sources for tests.
package sourcetest

import (
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"camstream/video/source"
)

// Pixels is a fake pixel buffer that records how often it was closed.
type Pixels struct {
	W, H, C int
	// Index is the position of the frame in its capture.
	Index int
	// Text is set on placeholder frames.
	Text string

	closed atomic.Int32
}

func NewPixels(w, h int) *Pixels {
	return &Pixels{W: w, H: h, C: 3}
}

func (p *Pixels) Size() image.Point { return image.Pt(p.W, p.H) }
func (p *Pixels) Channels() int     { return p.C }

func (p *Pixels) Close() error {
	p.closed.Add(1)
	return nil
}

// Closed returns the number of Close calls.
func (p *Pixels) Closed() int {
	return int(p.closed.Load())
}

var (
	ErrOffline  = errors.New("sourcetest: source offline")
	ErrNoRewind = errors.New("sourcetest: rewind not supported")
)

// Opener hands out fake captures and counts how often it was asked to.
type Opener struct {
	// FPS, Size and FrameCount configure every capture opened.
	FPS        float64
	Size       image.Point
	FrameCount int
	// FailOpens makes the first n Open calls fail.
	FailOpens int
	// ReadLimit makes each capture fail every read after this many successful
	// ones. Zero means unlimited.
	ReadLimit int
	// OpenDelay is slept inside Open, widening races in tests.
	OpenDelay time.Duration

	mu       sync.Mutex
	opens    int
	offline  bool
	captures []*Capture
}

func (o *Opener) Open(src source.Source) (source.Capture, error) {
	if o.OpenDelay > 0 {
		time.Sleep(o.OpenDelay)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opens++
	if o.opens <= o.FailOpens || o.offline {
		return nil, ErrOffline
	}
	size := o.Size
	if size == (image.Point{}) {
		size = image.Pt(640, 480)
	}
	c := &Capture{
		Source:     src,
		opener:     o,
		fps:        o.FPS,
		size:       size,
		frameCount: o.FrameCount,
		readLimit:  o.ReadLimit,
	}
	o.captures = append(o.captures, c)
	return c, nil
}

// Opens returns the number of Open calls so far, failed ones included.
func (o *Opener) Opens() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens
}

// Captures returns every capture successfully opened.
func (o *Opener) Captures() []*Capture {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*Capture(nil), o.captures...)
}

// SetOffline makes opens and reads fail until cleared.
func (o *Opener) SetOffline(offline bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.offline = offline
}

func (o *Opener) isOffline() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.offline
}

// Capture is a fake capture producing numbered frames.
type Capture struct {
	Source source.Source

	opener     *Opener
	fps        float64
	size       image.Point
	frameCount int
	readLimit  int

	mu      sync.Mutex
	pos     int
	reads   int
	rewinds []int
	closed  bool
	emitted []*Pixels
}

func (c *Capture) Read() (source.Pixels, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.opener.isOffline() {
		return nil, false
	}
	if c.readLimit > 0 && c.reads >= c.readLimit {
		return nil, false
	}
	if c.frameCount > 0 && c.pos >= c.frameCount {
		return nil, false
	}
	c.reads++
	p := NewPixels(c.size.X, c.size.Y)
	p.Index = c.pos
	c.pos++
	c.emitted = append(c.emitted, p)
	return p, true
}

func (c *Capture) FPS() float64      { return c.fps }
func (c *Capture) Size() image.Point { return c.size }
func (c *Capture) FrameCount() int   { return c.frameCount }

func (c *Capture) Rewind() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frameCount == 0 {
		return ErrNoRewind
	}
	c.rewinds = append(c.rewinds, c.reads)
	c.pos = 0
	return nil
}

func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Reads returns the number of successful reads.
func (c *Capture) Reads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

// Rewinds returns, for each Rewind call, the number of reads done before it.
func (c *Capture) Rewinds() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.rewinds...)
}

// Emitted returns every pixel buffer handed out by Read.
func (c *Capture) Emitted() []*Pixels {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Pixels(nil), c.emitted...)
}

func (c *Capture) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
