package video

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"camstream/metrics"
	"camstream/util"
	"camstream/video/source"
)

const (
	// DefaultFrameInterval is assumed when a source does not report its rate.
	DefaultFrameInterval = 33 * time.Millisecond
	DefaultRetryDelay    = time.Second
	// DefaultLoopMargin is how many frames before the end of a looping file
	// playback restarts. Decoders often truncate the last few frames.
	DefaultLoopMargin = 30
	DefaultBufferSize = 30

	// Sleep slightly less than the frame interval so the fetcher keeps up with
	// the source rather than drifting behind it.
	paceFactor  = 1.1
	stopTimeout = 5 * time.Second
)

var errNoFrame = errors.New("no frame after open")

// State is the acquisition state of a Fetcher.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateStreaming
	StateReconnecting
	// StateEnded is held by a non-looping file between reaching its end and
	// being reopened.
	StateEnded
	StateStopped
)

var stateNames = []string{"idle", "connecting", "streaming", "reconnecting", "ended", "stopped"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// FetcherListener is told about every state change of a Fetcher. It is called
// on the fetcher goroutine and must not block.
type FetcherListener interface {
	FetcherStateChanged(f *Fetcher, s State)
}

type FetcherOptions struct {
	// RetryDelay is waited after a failed open or read before reconnecting.
	RetryDelay time.Duration
	LoopMargin int

	// Buffered publishes frames into a bounded buffer instead of a single
	// slot. Current then peeks at the newest buffered frame and Next drains.
	Buffered   bool
	BufferSize int
}

func (o FetcherOptions) withDefaults() FetcherOptions {
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.LoopMargin <= 0 {
		o.LoopMargin = DefaultLoopMargin
	}
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}
	return o
}

// Fetcher owns the capture connection to one source and keeps its most recent
// frame available to any number of readers. It reconnects on failure and
// replays finished files until stopped, and never exits on its own.
type Fetcher struct {
	Source source.Source

	// Listeners must be set before Start.
	Listeners []FetcherListener

	opener source.Opener
	opts   FetcherOptions
	log    *log.Entry

	// mu guards the published frame, both in slot and buffered mode.
	mu      sync.Mutex
	current *source.Frame
	frames  *Buffer[*source.Frame]
	seq     uint64

	state      atomic.Int32
	interval   atomic.Int64
	position   atomic.Int64
	frameCount atomic.Int64
	captured   atomic.Uint64
	reconnects atomic.Uint64
	viewers    atomic.Int32
	lastFrame  atomic.Int64

	started atomic.Bool
	stop    *util.Event
	done    chan struct{}
}

func NewFetcher(src source.Source, opener source.Opener, opts FetcherOptions) *Fetcher {
	opts = opts.withDefaults()
	f := &Fetcher{
		Source: src,
		opener: opener,
		opts:   opts,
		log:    log.WithField("source", src.String()),
		stop:   util.NewEvent(),
		done:   make(chan struct{}),
	}
	if opts.Buffered {
		f.frames = NewBuffer[*source.Frame](opts.BufferSize)
		f.frames.OnEvict = func(fr *source.Frame) { fr.Release() }
	}
	f.interval.Store(int64(DefaultFrameInterval))
	return f
}

// Start begins acquisition. In non-blocking mode it returns immediately,
// otherwise it runs on the calling goroutine until Stop. Starting twice is a
// no-op.
func (f *Fetcher) Start(nonBlocking bool) {
	if !f.started.CompareAndSwap(false, true) {
		return
	}
	if nonBlocking {
		f.log.Info("Starting video fetcher in non-blocking mode")
		go f.run()
		return
	}
	f.log.Info("Starting video fetcher in blocking mode")
	f.run()
}

// Stop ends acquisition and releases the connection. It is safe to call more
// than once and from any goroutine.
func (f *Fetcher) Stop() {
	f.stop.Notify()
	if f.started.Load() {
		select {
		case <-f.done:
		case <-time.After(stopTimeout):
			f.log.Warnf("Fetcher did not exit within %v; capture may still be blocked", stopTimeout)
		}
	}
	f.clear()
	f.setState(StateStopped)
}

// Done is closed once the acquisition loop has exited.
func (f *Fetcher) Done() <-chan struct{} {
	return f.done
}

func (f *Fetcher) run() {
	defer close(f.done)
	if f.stop.HasBeenNotified() {
		return
	}

	f.setState(StateConnecting)
	for !f.stop.HasBeenNotified() {
		c, p, err := f.connect()
		if err == nil {
			ended := f.stream(c, p)
			f.clear()
			if err := c.Close(); err != nil {
				f.log.Warnf("Failed to release capture: %v", err)
			}
			if f.stop.HasBeenNotified() {
				return
			}
			if ended {
				// A finished file is replayed from a fresh open.
				f.log.Info("End of file reached, replaying after retry delay")
				f.setState(StateEnded)
				if !f.stop.Sleep(f.opts.RetryDelay) {
					return
				}
				f.setState(StateConnecting)
				continue
			}
			f.log.Info("Lost frames, reconnecting")
		} else {
			f.log.Warnf("Failed to connect: %v", err)
		}

		f.reconnects.Add(1)
		metrics.Reconnects.WithLabelValues(f.Source.String()).Inc()
		f.setState(StateReconnecting)
		if !f.stop.Sleep(f.opts.RetryDelay) {
			return
		}
	}
}

// connect opens the capture and reads one frame to confirm it is live.
func (f *Fetcher) connect() (source.Capture, source.Pixels, error) {
	c, err := f.opener.Open(f.Source)
	if err != nil {
		return nil, nil, err
	}
	p, ok := c.Read()
	if !ok {
		if err := c.Close(); err != nil {
			f.log.Warnf("Failed to release capture: %v", err)
		}
		return nil, nil, errNoFrame
	}

	interval := DefaultFrameInterval
	if fps := c.FPS(); fps > 0 && !math.IsInf(fps, 0) {
		if d := time.Duration(float64(time.Second) / fps); d > 0 {
			interval = d
		}
	}
	f.interval.Store(int64(interval))
	f.frameCount.Store(int64(c.FrameCount()))

	f.log.WithFields(log.Fields{
		"size":     c.Size(),
		"fps":      c.FPS(),
		"interval": interval,
		"frames":   c.FrameCount(),
	}).Info("Connected to source")
	return c, p, nil
}

// stream publishes frames from c until a read fails or the fetcher is
// stopped. It returns true if a non-looping file was played to its end.
func (f *Fetcher) stream(c source.Capture, p source.Pixels) bool {
	f.setState(StateStreaming)

	local := f.Source.Kind == source.KindFile
	total := int64(c.FrameCount())
	margin := int64(f.opts.LoopMargin)
	pace := time.Duration(float64(f.Interval()) / paceFactor)

	f.position.Store(0)
	for {
		if local && f.Source.Loop && total > margin && f.position.Load() == total-margin {
			f.rewind(c)
		}
		f.position.Add(1)
		f.publish(p)

		if !f.stop.Sleep(pace) {
			return false
		}

		var ok bool
		if p, ok = c.Read(); ok {
			continue
		}
		if !local || total <= 0 || f.position.Load() < total {
			return false
		}
		// Read past the last frame of a file.
		if !f.Source.Loop {
			return true
		}
		if !f.rewind(c) {
			return false
		}
		if p, ok = c.Read(); !ok {
			return false
		}
	}
}

func (f *Fetcher) rewind(c source.Capture) bool {
	if err := c.Rewind(); err != nil {
		f.log.Warnf("Failed to rewind: %v", err)
		return false
	}
	f.log.Debug("Replaying local video")
	f.position.Store(0)
	metrics.Loops.WithLabelValues(f.Source.String()).Inc()
	return true
}

func (f *Fetcher) publish(p source.Pixels) {
	f.seq++
	fr := source.NewFrame(p, f.seq)
	f.captured.Add(1)
	f.lastFrame.Store(fr.Time.UnixNano())
	metrics.FramesCaptured.WithLabelValues(f.Source.String()).Inc()

	f.mu.Lock()
	if f.frames != nil {
		f.frames.Put(fr)
		f.mu.Unlock()
		return
	}
	old := f.current
	f.current = fr
	f.mu.Unlock()

	if old != nil {
		old.Release()
	}
}

// clear drops the published frame so readers see the source as absent.
func (f *Fetcher) clear() {
	f.mu.Lock()
	old := f.current
	f.current = nil
	var drained []*source.Frame
	if f.frames != nil {
		drained = f.frames.Drain()
	}
	f.mu.Unlock()

	if old != nil {
		old.Release()
	}
	for _, fr := range drained {
		fr.Release()
	}
}

// Current returns a reference to the most recent frame, or nil if there is
// none. The caller must Release it. Current never removes frames, so any
// number of readers may call it concurrently.
func (f *Fetcher) Current() *source.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.frames != nil {
		fr, ok := f.frames.Peek(-1)
		if !ok {
			return nil
		}
		return fr.Retain()
	}
	if f.current == nil {
		return nil
	}
	return f.current.Retain()
}

// Next removes and returns the oldest buffered frame, transferring its
// reference to the caller. It returns nil when nothing is buffered or the
// fetcher is not in buffered mode. Concurrent callers compete for frames.
func (f *Fetcher) Next() *source.Frame {
	if f.frames == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	fr, ok := f.frames.Get()
	if !ok {
		return nil
	}
	return fr
}

func (f *Fetcher) setState(s State) {
	old := State(f.state.Swap(int32(s)))
	if old == s {
		return
	}
	name := f.Source.String()
	metrics.FetcherState.WithLabelValues(name, old.String()).Set(0)
	metrics.FetcherState.WithLabelValues(name, s.String()).Set(1)
	f.log.WithField("state", s).Debug("Fetcher state changed")
	for _, l := range f.Listeners {
		l.FetcherStateChanged(f, s)
	}
}

func (f *Fetcher) State() State {
	return State(f.state.Load())
}

// Interval is the source's frame interval, estimated on connect.
func (f *Fetcher) Interval() time.Duration {
	return time.Duration(f.interval.Load())
}

// Position is the number of frames read since the file was opened or last
// rewound.
func (f *Fetcher) Position() int64 {
	return f.position.Load()
}

func (f *Fetcher) Reconnects() uint64 {
	return f.reconnects.Load()
}

// AddViewer adjusts the count of viewers attached to this fetcher by delta.
func (f *Fetcher) AddViewer(delta int) {
	n := f.viewers.Add(int32(delta))
	metrics.Viewers.WithLabelValues(f.Source.String()).Set(float64(n))
}

// FetcherStatus is a point in time summary of a Fetcher.
type FetcherStatus struct {
	Name       string     `json:"name"`
	URI        string     `json:"uri"`
	Kind       string     `json:"kind"`
	State      State      `json:"state"`
	IntervalMS float64    `json:"interval_ms"`
	Position   int64      `json:"position"`
	FrameCount int64      `json:"frame_count,omitempty"`
	Captured   uint64     `json:"captured"`
	Reconnects uint64     `json:"reconnects"`
	Viewers    int        `json:"viewers"`
	LastFrame  *time.Time `json:"last_frame,omitempty"`
}

func (f *Fetcher) Status() FetcherStatus {
	s := FetcherStatus{
		Name:       f.Source.Name,
		URI:        f.Source.Redacted(),
		Kind:       f.Source.Kind.String(),
		State:      f.State(),
		IntervalMS: float64(f.Interval()) / float64(time.Millisecond),
		Position:   f.position.Load(),
		FrameCount: f.frameCount.Load(),
		Captured:   f.captured.Load(),
		Reconnects: f.reconnects.Load(),
		Viewers:    int(f.viewers.Load()),
	}
	if ns := f.lastFrame.Load(); ns != 0 {
		t := time.Unix(0, ns)
		s.LastFrame = &t
	}
	return s
}
