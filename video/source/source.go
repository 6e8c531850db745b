package source

import (
	"image"
	"net/url"
	"strings"
)

// Kind describes how a source is reached.
type Kind int

const (
	// KindNetwork is a live stream such as RTSP, decoded by the capture backend.
	KindNetwork Kind = iota
	// KindFile is a local video file. Files may be replayed in a loop.
	KindFile
	// KindMJPEG is an HTTP endpoint already serving multipart JPEG.
	KindMJPEG
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindFile:
		return "file"
	case KindMJPEG:
		return "mjpeg"
	}
	return "unknown"
}

// Source describes a single video input. The URI identifies it; two sources
// with the same URI share one capture connection.
type Source struct {
	URI string
	// Name labels the source in logs and metrics, e.g. "1/primary".
	Name string
	Kind Kind
	// Loop replays a local file from the beginning when it nears its end.
	Loop bool
	// Rotation in degrees, counter-clockwise.
	Rotation float64
	// ROI crops each frame when non-empty.
	ROI image.Rectangle
}

// KindOf guesses the kind of a URI that has no explicit protocol.
func KindOf(uri string) Kind {
	if !strings.Contains(uri, "://") {
		return KindFile
	}
	return KindNetwork
}

// Redacted returns the URI with any password masked, suitable for logs.
func (s Source) Redacted() string {
	u, err := url.Parse(s.URI)
	if err != nil || u.User == nil {
		return s.URI
	}
	return u.Redacted()
}

func (s Source) String() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Redacted()
}

// Channel names one of the two streams a camera exposes.
type Channel string

const (
	Primary   Channel = "primary"
	Secondary Channel = "secondary"
)

// ParseChannel returns the channel for name, or false if it is not one of the
// known channels.
func ParseChannel(name string) (Channel, bool) {
	switch c := Channel(name); c {
	case Primary, Secondary:
		return c, true
	}
	return "", false
}

// Channels maps the channels of one camera to their sources.
type Channels map[Channel]Source

// Pixels is a decoded image buffer. Implementations may hold memory outside
// the Go heap, so Close must be called once the buffer is no longer needed.
type Pixels interface {
	Size() image.Point
	Channels() int
	Close() error
}

// Capture is an open connection to a source.
type Capture interface {
	// Read decodes the next frame. ok is false on any failure, including end
	// of file.
	Read() (p Pixels, ok bool)

	// FPS returns the native frame rate, or a non-positive value if unknown.
	FPS() float64

	// Size returns the native resolution.
	Size() image.Point

	// FrameCount returns the number of frames in a local file, or zero.
	FrameCount() int

	// Rewind seeks a local file back to its first frame.
	Rewind() error

	// Close releases the connection.
	Close() error
}

// Opener establishes capture connections.
type Opener interface {
	Open(src Source) (Capture, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(src Source) (Capture, error)

func (f OpenerFunc) Open(src Source) (Capture, error) {
	return f(src)
}
