package sink

import (
	"image"
	"time"

	"camstream/video/source"
)

// Feed provides the most recent frame of a source. Current returns nil when
// there is none; a returned frame must be released by the caller.
type Feed interface {
	Current() *source.Frame
}

// Imager is the image processing needed to turn frames into chunks.
type Imager interface {
	// Blank creates a black image of the given size with text centered on it.
	Blank(size image.Point, text string) (source.Pixels, error)
	// Reduce returns a copy of p shrunk by percent of each dimension.
	Reduce(p source.Pixels, percent int) (source.Pixels, error)
	// Encode compresses p to JPEG.
	Encode(p source.Pixels, opts EncodeOptions) ([]byte, error)
}

const (
	ColorspaceBGR  = "BGR"
	ColorspaceRGB  = "RGB"
	ColorspaceBGRA = "BGRA"
	ColorspaceRGBA = "RGBA"
	ColorspaceGray = "GRAY"
)

// Colorspaces lists the accepted JPEG input colorspaces.
var Colorspaces = []string{ColorspaceBGR, ColorspaceRGB, ColorspaceBGRA, ColorspaceRGBA, ColorspaceGray}

// Subsamplings lists the accepted chroma subsampling modes.
var Subsamplings = []string{"444", "422", "420", "440", "411"}

type EncodeOptions struct {
	// Quality is the JPEG quality, 10 to 100.
	Quality int
	// Colorspace describes how the source pixels should be interpreted.
	Colorspace  string
	Subsampling string
	// FastDCT trades a little quality for encoding speed.
	FastDCT bool
}

// Options configures one viewer's producer.
type Options struct {
	EncodeOptions

	// Reduction shrinks frames by this percentage before encoding, 0 to 90.
	Reduction int
	// Infinite keeps emitting "No Input" placeholders while the source is
	// absent. Otherwise the session ends after a single "The End" chunk.
	Infinite bool
	// Interval is the pause between chunks.
	Interval time.Duration
	// Resolution is the size of placeholder frames.
	Resolution image.Point

	// Grace is how many times an absent frame is retried, GraceWait apart,
	// before a placeholder is sent.
	Grace     int
	GraceWait time.Duration
}

func DefaultOptions() Options {
	return Options{
		EncodeOptions: EncodeOptions{
			Quality:     60,
			Colorspace:  ColorspaceBGR,
			Subsampling: "422",
			FastDCT:     true,
		},
		Infinite:   true,
		Interval:   75 * time.Millisecond,
		Resolution: image.Pt(640, 480),
		Grace:      50,
		GraceWait:  30 * time.Millisecond,
	}
}
