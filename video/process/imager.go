// Package process implements the image operations of the MJPEG pipeline with
// OpenCV.
package process

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"camstream/video/sink"
	"camstream/video/source"
	"camstream/video/source/opencv"
)

// imwriteJpegSamplingFactor is cv::IMWRITE_JPEG_SAMPLING_FACTOR. Older OpenCV
// releases ignore it and encode 4:2:0.
const imwriteJpegSamplingFactor = 7

var samplingFactors = map[string]int{
	"411": 0x411111,
	"420": 0x221111,
	"422": 0x211111,
	"440": 0x121111,
	"444": 0x111111,
}

// Imager implements sink.Imager.
type Imager struct {
	Interpolation gocv.InterpolationFlags
}

var _ sink.Imager = (*Imager)(nil)

func NewImager() *Imager {
	return &Imager{Interpolation: BestInterpolation()}
}

// Encode compresses p to a JPEG. p is interpreted in opts.Colorspace and
// converted to the BGR order the encoder expects; GRAY produces a greyscale
// image.
func (i *Imager) Encode(p source.Pixels, opts sink.EncodeOptions) ([]byte, error) {
	m, err := opencv.MatOf(p)
	if err != nil {
		return nil, err
	}

	if code, ok := conversion(opts.Colorspace, m.Channels()); ok {
		converted := gocv.NewMat()
		defer converted.Close()
		gocv.CvtColor(m, &converted, code)
		m = converted
	}

	optimize := 1
	if opts.FastDCT {
		optimize = 0
	}
	params := []int{
		int(gocv.IMWriteJpegQuality), opts.Quality,
		int(gocv.IMWriteJpegOptimize), optimize,
	}
	if f, ok := samplingFactors[opts.Subsampling]; ok {
		params = append(params, imwriteJpegSamplingFactor, f)
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, m, params)
	if err != nil {
		return nil, fmt.Errorf("jpeg encode: %w", err)
	}
	defer buf.Close()
	// The buffer is owned by OpenCV.
	b := buf.GetBytes()
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func conversion(colorspace string, channels int) (gocv.ColorConversionCode, bool) {
	switch {
	case colorspace == sink.ColorspaceRGB && channels == 3:
		return gocv.ColorRGBToBGR, true
	case colorspace == sink.ColorspaceBGRA && channels == 4:
		return gocv.ColorBGRAToBGR, true
	case colorspace == sink.ColorspaceRGBA && channels == 4:
		return gocv.ColorRGBAToBGR, true
	case colorspace == sink.ColorspaceGray && channels == 3:
		return gocv.ColorBGRToGray, true
	}
	return 0, false
}

// Reduce shrinks p by percent of its width, keeping the aspect ratio.
func (i *Imager) Reduce(p source.Pixels, percent int) (source.Pixels, error) {
	if percent <= 0 || percent >= 100 {
		return nil, fmt.Errorf("reduction of %d%% out of range", percent)
	}
	m, err := opencv.MatOf(p)
	if err != nil {
		return nil, err
	}
	sz := reducedSize(image.Pt(m.Cols(), m.Rows()), percent)
	if sz.X < 1 || sz.Y < 1 {
		return nil, fmt.Errorf("frame of %dx%d too small to reduce", m.Cols(), m.Rows())
	}

	out := gocv.NewMat()
	gocv.Resize(m, &out, sz, 0, 0, i.Interpolation)
	return opencv.NewPixels(out), nil
}

func reducedSize(in image.Point, percent int) image.Point {
	w := float64(in.X) * float64(100-percent) / 100
	ratio := w / float64(in.X)
	return image.Pt(int(w), int(float64(in.Y)*ratio))
}
