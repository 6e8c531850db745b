package opencv

import (
	"fmt"
	"image"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"camstream/video/source"
)

// Opener opens sources with OpenCV, or with an HTTP multipart decoder for
// MJPEG sources.
type Opener struct {
	// Client fetches MJPEG sources. http.DefaultClient is used when nil.
	Client *http.Client
	// ReadTimeout aborts an MJPEG connection that delivers no frame for this
	// long. Zero means DefaultReadTimeout.
	ReadTimeout time.Duration
	// MaxMats bounds each capture's MatPool before it warns.
	MaxMats int
}

func (o *Opener) Open(src source.Source) (source.Capture, error) {
	if src.Kind == source.KindMJPEG {
		return o.openMJPEG(src)
	}
	return o.openVideo(src)
}

// VideoCapture reads frames through gocv.VideoCapture, which handles RTSP,
// local files and devices.
type VideoCapture struct {
	cap       *gocv.VideoCapture
	pool      *MatPool
	raw       gocv.Mat
	transform transform
}

func (o *Opener) openVideo(src source.Source) (*VideoCapture, error) {
	cap, err := gocv.OpenVideoCapture(src.URI)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", src.Redacted(), err)
	}
	if !cap.IsOpened() {
		cap.Close()
		return nil, fmt.Errorf("opening %s: capture not opened", src.Redacted())
	}
	return &VideoCapture{
		cap:  cap,
		pool: NewMatPool(o.MaxMats),
		raw:  gocv.NewMat(),
		transform: transform{
			roi:      src.ROI,
			rotation: src.Rotation,
		},
	}, nil
}

func (v *VideoCapture) Read() (source.Pixels, bool) {
	m := v.pool.NewMat()
	if v.transform.identity() {
		if ok := v.cap.Read(&m); !ok || m.Empty() {
			v.pool.ReleaseMat(m)
			return nil, false
		}
		return &Pixels{Mat: m, pool: v.pool}, true
	}

	if ok := v.cap.Read(&v.raw); !ok || v.raw.Empty() {
		v.pool.ReleaseMat(m)
		return nil, false
	}
	v.transform.apply(v.raw, &m)
	return &Pixels{Mat: m, pool: v.pool}, true
}

func (v *VideoCapture) FPS() float64 {
	return v.cap.Get(gocv.VideoCaptureFPS)
}

func (v *VideoCapture) Size() image.Point {
	in := image.Pt(
		int(v.cap.Get(gocv.VideoCaptureFrameWidth)),
		int(v.cap.Get(gocv.VideoCaptureFrameHeight)),
	)
	return v.transform.size(in)
}

// FrameCount is only meaningful for files; streams report zero or a
// negative number, which is clamped to zero.
func (v *VideoCapture) FrameCount() int {
	n := int(v.cap.Get(gocv.VideoCaptureFrameCount))
	if n < 0 {
		return 0
	}
	return n
}

func (v *VideoCapture) Rewind() error {
	v.cap.Set(gocv.VideoCapturePosFrames, 0)
	if pos := v.cap.Get(gocv.VideoCapturePosFrames); pos != 0 {
		return fmt.Errorf("seek to start failed, at frame %v", pos)
	}
	return nil
}

func (v *VideoCapture) Close() error {
	err := v.cap.Close()
	if cerr := v.raw.Close(); cerr != nil {
		log.Warnf("Failed to free capture buffer: %v", cerr)
	}
	v.pool.Close()
	return err
}
