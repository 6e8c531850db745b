package opencv

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"
	"sync"
	"time"

	"github.com/mattn/go-mjpeg"
	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"camstream/video/source"
)

const DefaultReadTimeout = 10 * time.Second

var errNoRewind = errors.New("mjpeg streams cannot be rewound")

// MJPEGCapture decodes an HTTP multipart JPEG stream, as served by many IP
// cameras, without going through the OpenCV video backend.
type MJPEGCapture struct {
	dec       *mjpeg.Decoder
	res       *http.Response
	cancel    context.CancelFunc
	watchdog  *time.Timer
	timeout   time.Duration
	transform transform

	mu   sync.Mutex
	size image.Point
}

func (o *Opener) openMJPEG(src source.Source) (*MJPEGCapture, error) {
	client := o.Client
	if client == nil {
		client = http.DefaultClient
	}
	timeout := o.ReadTimeout
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URI, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("opening %s: %w", src.Redacted(), err)
	}
	// The watchdog also bounds connecting.
	watchdog := time.AfterFunc(timeout, cancel)
	res, err := client.Do(req)
	if err != nil {
		watchdog.Stop()
		cancel()
		return nil, fmt.Errorf("opening %s: %w", src.Redacted(), err)
	}
	if res.StatusCode != http.StatusOK {
		watchdog.Stop()
		res.Body.Close()
		cancel()
		return nil, fmt.Errorf("opening %s: %s", src.Redacted(), res.Status)
	}
	dec, err := mjpeg.NewDecoderFromResponse(res)
	if err != nil {
		watchdog.Stop()
		res.Body.Close()
		cancel()
		return nil, fmt.Errorf("opening %s: %w", src.Redacted(), err)
	}
	return &MJPEGCapture{
		dec:      dec,
		res:      res,
		cancel:   cancel,
		watchdog: watchdog,
		timeout:  timeout,
		transform: transform{
			roi:      src.ROI,
			rotation: src.Rotation,
		},
	}, nil
}

func (c *MJPEGCapture) Read() (source.Pixels, bool) {
	c.watchdog.Reset(c.timeout)
	b, err := c.dec.DecodeRaw()
	if err != nil {
		log.Debugf("MJPEG read failed: %v", err)
		return nil, false
	}
	m, err := gocv.IMDecode(b, gocv.IMReadColor)
	if err != nil || m.Empty() {
		m.Close()
		log.Debugf("MJPEG part is not a JPEG image: %v", err)
		return nil, false
	}

	c.mu.Lock()
	c.size = image.Pt(m.Cols(), m.Rows())
	c.mu.Unlock()

	if c.transform.identity() {
		return NewPixels(m), true
	}
	out := gocv.NewMat()
	c.transform.apply(m, &out)
	m.Close()
	return NewPixels(out), true
}

// FPS is unknown for multipart streams.
func (c *MJPEGCapture) FPS() float64 {
	return 0
}

// Size is known once the first frame has been read.
func (c *MJPEGCapture) Size() image.Point {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transform.size(c.size)
}

func (c *MJPEGCapture) FrameCount() int {
	return 0
}

func (c *MJPEGCapture) Rewind() error {
	return errNoRewind
}

func (c *MJPEGCapture) Close() error {
	c.watchdog.Stop()
	c.cancel()
	return c.res.Body.Close()
}
