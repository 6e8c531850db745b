package opencv

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mattn/go-mjpeg"
	"gocv.io/x/gocv"

	"camstream/video/source"
)

func TestMatPoolReuses(t *testing.T) {
	p := NewMatPool(0)
	a := p.NewMat()
	p.ReleaseMat(a)
	b := p.NewMat()
	if n := p.Allocated(); n != 1 {
		t.Errorf("Allocated() = %d after reuse, want 1", n)
	}
	c := p.NewMat()
	if n := p.Allocated(); n != 2 {
		t.Errorf("Allocated() = %d, want 2", n)
	}
	p.ReleaseMat(b)
	p.Close()
	p.Close()

	// Outstanding Mats are freed once returned after Close.
	p.ReleaseMat(c)
	select {
	case <-p.done:
	case <-time.After(time.Second):
		t.Fatal("pool did not finish after last release")
	}
	if n := p.Allocated(); n != 0 {
		t.Errorf("Allocated() = %d after close, want 0", n)
	}
	m := p.NewMat()
	if err := m.Close(); err != nil {
		t.Error(err)
	}
}

func TestTransformSize(t *testing.T) {
	tests := []struct {
		name string
		tr   transform
		want image.Point
	}{
		{"identity", transform{}, image.Pt(640, 480)},
		{"rotation keeps size", transform{rotation: 90}, image.Pt(640, 480)},
		{"roi", transform{roi: image.Rect(10, 20, 110, 70)}, image.Pt(100, 50)},
		{"roi clipped", transform{roi: image.Rect(600, 400, 800, 600)}, image.Pt(40, 80)},
		{"roi outside", transform{roi: image.Rect(700, 500, 800, 600)}, image.Pt(640, 480)},
	}
	for _, tt := range tests {
		if got := tt.tr.size(image.Pt(640, 480)); got != tt.want {
			t.Errorf("%s: size = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestTransformApply(t *testing.T) {
	src := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer src.Close()
	dst := gocv.NewMat()
	defer dst.Close()

	transform{roi: image.Rect(0, 0, 320, 240), rotation: 45}.apply(src, &dst)
	if dst.Cols() != 320 || dst.Rows() != 240 {
		t.Errorf("output = %dx%d, want 320x240", dst.Cols(), dst.Rows())
	}
}

func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestMJPEGCapture(t *testing.T) {
	stream := mjpeg.NewStream()
	srv := httptest.NewServer(stream)
	defer srv.Close()
	defer stream.Close()

	frame := testJPEG(t, 160, 120)
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		tick := time.NewTicker(5 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-stop:
				return
			case <-tick.C:
				stream.Update(frame)
			}
		}
	}()

	o := &Opener{ReadTimeout: 5 * time.Second}
	c, err := o.Open(source.Source{URI: srv.URL, Kind: source.KindMJPEG, ROI: image.Rect(0, 0, 80, 60)})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		p, ok := c.Read()
		if !ok {
			t.Fatalf("read %d failed", i)
		}
		if got := p.Size(); got != image.Pt(80, 60) {
			t.Errorf("frame size = %v, want 80x60", got)
		}
		if err := p.Close(); err != nil {
			t.Error(err)
		}
	}
	if got := c.Size(); got != image.Pt(80, 60) {
		t.Errorf("Size() = %v", got)
	}
	if c.Rewind() == nil {
		t.Error("Rewind() on a stream succeeded")
	}
	c.Close()
	if _, ok := c.Read(); ok {
		t.Error("Read() after Close succeeded")
	}
}

func TestOpenMissingFile(t *testing.T) {
	o := &Opener{}
	if _, err := o.Open(source.Source{URI: "/nonexistent/video.mp4", Kind: source.KindFile}); err == nil {
		t.Error("opening a missing file succeeded")
	}
}
