// Package opencv implements capture sources and pixel buffers on top of gocv.
package opencv

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"camstream/video/source"
)

// Pixels adapts a gocv.Mat to source.Pixels. A Mat taken from a MatPool goes
// back to it on Close.
type Pixels struct {
	Mat  gocv.Mat
	pool *MatPool
}

// NewPixels takes ownership of m.
func NewPixels(m gocv.Mat) *Pixels {
	return &Pixels{Mat: m}
}

func (p *Pixels) Size() image.Point {
	return image.Pt(p.Mat.Cols(), p.Mat.Rows())
}

func (p *Pixels) Channels() int {
	return p.Mat.Channels()
}

func (p *Pixels) Close() error {
	if p.pool != nil {
		p.pool.ReleaseMat(p.Mat)
		return nil
	}
	return p.Mat.Close()
}

// MatOf returns the Mat behind p. It fails for pixels not created by this
// package.
func MatOf(p source.Pixels) (gocv.Mat, error) {
	px, ok := p.(*Pixels)
	if !ok {
		return gocv.Mat{}, fmt.Errorf("unsupported pixel buffer %T", p)
	}
	if px.Mat.Empty() {
		return gocv.Mat{}, fmt.Errorf("empty pixel buffer")
	}
	return px.Mat, nil
}
