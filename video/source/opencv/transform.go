package opencv

import (
	"image"

	"gocv.io/x/gocv"
)

// transform crops and rotates frames as they are read.
type transform struct {
	roi      image.Rectangle
	rotation float64
}

func (t transform) identity() bool {
	return t.roi.Empty() && t.rotation == 0
}

// size returns the output size for a frame of size in.
func (t transform) size(in image.Point) image.Point {
	if r := t.crop(in); !r.Empty() {
		return r.Size()
	}
	return in
}

func (t transform) crop(in image.Point) image.Rectangle {
	if t.roi.Empty() {
		return image.Rectangle{}
	}
	return t.roi.Intersect(image.Rectangle{Max: in})
}

// apply writes the transformed src into dst.
func (t transform) apply(src gocv.Mat, dst *gocv.Mat) {
	img := src
	if r := t.crop(image.Pt(src.Cols(), src.Rows())); !r.Empty() {
		region := src.Region(r)
		defer region.Close()
		img = region
	}
	if t.rotation == 0 {
		img.CopyTo(dst)
		return
	}
	// Rotate about the center, keeping the frame size.
	sz := image.Pt(img.Cols(), img.Rows())
	m := gocv.GetRotationMatrix2D(image.Pt(sz.X/2, sz.Y/2), t.rotation, 1.0)
	defer m.Close()
	gocv.WarpAffine(img, dst, m, sz)
}
