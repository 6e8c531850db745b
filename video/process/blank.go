package process

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"camstream/video/source"
	"camstream/video/source/opencv"
)

var colorText = color.RGBA{R: 125, G: 125, B: 125, A: 255}

// Blank draws text centered on a black frame of the given size.
func (i *Imager) Blank(size image.Point, text string) (source.Pixels, error) {
	if size.X <= 0 || size.Y <= 0 {
		return nil, fmt.Errorf("invalid placeholder size %v", size)
	}
	m := gocv.NewMatWithSize(size.Y, size.X, gocv.MatTypeCV8UC3)
	m.SetTo(gocv.NewScalar(0, 0, 0, 0))

	if text != "" {
		font := gocv.FontHersheyScriptComplex
		scale := fontScale(size)
		sz := gocv.GetTextSize(text, font, scale, 2)
		org := image.Pt((size.X-sz.X)/2, (size.Y+sz.Y)/2)
		gocv.PutText(&m, text, org, font, scale, colorText, 3)
	}
	return opencv.NewPixels(m), nil
}

// fontScale grows the text with the smaller side of the frame.
func fontScale(size image.Point) float64 {
	side := size.X
	if size.Y < side {
		side = size.Y
	}
	return float64(side) / (25 / 0.25)
}
