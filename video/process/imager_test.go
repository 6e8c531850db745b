package process

import (
	"bytes"
	"image"
	"image/jpeg"
	"testing"

	"camstream/video/sink"
	"camstream/video/source/sourcetest"
)

func TestReducedSize(t *testing.T) {
	tests := []struct {
		in      image.Point
		percent int
		want    image.Point
	}{
		{image.Pt(640, 480), 50, image.Pt(320, 240)},
		{image.Pt(640, 480), 25, image.Pt(480, 360)},
		{image.Pt(1920, 1080), 90, image.Pt(192, 108)},
		{image.Pt(101, 77), 50, image.Pt(50, 38)},
	}
	for _, tt := range tests {
		if got := reducedSize(tt.in, tt.percent); got != tt.want {
			t.Errorf("reducedSize(%v, %d) = %v, want %v", tt.in, tt.percent, got, tt.want)
		}
	}
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in   string
		want [3]int
	}{
		{"4.5.5", [3]int{4, 5, 5}},
		{"3.4.2-dev", [3]int{3, 4, 2}},
		{"4.6", [3]int{4, 6, 0}},
		{"garbage", [3]int{}},
	}
	for _, tt := range tests {
		if got := parseVersion(tt.in); got != tt.want {
			t.Errorf("parseVersion(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if !versionLess([3]int{3, 4, 1}, [3]int{3, 4, 2}) || versionLess([3]int{4, 0, 0}, [3]int{3, 4, 2}) {
		t.Error("versionLess ordering wrong")
	}
}

func TestBlankAndEncode(t *testing.T) {
	im := NewImager()
	p, err := im.Blank(image.Pt(640, 480), "No Input")
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	if got := p.Size(); got != image.Pt(640, 480) {
		t.Fatalf("Blank size = %v", got)
	}

	for _, opts := range []sink.EncodeOptions{
		sink.DefaultOptions().EncodeOptions,
		{Quality: 95, Colorspace: sink.ColorspaceRGB, Subsampling: "444"},
		{Quality: 10, Colorspace: sink.ColorspaceGray, Subsampling: "420", FastDCT: true},
	} {
		b, err := im.Encode(p, opts)
		if err != nil {
			t.Fatalf("Encode(%+v): %v", opts, err)
		}
		cfg, err := jpeg.DecodeConfig(bytes.NewReader(b))
		if err != nil {
			t.Fatalf("Encode(%+v) produced invalid JPEG: %v", opts, err)
		}
		if cfg.Width != 640 || cfg.Height != 480 {
			t.Errorf("Encode(%+v) size = %dx%d", opts, cfg.Width, cfg.Height)
		}
	}
}

func TestReduce(t *testing.T) {
	im := NewImager()
	p, err := im.Blank(image.Pt(640, 480), "")
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	r, err := im.Reduce(p, 50)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if got := r.Size(); got != image.Pt(320, 240) {
		t.Errorf("Reduce size = %v, want 320x240", got)
	}
	if _, err := im.Reduce(p, 100); err == nil {
		t.Error("Reduce(100) succeeded")
	}
}

func TestForeignPixels(t *testing.T) {
	im := NewImager()
	if _, err := im.Encode(sourcetest.NewPixels(4, 4), sink.DefaultOptions().EncodeOptions); err == nil {
		t.Error("Encode accepted pixels without a Mat")
	}
	if _, err := im.Reduce(sourcetest.NewPixels(4, 4), 50); err == nil {
		t.Error("Reduce accepted pixels without a Mat")
	}
}
