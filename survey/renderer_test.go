package survey

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
)

func solidImage(w, h int, c color.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func testFrame(points ...MeasurementPoint) Frame {
	return Frame{
		Viewport: RecomputeViewport(Size{200, 100}, Size{100, 100}), // scale 1, offset (50, 0)
		Image:    solidImage(100, 100, color.RGBA{0, 0, 255, 255}),
		Points:   points,
	}
}

func TestCompositor_Layers(t *testing.T) {
	c := NewCompositor(DefaultConfig().Render)
	img := c.Render(testFrame(MeasurementPoint{ID: 1, X: 50, Y: 60, RSSI: -45}))

	if img.Bounds().Dx() != 200 || img.Bounds().Dy() != 100 {
		t.Fatalf("output size = %v, want 200x100", img.Bounds())
	}

	// Background outside the image
	if got := img.RGBAAt(10, 50); got != (color.RGBA{240, 240, 240, 255}) {
		t.Errorf("background pixel = %v, want #f0f0f0", got)
	}
	// Floor plan inside the image bounds
	if got := img.RGBAAt(60, 10); got != (color.RGBA{0, 0, 255, 255}) {
		t.Errorf("image pixel = %v, want blue", got)
	}
	// Marker centered at forward(50, 60) = (100, 60)
	if got := img.RGBAAt(100, 60); got != ColorFor(-45) {
		t.Errorf("marker pixel = %v, want %v", got, ColorFor(-45))
	}
	// Outline ring just outside the fill radius
	if got := img.RGBAAt(100+c.MarkerRadius+1, 60); got != c.Outline {
		t.Errorf("ring pixel = %v, want %v", got, c.Outline)
	}
}

func TestCompositor_LabelAboveMarker(t *testing.T) {
	c := NewCompositor(DefaultConfig().Render)
	img := c.Render(testFrame(MeasurementPoint{ID: 1, X: 50, Y: 60, RSSI: -45}))

	// Some dark label pixels between the baseline and the top of the glyphs
	found := false
	for y := 60 - c.LabelOffset - 10; y <= 60-c.LabelOffset; y++ {
		for x := 80; x <= 120; x++ {
			if img.RGBAAt(x, y) == c.LabelColor {
				found = true
			}
		}
	}
	if !found {
		t.Error("expected label text above the marker")
	}
}

func TestCompositor_ResizeKeepsAnchoring(t *testing.T) {
	c := NewCompositor(DefaultConfig().Render)
	plan := solidImage(400, 200, color.RGBA{255, 255, 255, 255})
	point := MeasurementPoint{ID: 1, X: 200, Y: 100, RSSI: -85}

	for _, size := range []Size{{400, 200}, {200, 100}, {800, 800}} {
		vs := RecomputeViewport(size, Size{400, 200})
		img := c.Render(Frame{Viewport: vs, Image: plan, Points: []MeasurementPoint{point}})
		center := vs.Forward(point.Position())
		if got := img.RGBAAt(int(center.X), int(center.Y)); got != ColorFor(-85) {
			t.Errorf("container %v: marker pixel at %v = %v, want %v", size, center, got, ColorFor(-85))
		}
	}
}

func TestCompositor_NoImage(t *testing.T) {
	c := NewCompositor(RenderConfig{})
	img := c.Render(Frame{Viewport: RecomputeViewport(Size{50, 40}, Size{})})
	if img.Bounds().Dx() != 50 || img.Bounds().Dy() != 40 {
		t.Fatalf("output size = %v, want 50x40", img.Bounds())
	}
	if got := img.RGBAAt(25, 20); got != (color.RGBA{240, 240, 240, 255}) {
		t.Errorf("pixel = %v, want background", got)
	}
}

func TestCompositor_RenderPNG(t *testing.T) {
	c := NewCompositor(DefaultConfig().Render)
	var buf bytes.Buffer
	if err := c.RenderPNG(&buf, testFrame()); err != nil {
		t.Fatalf("RenderPNG() error = %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("decoding output: %v", err)
	}
	if img.Bounds().Dx() != 200 {
		t.Errorf("width = %d, want 200", img.Bounds().Dx())
	}
}

func TestVectorRenderer_SVG(t *testing.T) {
	r := NewVectorRenderer(DefaultConfig().Render)
	var buf bytes.Buffer
	err := r.RenderToSVG(&buf, testFrame(
		MeasurementPoint{ID: 1, X: 10, Y: 10, RSSI: -45},
		MeasurementPoint{ID: 2, X: 90, Y: 90, RSSI: -85},
	))
	if err != nil {
		t.Fatalf("RenderToSVG() error = %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "<svg") || !strings.Contains(out, "</svg>") {
		t.Errorf("output is not an SVG document: %.80s", out)
	}
}

func TestVectorRenderer_PNG(t *testing.T) {
	r := NewVectorRenderer(RenderConfig{Resolution: 192})
	var buf bytes.Buffer
	if err := r.RenderToPNG(&buf, testFrame(MeasurementPoint{ID: 1, X: 50, Y: 50, RSSI: -60})); err != nil {
		t.Fatalf("RenderToPNG() error = %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("decoding output: %v", err)
	}
	// 2x pixel ratio
	if w := img.Bounds().Dx(); w < 398 || w > 402 {
		t.Errorf("width = %d, want about 400", w)
	}
}

func TestVectorRenderer_Labels(t *testing.T) {
	if got := signalLabel(-55); got != "-55 dBm" {
		t.Errorf("signalLabel(-55) = %q, want %q", got, "-55 dBm")
	}

	r := NewVectorRenderer(DefaultConfig().Render)
	if r.LabelFace == nil {
		t.Fatal("label face should load from the embedded Go font")
	}

	f := testFrame(MeasurementPoint{ID: 1, X: 50, Y: 50, RSSI: -55})
	var labeled, bare bytes.Buffer
	if err := r.RenderToSVG(&labeled, f); err != nil {
		t.Fatalf("RenderToSVG() error = %v", err)
	}
	unlabeled := *r
	unlabeled.LabelFace = nil
	if err := unlabeled.RenderToSVG(&bare, f); err != nil {
		t.Fatalf("RenderToSVG() without labels error = %v", err)
	}
	if labeled.Len() <= bare.Len() {
		t.Errorf("labeled SVG (%d bytes) should be larger than unlabeled (%d bytes)", labeled.Len(), bare.Len())
	}

	// The PNG path rasterizes the same labels
	var buf bytes.Buffer
	if err := r.RenderToPNG(&buf, f); err != nil {
		t.Fatalf("RenderToPNG() error = %v", err)
	}
}

func TestVectorRenderer_MarkersFlipY(t *testing.T) {
	r := NewVectorRenderer(DefaultConfig().Render)
	f := testFrame(MeasurementPoint{ID: 1, X: 10, Y: 20, RSSI: -55})

	markers := r.markers(f, 100)
	if len(markers) != 1 {
		t.Fatalf("markers = %d, want 1", len(markers))
	}
	m := markers[0]
	// forward(10, 20) = (60, 20); canvas y grows upward
	if m.X != 60 || m.Y != 80 {
		t.Errorf("marker at (%v, %v), want (60, 80)", m.X, m.Y)
	}
	if m.Color != ColorFor(-55) {
		t.Errorf("marker color = %v, want %v", m.Color, ColorFor(-55))
	}
}

func TestTagLength(t *testing.T) {
	if tagLength(-100, 6) != 12 || tagLength(-30, 6) != 48 {
		t.Errorf("tagLength endpoints = %v, %v", tagLength(-100, 6), tagLength(-30, 6))
	}
	if tagLength(-120, 6) != tagLength(-100, 6) || tagLength(0, 6) != tagLength(-30, 6) {
		t.Error("tagLength should clamp outside -100..-30")
	}
}
