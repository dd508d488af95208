package survey

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Frame is everything needed to draw one view of the session. Points are in
// floor-plan-intrinsic coordinates and are projected at draw time.
type Frame struct {
	Viewport ViewportState
	Image    image.Image
	Points   []MeasurementPoint
}

// Compositor draws frames into rasters
type Compositor struct {
	Background   color.RGBA
	MarkerRadius int
	LabelOffset  int // Distance from marker center up to the label baseline
	Outline      color.RGBA
	LabelColor   color.RGBA
}

// NewCompositor creates a compositor from render settings
func NewCompositor(cfg RenderConfig) *Compositor {
	c := &Compositor{
		Background:   parseHexColor(cfg.Background),
		MarkerRadius: cfg.MarkerRadius,
		LabelOffset:  cfg.LabelOffset,
		Outline:      color.RGBA{0, 0, 0, 255},
		LabelColor:   color.RGBA{0, 0, 0, 255},
	}
	if cfg.Background == "" {
		c.Background = color.RGBA{240, 240, 240, 255}
	}
	if c.MarkerRadius <= 0 {
		c.MarkerRadius = 6
	}
	return c
}

// Render draws background, scaled floor plan and measurement markers
func (c *Compositor) Render(f Frame) *image.RGBA {
	size := f.Viewport.Container()
	width := max(size.Width, 1)
	height := max(size.Height, 1)

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.Draw(img, img.Bounds(), image.NewUniform(c.Background), image.Point{}, xdraw.Src)

	if f.Image == nil || !f.Viewport.Valid() {
		return img
	}

	xdraw.ApproxBiLinear.Scale(img, imageRect(f.Viewport.Bounds()), f.Image, f.Image.Bounds(), xdraw.Over, nil)

	for _, p := range f.Points {
		sp := f.Viewport.Forward(p.Position())
		cx, cy := int(math.Round(sp.X)), int(math.Round(sp.Y))

		drawCircle(img, cx, cy, c.MarkerRadius, ColorFor(p.RSSI))
		drawRing(img, cx, cy, c.MarkerRadius, c.Outline)
		drawCenteredText(img, cx, cy-c.LabelOffset, signalLabel(p.RSSI), c.LabelColor)
	}

	return img
}

// RenderPNG renders a frame and encodes it as PNG
func (c *Compositor) RenderPNG(w io.Writer, f Frame) error {
	if err := png.Encode(w, c.Render(f)); err != nil {
		return fmt.Errorf("encoding PNG: %w", err)
	}
	return nil
}

// imageRect rounds a screen rectangle to whole pixels
func imageRect(r Rect) image.Rectangle {
	return image.Rect(
		int(math.Round(r.X)),
		int(math.Round(r.Y)),
		int(math.Round(r.X+r.Width)),
		int(math.Round(r.Y+r.Height)),
	)
}

// drawCircle draws a filled circle
func drawCircle(img *image.RGBA, cx, cy, radius int, c color.RGBA) {
	b := img.Bounds()
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= radius*radius {
				x, y := cx+dx, cy+dy
				if x >= b.Min.X && x < b.Max.X && y >= b.Min.Y && y < b.Max.Y {
					img.Set(x, y, c)
				}
			}
		}
	}
}

// drawRing draws a 1px circle outline
func drawRing(img *image.RGBA, cx, cy, radius int, c color.RGBA) {
	b := img.Bounds()
	outer := (radius + 1) * (radius + 1)
	inner := radius * radius
	for dy := -radius - 1; dy <= radius+1; dy++ {
		for dx := -radius - 1; dx <= radius+1; dx++ {
			d := dx*dx + dy*dy
			if d > inner && d <= outer {
				x, y := cx+dx, cy+dy
				if x >= b.Min.X && x < b.Max.X && y >= b.Min.Y && y < b.Max.Y {
					img.Set(x, y, c)
				}
			}
		}
	}
}

// drawCenteredText renders text horizontally centered on x with its baseline at y
func drawCenteredText(img *image.RGBA, x, y int, text string, c color.RGBA) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
	}
	w := d.MeasureString(text)
	d.Dot = fixed.Point26_6{X: fixed.I(x) - w/2, Y: fixed.I(y)}
	d.DrawString(text)
}
