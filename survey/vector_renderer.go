package survey

import (
	"fmt"
	"image/color"
	"image/png"
	"io"
	"log"
	"sync"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
	"golang.org/x/image/font/gofont/goregular"
)

// labelFontSize is the label cap height in canvas units (view pixels),
// converted to points for canvas font faces
const labelFontSize = 9.0 * 72 / 25.4

// labelFamily loads the Go regular font once for every renderer
var labelFamily = sync.OnceValues(func() (*canvas.FontFamily, error) {
	family := canvas.NewFontFamily("goregular")
	if err := family.LoadFont(goregular.TTF, 0, canvas.FontRegular); err != nil {
		return nil, fmt.Errorf("loading label font: %w", err)
	}
	return family, nil
})

// VectorRenderer exports the current view as SVG or high-DPI PNG. It draws
// the image frame rather than the raster itself, plus one marker, value tag
// and dBm label per measurement, projected exactly like the Compositor.
type VectorRenderer struct {
	Background   color.RGBA
	MarkerRadius float64
	LabelOffset  float64
	PixelRatio   float64 // Output pixels per view pixel for PNG export

	// LabelFace draws the dBm labels; nil when the font failed to load
	LabelFace *canvas.FontFace
}

// NewVectorRenderer creates a vector renderer from render settings
func NewVectorRenderer(cfg RenderConfig) *VectorRenderer {
	ratio := cfg.Resolution / 96
	if ratio <= 0 {
		ratio = 1
	}
	r := &VectorRenderer{
		Background:   parseHexColor(cfg.Background),
		MarkerRadius: float64(cfg.MarkerRadius),
		LabelOffset:  float64(cfg.LabelOffset),
		PixelRatio:   ratio,
	}
	if cfg.Background == "" {
		r.Background = color.RGBA{240, 240, 240, 255}
	}
	if r.MarkerRadius <= 0 {
		r.MarkerRadius = 6
	}

	family, err := labelFamily()
	if err != nil {
		log.Printf("Warning: vector labels disabled: %v", err)
	} else {
		r.LabelFace = family.Face(labelFontSize, canvas.Black, canvas.FontRegular, canvas.FontNormal)
	}
	return r
}

// canvasRenderer is an interface that both svg and rasterizer renderers implement
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
	RenderText(text *canvas.Text, m canvas.Matrix)
}

// vectorMarker is a measurement projected into canvas space (y up)
type vectorMarker struct {
	X, Y  float64
	RSSI  int
	Color color.RGBA
}

// RenderToSVG writes the view as an SVG to the provided writer
func (r *VectorRenderer) RenderToSVG(w io.Writer, f Frame) error {
	width, height := frameSize(f)

	svgRenderer := svg.New(w, width, height, nil)
	r.renderToCanvas(svgRenderer, f, width, height)

	if err := svgRenderer.Close(); err != nil {
		return fmt.Errorf("writing SVG: %w", err)
	}
	return nil
}

// RenderToPNG writes the view as a PNG scaled by PixelRatio
func (r *VectorRenderer) RenderToPNG(w io.Writer, f Frame) error {
	width, height := frameSize(f)

	// One canvas unit (mm) per view pixel, times the pixel ratio
	rast := rasterizer.New(width, height, canvas.DPI(25.4*r.PixelRatio), canvas.DefaultColorSpace)
	r.renderToCanvas(rast, f, width, height)

	if err := png.Encode(w, rast); err != nil {
		return fmt.Errorf("encoding PNG: %w", err)
	}
	return nil
}

// renderToCanvas draws a frame to a canvas renderer (shared logic for SVG and PNG)
func (r *VectorRenderer) renderToCanvas(renderer canvasRenderer, f Frame, width, height float64) {
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: r.Background}
	bgStyle.Stroke = canvas.Paint{Color: canvas.Transparent}
	renderer.RenderPath(canvas.Rectangle(width, height), bgStyle, canvas.Identity)

	if !f.Viewport.Valid() {
		return
	}

	// Image frame
	b := f.Viewport.Bounds()
	frameStyle := canvas.DefaultStyle
	frameStyle.Fill = canvas.Paint{Color: canvas.White}
	frameStyle.Stroke = canvas.Paint{Color: canvas.Gray}
	frameStyle.StrokeWidth = 1.0
	fp := &canvas.Path{}
	fp.MoveTo(b.X, height-b.Y)
	fp.LineTo(b.X+b.Width, height-b.Y)
	fp.LineTo(b.X+b.Width, height-(b.Y+b.Height))
	fp.LineTo(b.X, height-(b.Y+b.Height))
	fp.Close()
	renderer.RenderPath(fp, frameStyle, canvas.Identity)

	tagStyle := canvas.DefaultStyle
	tagStyle.Fill = canvas.Paint{Color: canvas.Black}
	tagStyle.Stroke = canvas.Paint{Color: canvas.Transparent}

	for _, m := range r.markers(f, height) {
		markerStyle := canvas.DefaultStyle
		markerStyle.Fill = canvas.Paint{Color: m.Color}
		markerStyle.Stroke = canvas.Paint{Color: canvas.Black}
		markerStyle.StrokeWidth = 1.0

		marker := canvas.Circle(r.MarkerRadius)
		marker = marker.Translate(m.X, m.Y)
		renderer.RenderPath(marker, markerStyle, canvas.Identity)

		// Value tag: a bar above the marker whose length grows with signal strength
		tag := &canvas.Path{}
		length := tagLength(m.RSSI, r.MarkerRadius)
		top := m.Y + r.LabelOffset
		tag.MoveTo(m.X-length/2, top)
		tag.LineTo(m.X+length/2, top)
		tag.LineTo(m.X+length/2, top+2)
		tag.LineTo(m.X-length/2, top+2)
		tag.Close()
		renderer.RenderPath(tag, tagStyle, canvas.Identity)

		if r.LabelFace != nil {
			label := canvas.NewTextLine(r.LabelFace, signalLabel(m.RSSI), canvas.Center)
			renderer.RenderText(label, canvas.Identity.Translate(m.X, top+4))
		}
	}
}

// markers projects every measurement into canvas space
func (r *VectorRenderer) markers(f Frame, height float64) []vectorMarker {
	out := make([]vectorMarker, 0, len(f.Points))
	for _, p := range f.Points {
		sp := f.Viewport.Forward(p.Position())
		out = append(out, vectorMarker{
			X:     sp.X,
			Y:     height - sp.Y,
			RSSI:  p.RSSI,
			Color: ColorFor(p.RSSI),
		})
	}
	return out
}

// tagLength maps -100..-30 dBm onto one to four marker diameters
func tagLength(rssi int, radius float64) float64 {
	v := float64(min(max(rssi, -100), -30))
	frac := (v + 100) / 70
	return 2 * radius * (1 + 3*frac)
}

func frameSize(f Frame) (float64, float64) {
	return max(f.Viewport.ContainerWidth, 1), max(f.Viewport.ContainerHeight, 1)
}
