package survey

import "math"

// Cursor is the pointer shape shown over the viewing surface
type Cursor string

const (
	CursorDefault   Cursor = "default"
	CursorCrosshair Cursor = "crosshair"
)

// MapClick converts a screen-space pointer position into a floor-plan-intrinsic
// pixel coordinate. It returns false when the event should be ignored: no image
// is loaded, the viewport has no usable scale, or the pointer lies outside the
// image bounds. None of these are errors. Results lie in [0, iw-1] x [0, ih-1].
func MapClick(vs ViewportState, hasImage bool, pointer Point) (x, y int, ok bool) {
	if !hasImage || !vs.Valid() {
		return 0, 0, false
	}
	if !vs.Bounds().Contains(pointer) {
		return 0, 0, false
	}

	p, ok := vs.Inverse(pointer)
	if !ok {
		return 0, 0, false
	}
	// The bounds include their far edges, which would round to iw or ih
	x = clampPixel(int(math.Round(p.X)), vs.ImageWidth)
	y = clampPixel(int(math.Round(p.Y)), vs.ImageHeight)
	return x, y, true
}

func clampPixel(v int, extent float64) int {
	return min(max(v, 0), int(extent)-1)
}

// CursorAt returns the cursor for a pointer hovering at the given screen position
func CursorAt(vs ViewportState, hasImage bool, pointer Point) Cursor {
	if hasImage && vs.Valid() && vs.Bounds().Contains(pointer) {
		return CursorCrosshair
	}
	return CursorDefault
}
