package survey

// ViewportState describes how the floor plan is fitted into the viewing
// surface. It is always derived by RecomputeViewport and never patched.
type ViewportState struct {
	ContainerWidth  float64 `json:"containerWidth"`
	ContainerHeight float64 `json:"containerHeight"`
	ImageWidth      float64 `json:"imageWidth"`
	ImageHeight     float64 `json:"imageHeight"`
	Scale           float64 `json:"scale"`
	OffsetX         float64 `json:"offsetX"`
	OffsetY         float64 `json:"offsetY"`
}

// RecomputeViewport fits an image of the given intrinsic size into a container,
// centering it and never scaling above 1.0. A zero-sized image or container
// yields a state with Scale 0, which Valid reports as unusable.
func RecomputeViewport(container, image Size) ViewportState {
	vs := ViewportState{
		ContainerWidth:  float64(container.Width),
		ContainerHeight: float64(container.Height),
		ImageWidth:      float64(image.Width),
		ImageHeight:     float64(image.Height),
	}
	if image.Width <= 0 || image.Height <= 0 || container.Width <= 0 || container.Height <= 0 {
		return vs
	}

	vs.Scale = min(vs.ContainerWidth/vs.ImageWidth, vs.ContainerHeight/vs.ImageHeight, 1.0)
	vs.OffsetX = (vs.ContainerWidth - vs.ImageWidth*vs.Scale) / 2
	vs.OffsetY = (vs.ContainerHeight - vs.ImageHeight*vs.Scale) / 2
	return vs
}

// Valid reports whether the forward and inverse transforms are defined
func (vs ViewportState) Valid() bool {
	return vs.Scale > 0
}

// Matrix returns the floor-plan to screen transform: translate after scale
func (vs ViewportState) Matrix() AffineMatrix {
	return Translate(vs.OffsetX, vs.OffsetY).Mul(Scale(vs.Scale, vs.Scale))
}

// Forward maps a floor-plan-intrinsic point to screen space
func (vs ViewportState) Forward(p Point) Point {
	return vs.Matrix().Apply(p)
}

// Inverse maps a screen point to floor-plan-intrinsic space. The second return
// value is false when the state has no usable scale.
func (vs ViewportState) Inverse(s Point) (Point, bool) {
	if !vs.Valid() {
		return Point{}, false
	}
	inv, ok := vs.Matrix().Inverse()
	if !ok {
		return Point{}, false
	}
	return inv.Apply(s), true
}

// Bounds returns the screen-space rectangle occupied by the scaled image
func (vs ViewportState) Bounds() Rect {
	return Rect{
		X:      vs.OffsetX,
		Y:      vs.OffsetY,
		Width:  vs.ImageWidth * vs.Scale,
		Height: vs.ImageHeight * vs.Scale,
	}
}

// Container returns the viewing surface size rounded to whole pixels
func (vs ViewportState) Container() Size {
	return Size{Width: int(vs.ContainerWidth), Height: int(vs.ContainerHeight)}
}
