package survey

import (
	"image"

	"github.com/paulmach/orb"
)

// Point represents a 2D coordinate. Whether it is screen space or
// floor-plan-intrinsic space depends on where it came from.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size represents a width/height pair in pixels
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Rect is an axis-aligned rectangle in screen space
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Bound converts the rectangle to an orb.Bound
func (r Rect) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{r.X, r.Y},
		Max: orb.Point{r.X + r.Width, r.Y + r.Height},
	}
}

// Contains reports whether p lies inside the rectangle, edges included
func (r Rect) Contains(p Point) bool {
	return r.Bound().Contains(orb.Point{p.X, p.Y})
}

// FloorPlan is the floor-plan image as served by the backend.
// ImageData is a data URL or bare base64 payload.
type FloorPlan struct {
	ImageData string `json:"imageData,omitempty"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`

	// image is the decoded raster. It is set by DecodeFloorPlan and never
	// changed afterwards.
	image image.Image
}

// Image returns the decoded floor-plan raster, or nil if the plan was not decoded
func (fp *FloorPlan) Image() image.Image {
	if fp == nil {
		return nil
	}
	return fp.image
}

// Size returns the intrinsic pixel dimensions
func (fp *FloorPlan) Size() Size {
	return Size{Width: fp.Width, Height: fp.Height}
}

// MeasurementPoint is an accepted signal sample. X and Y are floor-plan-intrinsic
// pixel coordinates, never screen coordinates.
type MeasurementPoint struct {
	ID   int `json:"id"`
	X    int `json:"x"`
	Y    int `json:"y"`
	RSSI int `json:"rssi"`
}

// Position returns the point in floor-plan-intrinsic space
func (m MeasurementPoint) Position() Point {
	return Point{X: float64(m.X), Y: float64(m.Y)}
}

// NewMeasurement is the body of a measurement submission
type NewMeasurement struct {
	X    int `json:"x"`
	Y    int `json:"y"`
	RSSI int `json:"rssi"`
}

// WifiInfo is the platform signal read. Only RSSI is required; the rest is
// informational and may be absent.
type WifiInfo struct {
	RSSI    *int   `json:"RSSI,omitempty"`
	Noise   *int   `json:"Noise,omitempty"`
	SSID    string `json:"SSID,omitempty"`
	Channel string `json:"Channel,omitempty"`
	TxRate  string `json:"Tx Rate,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HeatMapOverlay is a generated heat-map raster. It carries no geometry of
// its own and lives only while shown.
type HeatMapOverlay struct {
	Method      string `json:"method"`
	ContentType string `json:"contentType"`
	Data        []byte `json:"-"`
}

// SignalSummary holds aggregate statistics over stored measurements
type SignalSummary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stdDev"`
	Min    int     `json:"min"`
	Max    int     `json:"max"`
}
