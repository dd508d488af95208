package survey

import (
	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// MeasurementStore holds accepted measurements in insertion order.
// It is not safe for concurrent use; SessionController serializes access.
type MeasurementStore struct {
	points []MeasurementPoint
}

// NewMeasurementStore creates an empty store
func NewMeasurementStore() *MeasurementStore {
	return &MeasurementStore{}
}

// Append adds a backend-accepted measurement
func (s *MeasurementStore) Append(p MeasurementPoint) {
	s.points = append(s.points, p)
}

// Replace swaps the whole collection, used when loading from the backend
func (s *MeasurementStore) Replace(points []MeasurementPoint) {
	s.points = append([]MeasurementPoint(nil), points...)
}

// Clear empties the store
func (s *MeasurementStore) Clear() {
	s.points = nil
}

// Count returns the number of stored measurements
func (s *MeasurementStore) Count() int {
	return len(s.points)
}

// Points returns a copy of the stored measurements
func (s *MeasurementStore) Points() []MeasurementPoint {
	out := make([]MeasurementPoint, len(s.points))
	copy(out, s.points)
	return out
}

// Extent returns the floor-plan-space bounding box of all measurements.
// The second return value is false when the store is empty.
func (s *MeasurementStore) Extent() (Rect, bool) {
	if len(s.points) == 0 {
		return Rect{}, false
	}

	mp := make(orb.MultiPoint, 0, len(s.points))
	for _, p := range s.points {
		mp = append(mp, orb.Point{float64(p.X), float64(p.Y)})
	}
	b := mp.Bound()
	return Rect{X: b.Min[0], Y: b.Min[1], Width: b.Max[0] - b.Min[0], Height: b.Max[1] - b.Min[1]}, true
}

// Summary computes RSSI statistics over the stored measurements
func (s *MeasurementStore) Summary() SignalSummary {
	if len(s.points) == 0 {
		return SignalSummary{}
	}

	values := make([]float64, len(s.points))
	for i, p := range s.points {
		values[i] = float64(p.RSSI)
	}

	summary := SignalSummary{
		Count: len(values),
		Min:   int(floats.Min(values)),
		Max:   int(floats.Max(values)),
	}
	if len(values) > 1 {
		summary.Mean, summary.StdDev = stat.MeanStdDev(values, nil)
	} else {
		summary.Mean = values[0]
	}
	return summary
}
