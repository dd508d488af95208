package survey

// Phase is the closed set of session states. Every phase past Idle carries the
// floor plan, so a phase without one cannot be constructed.
type Phase interface {
	Name() string
	isPhase()
}

// Idle has no floor plan
type Idle struct{}

// Uploading has a floor-plan upload in flight. From is the stable phase to
// return to if the upload fails.
type Uploading struct {
	From Phase
}

// Restoring has a saved session being loaded into the backend. From is the
// stable phase to return to if the restore fails.
type Restoring struct {
	From Phase
}

// Ready has a floor plan loaded and nothing in flight
type Ready struct {
	Plan *FloorPlan
}

// Measuring has a measurement request in flight
type Measuring struct {
	Plan *FloorPlan
}

// GeneratingHeatMap has a heat-map request in flight
type GeneratingHeatMap struct {
	Plan *FloorPlan
}

// HeatMapShown displays a generated overlay
type HeatMapShown struct {
	Plan    *FloorPlan
	Overlay *HeatMapOverlay
}

func (Idle) Name() string              { return "idle" }
func (Uploading) Name() string         { return "uploading" }
func (Restoring) Name() string         { return "restoring" }
func (Ready) Name() string             { return "ready" }
func (Measuring) Name() string         { return "measuring" }
func (GeneratingHeatMap) Name() string { return "generating_heatmap" }
func (HeatMapShown) Name() string      { return "heatmap_shown" }

func (Idle) isPhase()              {}
func (Uploading) isPhase()         {}
func (Restoring) isPhase()         {}
func (Ready) isPhase()             {}
func (Measuring) isPhase()         {}
func (GeneratingHeatMap) isPhase() {}
func (HeatMapShown) isPhase()      {}

// planOf returns the floor plan carried by a phase, or nil
func planOf(p Phase) *FloorPlan {
	switch v := p.(type) {
	case Ready:
		return v.Plan
	case Measuring:
		return v.Plan
	case GeneratingHeatMap:
		return v.Plan
	case HeatMapShown:
		return v.Plan
	case Uploading:
		return planOf(v.From)
	case Restoring:
		return planOf(v.From)
	default:
		return nil
	}
}
