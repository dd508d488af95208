package survey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
)

// Status lines shown to the user
const (
	StatusInitial     = "Click on the floor plan to measure WiFi signal"
	StatusUploading   = "Uploading floor plan..."
	StatusUploaded    = "Floor plan uploaded. Click anywhere to measure WiFi signal."
	StatusMeasuring   = "Measuring WiFi signal..."
	StatusGenerating  = "Generating heat map..."
	StatusHeatMap     = "Heat map generated"
	StatusResetting   = "Resetting all data..."
	StatusReady       = "Ready"
	StatusRestoring   = "Loading saved session..."
	StatusRestored    = "Session loaded"
	StatusQueueFull   = "Measurement already queued"
	heatMapButtonText = "Generate Heat Map"
)

// Alert texts for transport failures
const (
	AlertUpload  = "Failed to upload floor plan"
	AlertHeatMap = "Failed to generate heat map"
	AlertReset   = "Failed to reset data"
	AlertRestore = "Failed to load session"
)

// ClickOutcome describes what happened to a pointer click
type ClickOutcome int

const (
	// ClickIgnored means no image was loaded or the click fell outside it
	ClickIgnored ClickOutcome = iota
	// ClickQueued means the click waits behind the in-flight measurement
	ClickQueued
	// ClickMeasured means the caller ran the measurement and any queued one after it
	ClickMeasured
	// ClickRejected means the click could not be accepted in the current phase
	ClickRejected
)

func (o ClickOutcome) String() string {
	switch o {
	case ClickQueued:
		return "queued"
	case ClickMeasured:
		return "measured"
	case ClickRejected:
		return "rejected"
	default:
		return "ignored"
	}
}

// EventKind classifies session notifications
type EventKind string

const (
	EventStatus      EventKind = "status"
	EventFloorPlan   EventKind = "floor_plan"
	EventMeasurement EventKind = "measurement"
	EventHeatMap     EventKind = "heatmap"
	EventReset       EventKind = "reset"
	EventResize      EventKind = "resize"
)

// Event is delivered to observers after every transition
type Event struct {
	Kind        EventKind         `json:"kind"`
	Snapshot    Snapshot          `json:"snapshot"`
	Measurement *MeasurementPoint `json:"measurement,omitempty"`
}

// Observer receives session events. Observers are called outside the session
// lock, in transition order for a single caller.
type Observer interface {
	OnSessionEvent(ev Event)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(ev Event)

// OnSessionEvent calls f(ev)
func (f ObserverFunc) OnSessionEvent(ev Event) { f(ev) }

// Snapshot is an immutable view of the session for display
type Snapshot struct {
	Phase          string        `json:"phase"`
	Status         string        `json:"status"`
	Alert          string        `json:"alert,omitempty"`
	Count          int           `json:"count"`
	HeatMapEnabled bool          `json:"heatMapEnabled"`
	HeatMapLabel   string        `json:"heatMapLabel"`
	ResetEnabled   bool          `json:"resetEnabled"`
	Viewport       ViewportState `json:"viewport"`
	Bounds         Rect          `json:"bounds"`
	FloorPlan      *Size         `json:"floorPlan,omitempty"`
	OverlayMethod  string        `json:"overlayMethod,omitempty"`
	Queued         int           `json:"queued"`
	Summary        SignalSummary `json:"summary"`
	Extent         *Rect         `json:"extent,omitempty"`
}

// SessionOptions configures a session
type SessionOptions struct {
	Container     Size
	HeatMapMethod string
	MinPoints     int
}

// Session is the SessionController: it owns the floor plan, the measurement
// store and the viewport, and drives them from user and network events.
type Session struct {
	client *Client
	opts   SessionOptions

	mu         sync.Mutex
	phase      Phase
	status     string
	alert      string
	store      *MeasurementStore
	container  Size
	viewport   ViewportState
	queue      *measurementQueue
	generation uint64

	obsMu     sync.RWMutex
	observers []Observer
}

// NewSession creates an idle session talking to the backend through t
func NewSession(t Transport, opts SessionOptions) *Session {
	if opts.HeatMapMethod == "" {
		opts.HeatMapMethod = DefaultHeatMapMethod
	}
	if opts.MinPoints <= 0 {
		opts.MinPoints = MinHeatMapPoints
	}
	return &Session{
		client:    NewClient(t),
		opts:      opts,
		phase:     Idle{},
		status:    StatusInitial,
		store:     NewMeasurementStore(),
		container: opts.Container,
		queue:     &measurementQueue{},
	}
}

// Client returns the backend client used by the session
func (s *Session) Client() *Client {
	return s.client
}

// AddObserver registers an observer for session events
func (s *Session) AddObserver(o Observer) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.observers = append(s.observers, o)
}

// Load fetches the stored floor plan and measurements. A missing floor plan is
// normal; measurement load failures are logged and do not raise an alert.
func (s *Session) Load(ctx context.Context) error {
	s.mu.Lock()
	if _, ok := s.phase.(Idle); !ok {
		s.mu.Unlock()
		return fmt.Errorf("load: %w from %s", ErrInvalidTransition, s.phase.Name())
	}
	gen := s.generation
	s.mu.Unlock()

	plan, points := s.fetchState(ctx)

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return ErrSuperseded
	}
	if points != nil {
		s.store.Replace(points)
	}
	if plan != nil {
		s.phase = Ready{Plan: plan}
	}
	s.recomputeLocked()
	ev := s.eventLocked(EventFloorPlan, nil)
	s.mu.Unlock()

	s.notify(ev)
	return nil
}

// fetchState reads the stored floor plan and measurements. Either result is
// nil when the backend has none or the read failed.
func (s *Session) fetchState(ctx context.Context) (*FloorPlan, []MeasurementPoint) {
	var plan *FloorPlan
	fp, err := s.client.FloorPlan(ctx)
	switch {
	case errors.Is(err, ErrNotFound):
		log.Println("No floor plan stored yet")
	case err != nil:
		log.Printf("Error loading floor plan: %v", err)
	default:
		if err := DecodeFloorPlan(fp); err != nil {
			log.Printf("Error decoding floor plan: %v", err)
		} else {
			plan = fp
		}
	}

	points, err := s.client.Measurements(ctx)
	if err != nil {
		log.Printf("Error loading measurements: %v", err)
	}
	return plan, points
}

// SaveSession returns the backend's snapshot of the survey, suitable for
// RestoreSession. Local state is unchanged.
func (s *Session) SaveSession(ctx context.Context) (json.RawMessage, error) {
	blob, err := s.client.SaveSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return blob, nil
}

// RestoreSession replaces the backend state with a saved blob and reloads the
// floor plan and measurements from it. Requests in flight from before the
// restore are discarded.
func (s *Session) RestoreSession(ctx context.Context, blob json.RawMessage) error {
	s.mu.Lock()
	switch s.phase.(type) {
	case Idle, Ready, HeatMapShown:
	default:
		s.mu.Unlock()
		return fmt.Errorf("restore: %w from %s", ErrInvalidTransition, s.phase.Name())
	}
	from := s.phase
	prior := s.status
	gen := s.generation
	s.phase = Restoring{From: from}
	s.status = StatusRestoring
	ev := s.eventLocked(EventStatus, nil)
	s.mu.Unlock()
	s.notify(ev)

	err := s.client.LoadSession(ctx, blob)

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		log.Printf("Discarding session restore result: session was reset")
		return ErrSuperseded
	}
	if err != nil {
		log.Printf("Error loading session: %v", err)
		s.phase = from
		s.alert = AlertRestore
		s.status = prior
		ev = s.eventLocked(EventStatus, nil)
		s.mu.Unlock()
		s.notify(ev)
		return fmt.Errorf("restore session: %w", err)
	}
	s.generation++
	gen = s.generation
	s.queue = &measurementQueue{}
	s.mu.Unlock()

	plan, points := s.fetchState(ctx)

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return ErrSuperseded
	}
	s.store.Replace(points)
	s.phase = Idle{}
	if plan != nil {
		s.phase = Ready{Plan: plan}
	}
	s.status = StatusRestored
	s.recomputeLocked()
	ev = s.eventLocked(EventFloorPlan, nil)
	s.mu.Unlock()
	s.notify(ev)
	return nil
}

// Resize records a new viewing surface size and recomputes the viewport
func (s *Session) Resize(width, height int) {
	s.mu.Lock()
	s.container = Size{Width: width, Height: height}
	s.recomputeLocked()
	ev := s.eventLocked(EventResize, nil)
	s.mu.Unlock()

	s.notify(ev)
}

// Upload validates and uploads a floor-plan image, then re-reads it from the
// backend to obtain the stored image data.
func (s *Session) Upload(ctx context.Context, name string, data []byte) error {
	if err := ValidateUpload(name, int64(len(data))); err != nil {
		s.setStatus(err.Error())
		return err
	}

	s.mu.Lock()
	switch s.phase.(type) {
	case Idle, Ready, HeatMapShown:
	default:
		s.mu.Unlock()
		return fmt.Errorf("upload: %w from %s", ErrInvalidTransition, s.phase.Name())
	}
	from := s.phase
	gen := s.generation
	s.phase = Uploading{From: from}
	s.status = StatusUploading
	ev := s.eventLocked(EventStatus, nil)
	s.mu.Unlock()
	s.notify(ev)

	plan, err := s.uploadAndFetch(ctx, name, data)

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		log.Printf("Discarding floor plan upload result: session was reset")
		return ErrSuperseded
	}
	if err != nil {
		log.Printf("Error uploading floor plan: %v", err)
		s.phase = from
		s.alert = AlertUpload
		s.status = StatusReady
		if _, idle := from.(Idle); idle {
			s.status = StatusInitial
		}
		s.recomputeLocked()
		ev = s.eventLocked(EventStatus, nil)
		s.mu.Unlock()
		s.notify(ev)
		return fmt.Errorf("upload floor plan: %w", err)
	}

	s.phase = Ready{Plan: plan}
	s.status = StatusUploaded
	s.recomputeLocked()
	ev = s.eventLocked(EventFloorPlan, nil)
	s.mu.Unlock()
	s.notify(ev)
	return nil
}

func (s *Session) uploadAndFetch(ctx context.Context, name string, data []byte) (*FloorPlan, error) {
	uploaded, err := s.client.UploadFloorPlan(ctx, name, data)
	if err != nil {
		return nil, err
	}

	fp, err := s.client.FloorPlan(ctx)
	if err != nil {
		// Fall back to the upload response when it already carries the image
		log.Printf("Warning: re-reading floor plan failed: %v", err)
		fp = uploaded
	}
	if err := DecodeFloorPlan(fp); err != nil {
		return nil, err
	}
	return fp, nil
}

// Click handles a pointer click at a screen position. Clicks with no image or
// outside the image are ignored. An accepted click is measured by the calling
// goroutine, which also drains a click queued behind it; a click arriving while
// one is in flight is queued, and one more beyond that is rejected.
func (s *Session) Click(ctx context.Context, pointer Point) (ClickOutcome, error) {
	s.mu.Lock()
	plan := planOf(s.phase)
	x, y, ok := MapClick(s.viewport, plan != nil && plan.Image() != nil, pointer)
	if !ok {
		s.mu.Unlock()
		return ClickIgnored, nil
	}

	switch s.phase.(type) {
	case Ready, Measuring:
	default:
		s.mu.Unlock()
		return ClickRejected, fmt.Errorf("measure: %w from %s", ErrInvalidTransition, s.phase.Name())
	}

	req := newMeasurementRequest(x, y)
	start, err := s.queue.Offer(req)
	if err != nil {
		s.status = StatusQueueFull
		ev := s.eventLocked(EventStatus, nil)
		s.mu.Unlock()
		s.notify(ev)
		return ClickRejected, err
	}
	if !start {
		log.Printf("[DEBUG] Measurement %s at (%d, %d) queued", req.ID, x, y)
		ev := s.eventLocked(EventStatus, nil)
		s.mu.Unlock()
		s.notify(ev)
		return ClickQueued, nil
	}

	q := s.queue
	s.phase = Measuring{Plan: plan}
	s.status = StatusMeasuring
	ev := s.eventLocked(EventStatus, nil)
	s.mu.Unlock()
	s.notify(ev)

	var result error
	for cur, first := &req, true; cur != nil; first = false {
		// Queued clicks belong to other callers and outlive this one's context
		mctx := ctx
		if !first {
			mctx = context.WithoutCancel(ctx)
		}
		point, err := s.measure(mctx, *cur)
		if first {
			result = err
		}

		s.mu.Lock()
		if q != s.queue {
			s.mu.Unlock()
			log.Printf("Discarding measurement %s: session was reset", cur.ID)
			if first {
				result = ErrSuperseded
			}
			return ClickMeasured, result
		}

		kind := EventStatus
		if err != nil {
			log.Printf("Error taking measurement %s: %v", cur.ID, err)
			s.alert = fmt.Sprintf("Failed to take measurement: %s", err.Error())
			s.status = StatusReady
			point = nil
		} else {
			s.store.Append(*point)
			s.status = fmt.Sprintf("Measured %d dBm at (%d, %d)", point.RSSI, point.X, point.Y)
			kind = EventMeasurement
		}

		cur = q.Done()
		if cur == nil {
			s.phase = Ready{Plan: plan}
		}
		evs := []Event{s.eventLocked(kind, point)}
		if cur != nil {
			s.status = StatusMeasuring
			evs = append(evs, s.eventLocked(EventStatus, nil))
		}
		s.mu.Unlock()

		for _, e := range evs {
			s.notify(e)
		}
	}
	return ClickMeasured, result
}

// measure reads the platform signal and submits it. The reading must be valid
// before anything reaches the backend measurement list.
func (s *Session) measure(ctx context.Context, req measurementRequest) (*MeasurementPoint, error) {
	info, err := s.client.WifiInfo(ctx)
	if err != nil {
		return nil, err
	}

	point, err := s.client.AddMeasurement(ctx, NewMeasurement{X: req.X, Y: req.Y, RSSI: *info.RSSI})
	if err != nil {
		return nil, err
	}
	return point, nil
}

// GenerateHeatMap requests a heat map. With too few measurements the session
// stays put and reports how many more are needed; this is not an error.
func (s *Session) GenerateHeatMap(ctx context.Context, method string) error {
	if method == "" {
		method = s.opts.HeatMapMethod
	}

	s.mu.Lock()
	switch s.phase.(type) {
	case Ready, HeatMapShown:
	default:
		s.mu.Unlock()
		return fmt.Errorf("heat map: %w from %s", ErrInvalidTransition, s.phase.Name())
	}
	if need := s.opts.MinPoints - s.store.Count(); need > 0 {
		s.status = fmt.Sprintf("Need at least %d measurement points for a heat map (Need %d more points)", s.opts.MinPoints, need)
		ev := s.eventLocked(EventStatus, nil)
		s.mu.Unlock()
		s.notify(ev)
		return nil
	}

	from := s.phase
	plan := planOf(from)
	gen := s.generation
	s.phase = GeneratingHeatMap{Plan: plan}
	s.status = StatusGenerating
	ev := s.eventLocked(EventStatus, nil)
	s.mu.Unlock()
	s.notify(ev)

	overlay, err := s.client.HeatMap(ctx, method)

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		log.Printf("Discarding heat map result: session was reset")
		return ErrSuperseded
	}
	if err != nil {
		log.Printf("Error generating heat map: %v", err)
		s.phase = Ready{Plan: plan}
		s.alert = AlertHeatMap
		s.status = StatusReady
		ev = s.eventLocked(EventStatus, nil)
		s.mu.Unlock()
		s.notify(ev)
		return fmt.Errorf("generate heat map: %w", err)
	}

	s.phase = HeatMapShown{Plan: plan, Overlay: overlay}
	s.status = StatusHeatMap
	ev = s.eventLocked(EventHeatMap, nil)
	s.mu.Unlock()
	s.notify(ev)
	return nil
}

// CloseHeatMap hides the overlay and returns to Ready
func (s *Session) CloseHeatMap() error {
	s.mu.Lock()
	shown, ok := s.phase.(HeatMapShown)
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("close heat map: %w from %s", ErrInvalidTransition, s.phase.Name())
	}
	s.phase = Ready{Plan: shown.Plan}
	ev := s.eventLocked(EventStatus, nil)
	s.mu.Unlock()

	s.notify(ev)
	return nil
}

// Reset clears backend and local state. It is legal from every phase except
// an Idle session with no measurements loaded; results of requests still in
// flight are discarded afterwards.
func (s *Session) Reset(ctx context.Context) error {
	s.mu.Lock()
	_, idle := s.phase.(Idle)
	if idle && s.store.Count() == 0 {
		s.mu.Unlock()
		return fmt.Errorf("reset: %w from %s", ErrInvalidTransition, s.phase.Name())
	}
	prior := s.status
	s.status = StatusResetting
	ev := s.eventLocked(EventStatus, nil)
	s.mu.Unlock()
	s.notify(ev)

	err := s.client.Reset(ctx)

	s.mu.Lock()
	if err != nil {
		log.Printf("Error resetting data: %v", err)
		s.alert = AlertReset
		s.status = StatusReady
		if idle {
			s.status = prior
		}
		ev = s.eventLocked(EventStatus, nil)
		s.mu.Unlock()
		s.notify(ev)
		return fmt.Errorf("reset: %w", err)
	}

	s.generation++
	s.queue = &measurementQueue{}
	s.store.Clear()
	s.phase = Idle{}
	s.status = StatusInitial
	s.recomputeLocked()
	ev = s.eventLocked(EventReset, nil)
	s.mu.Unlock()
	s.notify(ev)
	return nil
}

// DismissAlert clears the current alert
func (s *Session) DismissAlert() {
	s.mu.Lock()
	s.alert = ""
	ev := s.eventLocked(EventStatus, nil)
	s.mu.Unlock()

	s.notify(ev)
}

// Hover returns the cursor for a pointer at a screen position
func (s *Session) Hover(pointer Point) Cursor {
	s.mu.Lock()
	defer s.mu.Unlock()
	plan := planOf(s.phase)
	return CursorAt(s.viewport, plan != nil && plan.Image() != nil, pointer)
}

// HeatMapControl reports whether heat-map generation is enabled and its label
func (s *Session) HeatMapControl() (enabled bool, label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heatMapControlLocked()
}

// ResetEnabled reports whether the reset control is enabled. It enables once
// measurements exist, including ones loaded without a floor plan.
func (s *Session) ResetEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Count() > 0
}

// Phase returns the current phase
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Overlay returns the shown heat map, or nil
func (s *Session) Overlay() *HeatMapOverlay {
	s.mu.Lock()
	defer s.mu.Unlock()
	if shown, ok := s.phase.(HeatMapShown); ok {
		return shown.Overlay
	}
	return nil
}

// Measurements returns a copy of the stored measurements
func (s *Session) Measurements() []MeasurementPoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Points()
}

// Snapshot returns an immutable view of the session
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Frame returns the render input for the current viewport
func (s *Session) Frame() Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frameLocked(s.viewport)
}

// FrameFor returns the render input for another container size without
// changing the session viewport
func (s *Session) FrameFor(container Size) Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frameLocked(RecomputeViewport(container, s.imageSizeLocked()))
}

func (s *Session) frameLocked(vs ViewportState) Frame {
	return Frame{
		Viewport: vs,
		Image:    planOf(s.phase).Image(),
		Points:   s.store.Points(),
	}
}

func (s *Session) setStatus(status string) {
	s.mu.Lock()
	s.status = status
	ev := s.eventLocked(EventStatus, nil)
	s.mu.Unlock()

	s.notify(ev)
}

func (s *Session) imageSizeLocked() Size {
	if plan := planOf(s.phase); plan != nil {
		return plan.Size()
	}
	return Size{}
}

// recomputeLocked derives the viewport from scratch; it is never patched
func (s *Session) recomputeLocked() {
	s.viewport = RecomputeViewport(s.container, s.imageSizeLocked())
}

func (s *Session) heatMapControlLocked() (bool, string) {
	need := s.opts.MinPoints - s.store.Count()
	if need > 0 {
		return false, fmt.Sprintf("%s (Need %d more points)", heatMapButtonText, need)
	}
	return true, heatMapButtonText
}

func (s *Session) snapshotLocked() Snapshot {
	enabled, label := s.heatMapControlLocked()
	snap := Snapshot{
		Phase:          s.phase.Name(),
		Status:         s.status,
		Alert:          s.alert,
		Count:          s.store.Count(),
		HeatMapEnabled: enabled,
		HeatMapLabel:   label,
		ResetEnabled:   s.store.Count() > 0,
		Viewport:       s.viewport,
		Bounds:         s.viewport.Bounds(),
		Queued:         s.queue.Len(),
		Summary:        s.store.Summary(),
	}
	if extent, ok := s.store.Extent(); ok {
		snap.Extent = &extent
	}
	if plan := planOf(s.phase); plan != nil {
		size := plan.Size()
		snap.FloorPlan = &size
	}
	if shown, ok := s.phase.(HeatMapShown); ok && shown.Overlay != nil {
		snap.OverlayMethod = shown.Overlay.Method
	}
	return snap
}

func (s *Session) eventLocked(kind EventKind, m *MeasurementPoint) Event {
	ev := Event{Kind: kind, Snapshot: s.snapshotLocked()}
	if m != nil {
		cp := *m
		ev.Measurement = &cp
	}
	return ev
}

func (s *Session) notify(ev Event) {
	s.obsMu.RLock()
	observers := make([]Observer, len(s.observers))
	copy(observers, s.observers)
	s.obsMu.RUnlock()

	for _, o := range observers {
		o.OnSessionEvent(ev)
	}
}
