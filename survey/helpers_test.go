package survey

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"sync"
	"testing"
)

// testPNG encodes a solid w x h PNG
func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{200, 200, 255, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding test PNG: %v", err)
	}
	return buf.Bytes()
}

func testDataURL(t *testing.T, w, h int) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(testPNG(t, w, h))
}

// fakeBackend is an in-memory Transport that behaves like the survey backend
type fakeBackend struct {
	mu sync.Mutex

	floorPlan    *FloorPlan
	measurements []MeasurementPoint
	nextID       int
	rssi         *int
	wifiError    string

	failUpload  bool
	failMeasure bool
	failHeatMap bool
	failReset   bool
	failRestore bool

	// block, when set, is received from before /wifi/info answers
	block chan struct{}

	calls []string
}

func newFakeBackend() *fakeBackend {
	rssi := -55
	return &fakeBackend{nextID: 1, rssi: &rssi}
}

func (f *fakeBackend) setRSSI(v *int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rssi = v
}

func (f *fakeBackend) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeBackend) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func jsonResponse(code int, v any) *Response {
	data, _ := json.Marshal(v)
	return &Response{StatusCode: code, ContentType: "application/json", Body: data}
}

func (f *fakeBackend) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	f.record("GET " + path)

	if path == "/wifi/info" && f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch path {
	case "/wifi/info":
		if f.failMeasure {
			return nil, fmt.Errorf("connection refused")
		}
		info := WifiInfo{RSSI: f.rssi, SSID: "office", Error: f.wifiError}
		return jsonResponse(http.StatusOK, info), nil
	case "/floor-plan":
		if f.floorPlan == nil {
			return jsonResponse(http.StatusNotFound, map[string]string{"error": "No floor plan uploaded"}), nil
		}
		return jsonResponse(http.StatusOK, f.floorPlan), nil
	case "/measurements":
		return jsonResponse(http.StatusOK, f.measurements), nil
	case "/heatmap":
		if f.failHeatMap {
			return jsonResponse(http.StatusInternalServerError, map[string]string{"error": "interpolation failed"}), nil
		}
		return &Response{StatusCode: http.StatusOK, ContentType: "image/png", Body: []byte("\x89PNG-heatmap-" + query.Get("method"))}, nil
	}
	return jsonResponse(http.StatusNotFound, map[string]string{"error": "not found"}), nil
}

func (f *fakeBackend) Post(ctx context.Context, path, contentType string, body io.Reader) (*Response, error) {
	f.record("POST " + path)
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch path {
	case "/floor-plan":
		if f.failUpload {
			return nil, fmt.Errorf("connection reset")
		}
		req, _ := http.NewRequest(http.MethodPost, "/", bytes.NewReader(data))
		req.Header.Set("Content-Type", contentType)
		file, _, err := req.FormFile("file")
		if err != nil {
			return jsonResponse(http.StatusBadRequest, map[string]string{"error": err.Error()}), nil
		}
		raw, _ := io.ReadAll(file)
		img, _, err := image.DecodeConfig(bytes.NewReader(raw))
		if err != nil {
			return jsonResponse(http.StatusBadRequest, map[string]string{"error": err.Error()}), nil
		}
		f.floorPlan = &FloorPlan{
			ImageData: "data:image/png;base64," + base64.StdEncoding.EncodeToString(raw),
			Width:     img.Width,
			Height:    img.Height,
		}
		return jsonResponse(http.StatusOK, FloorPlan{Width: img.Width, Height: img.Height}), nil
	case "/measurements":
		if f.failMeasure {
			return nil, fmt.Errorf("connection refused")
		}
		var m NewMeasurement
		if err := json.Unmarshal(data, &m); err != nil {
			return jsonResponse(http.StatusBadRequest, map[string]string{"error": err.Error()}), nil
		}
		p := MeasurementPoint{ID: f.nextID, X: m.X, Y: m.Y, RSSI: m.RSSI}
		f.nextID++
		f.measurements = append(f.measurements, p)
		return jsonResponse(http.StatusCreated, p), nil
	case "/reset":
		if f.failReset {
			return jsonResponse(http.StatusInternalServerError, map[string]string{"error": "disk full"}), nil
		}
		f.floorPlan = nil
		f.measurements = nil
		return jsonResponse(http.StatusOK, map[string]string{"status": "ok"}), nil
	case "/session":
		return jsonResponse(http.StatusOK, savedSession{FloorPlan: f.floorPlan, Measurements: f.measurements}), nil
	}
	return jsonResponse(http.StatusNotFound, map[string]string{"error": "not found"}), nil
}

// savedSession is the blob the fake backend hands out for /session
type savedSession struct {
	FloorPlan    *FloorPlan         `json:"floorPlan"`
	Measurements []MeasurementPoint `json:"measurements"`
}

func (f *fakeBackend) Put(ctx context.Context, path, contentType string, body io.Reader) (*Response, error) {
	f.record("PUT " + path)
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if path != "/session" {
		return jsonResponse(http.StatusNotFound, map[string]string{"error": "not found"}), nil
	}
	if f.failRestore {
		return jsonResponse(http.StatusBadRequest, map[string]string{"error": "unknown session format"}), nil
	}
	var saved savedSession
	if err := json.Unmarshal(data, &saved); err != nil {
		return jsonResponse(http.StatusBadRequest, map[string]string{"error": err.Error()}), nil
	}
	f.floorPlan = saved.FloorPlan
	f.measurements = saved.Measurements
	return jsonResponse(http.StatusOK, map[string]string{"message": "Session loaded"}), nil
}

// eventRecorder is an Observer that keeps every event
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) OnSessionEvent(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}
