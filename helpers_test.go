package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/kwv/wifisurvey/survey"
)

// testPNG encodes a solid w x h PNG
func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{220, 220, 220, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding test PNG: %v", err)
	}
	return buf.Bytes()
}

// fakeAPI is an in-memory survey backend served under /api
type fakeAPI struct {
	mu           sync.Mutex
	floorPlan    *survey.FloorPlan
	measurements []survey.MeasurementPoint
	nextID       int
	rssi         int
	uploads      int
	failHeatMap  bool
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()
	api := &fakeAPI{nextID: 1, rssi: -55}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return api, srv
}

// seedFloorPlan stores a w x h plan as if it had been uploaded
func (f *fakeAPI) seedFloorPlan(t *testing.T, w, h int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.floorPlan = &survey.FloorPlan{
		ImageData: "data:image/png;base64," + base64.StdEncoding.EncodeToString(testPNG(t, w, h)),
		Width:     w,
		Height:    h,
	}
}

func (f *fakeAPI) seedMeasurements(rssi ...int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, v := range rssi {
		f.measurements = append(f.measurements, survey.MeasurementPoint{ID: f.nextID, X: 10 * (i + 1), Y: 10, RSSI: v})
		f.nextID++
	}
}

func (f *fakeAPI) setFailHeatMap(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failHeatMap = fail
}

func (f *fakeAPI) points() []survey.MeasurementPoint {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]survey.MeasurementPoint(nil), f.measurements...)
}

func (f *fakeAPI) hasFloorPlan() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.floorPlan != nil
}

func (f *fakeAPI) uploadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploads
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method + " " + r.URL.Path {
	case "GET /api/floor-plan":
		if f.floorPlan == nil {
			apiJSON(w, http.StatusNotFound, map[string]string{"error": "No floor plan found"})
			return
		}
		apiJSON(w, http.StatusOK, f.floorPlan)

	case "POST /api/floor-plan":
		file, _, err := r.FormFile("file")
		if err != nil {
			apiJSON(w, http.StatusBadRequest, map[string]string{"error": "No file part"})
			return
		}
		data, _ := io.ReadAll(file)
		cfg, err := png.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			apiJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid image"})
			return
		}
		f.uploads++
		f.floorPlan = &survey.FloorPlan{
			ImageData: "data:image/png;base64," + base64.StdEncoding.EncodeToString(data),
			Width:     cfg.Width,
			Height:    cfg.Height,
		}
		apiJSON(w, http.StatusOK, f.floorPlan)

	case "GET /api/measurements":
		points := make([]survey.MeasurementPoint, len(f.measurements))
		copy(points, f.measurements)
		apiJSON(w, http.StatusOK, points)

	case "POST /api/measurements":
		var m survey.NewMeasurement
		if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
			apiJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid measurement"})
			return
		}
		point := survey.MeasurementPoint{ID: f.nextID, X: m.X, Y: m.Y, RSSI: m.RSSI}
		f.nextID++
		f.measurements = append(f.measurements, point)
		apiJSON(w, http.StatusOK, point)

	case "GET /api/wifi/info":
		apiJSON(w, http.StatusOK, map[string]any{"RSSI": f.rssi, "SSID": "survey-test"})

	case "GET /api/heatmap":
		if f.failHeatMap {
			apiJSON(w, http.StatusInternalServerError, map[string]string{"error": "interpolation failed"})
			return
		}
		w.Header().Set("Content-Type", "image/png")
		var buf bytes.Buffer
		_ = png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4)))
		_, _ = w.Write(buf.Bytes())

	case "GET /api/signal-chart":
		w.Header().Set("Content-Type", "image/png")
		var buf bytes.Buffer
		_ = png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 6)))
		_, _ = w.Write(buf.Bytes())

	case "POST /api/session":
		apiJSON(w, http.StatusOK, savedSession{FloorPlan: f.floorPlan, Measurements: f.measurements})

	case "PUT /api/session":
		var saved savedSession
		if err := json.NewDecoder(r.Body).Decode(&saved); err != nil {
			apiJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid session"})
			return
		}
		f.floorPlan = saved.FloorPlan
		f.measurements = saved.Measurements
		apiJSON(w, http.StatusOK, map[string]string{"message": "Session loaded"})

	case "POST /api/reset":
		f.floorPlan = nil
		f.measurements = nil
		apiJSON(w, http.StatusOK, map[string]string{"message": "All data reset"})

	default:
		apiJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	}
}

// savedSession is the blob fakeAPI hands out for /api/session
type savedSession struct {
	FloorPlan    *survey.FloorPlan         `json:"floorPlan"`
	Measurements []survey.MeasurementPoint `json:"measurements"`
}

func apiJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// newTestSession returns a loaded session in an 80x60 container
func newTestSession(t *testing.T, srv *httptest.Server) *survey.Session {
	t.Helper()
	transport, err := survey.NewHTTPTransport(srv.URL+"/api", survey.WithMaxRetries(1))
	if err != nil {
		t.Fatalf("NewHTTPTransport() error = %v", err)
	}
	session := survey.NewSession(transport, survey.SessionOptions{Container: survey.Size{Width: 80, Height: 60}})
	if err := session.Load(t.Context()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return session
}

// newTestApp returns an App configured against srv with an 80x60 viewport
func newTestApp(t *testing.T, srv *httptest.Server, opts AppOptions) (*App, *bytes.Buffer) {
	t.Helper()
	t.Setenv("WIFISURVEY_BACKEND_URL", "")
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := "backend:\n  url: " + srv.URL + "/api\n  maxRetries: 1\n" +
		"viewport:\n  width: 80\n  height: 60\n" +
		"http:\n  port: 0\n"
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	if opts.ConfigFile == "" {
		opts.ConfigFile = configPath
	}
	if opts.RenderFormat == "" {
		opts.RenderFormat = "raster"
	}

	app := NewApp()
	var out bytes.Buffer
	app.Out = &out
	app.ApplyOptions(opts)
	return app, &out
}
