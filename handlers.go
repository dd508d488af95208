package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/kwv/wifisurvey/survey"
)

// maxSessionBytes bounds a saved session body accepted by PUT /session
const maxSessionBytes = 64 << 20

// newHTTPServer creates the preview server with all endpoints. hub may be nil,
// which disables /ws; mqttClient is nil when MQTT publishing is off.
func newHTTPServer(session *survey.Session, config *survey.Config, hub *LiveHub, mqttClient *survey.MQTTClient) http.Handler {
	if config == nil {
		config = survey.DefaultConfig()
	}
	compositor := survey.NewCompositor(config.Render)
	vector := survey.NewVectorRenderer(config.Render)

	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		snap := session.Snapshot()
		writeJSON(w, http.StatusOK, struct {
			Status       string    `json:"status"`
			Timestamp    time.Time `json:"timestamp"`
			Phase        string    `json:"phase"`
			HasFloorPlan bool      `json:"hasFloorPlan"`
			MQTT         string    `json:"mqtt"`
		}{
			Status:       "ok",
			Timestamp:    time.Now(),
			Phase:        snap.Phase,
			HasFloorPlan: snap.FloorPlan != nil,
			MQTT:         mqttState(mqttClient),
		})
	})

	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, session.Snapshot())
	})

	mux.HandleFunc("GET /measurements", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, session.Measurements())
	})

	// Rendered survey view
	mux.HandleFunc("GET /view.png", func(w http.ResponseWriter, r *http.Request) {
		frame, ok := frameFor(w, r, session)
		if !ok {
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if err := compositor.RenderPNG(w, frame); err != nil {
			log.Printf("Error encoding view PNG: %v", err)
		}
	})

	mux.HandleFunc("GET /view.svg", func(w http.ResponseWriter, r *http.Request) {
		frame, ok := frameFor(w, r, session)
		if !ok {
			return
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "no-cache")
		if err := vector.RenderToSVG(w, frame); err != nil {
			log.Printf("Error encoding view SVG: %v", err)
		}
	})

	mux.HandleFunc("POST /resize", func(w http.ResponseWriter, r *http.Request) {
		width, err := intQuery(r, "w")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		height, err := intQuery(r, "h")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		session.Resize(width, height)
		writeJSON(w, http.StatusOK, session.Snapshot())
	})

	mux.HandleFunc("GET /hover", func(w http.ResponseWriter, r *http.Request) {
		p, err := pointQuery(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"cursor": string(session.Hover(p))})
	})

	mux.HandleFunc("POST /click", func(w http.ResponseWriter, r *http.Request) {
		p, err := pointQuery(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		outcome, err := session.Click(r.Context(), p)
		if err != nil {
			writeSessionError(w, err, session)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Outcome  string          `json:"outcome"`
			Snapshot survey.Snapshot `json:"snapshot"`
		}{outcome.String(), session.Snapshot()})
	})

	// Multipart passthrough of the floor-plan file
	mux.HandleFunc("POST /floor-plan", func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, survey.MaxUploadBytes+1<<20)
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "No file provided", http.StatusBadRequest)
			return
		}
		defer func() { _ = file.Close() }()

		data, err := io.ReadAll(file)
		if err != nil {
			http.Error(w, "Failed to read file", http.StatusBadRequest)
			return
		}
		if err := session.Upload(r.Context(), header.Filename, data); err != nil {
			writeSessionError(w, err, session)
			return
		}
		writeJSON(w, http.StatusOK, session.Snapshot())
	})

	mux.HandleFunc("POST /heatmap", func(w http.ResponseWriter, r *http.Request) {
		if err := session.GenerateHeatMap(r.Context(), r.URL.Query().Get("method")); err != nil {
			writeSessionError(w, err, session)
			return
		}
		writeJSON(w, http.StatusOK, session.Snapshot())
	})

	mux.HandleFunc("GET /heatmap.png", func(w http.ResponseWriter, r *http.Request) {
		overlay := session.Overlay()
		if overlay == nil {
			http.Error(w, "No heat map generated", http.StatusNotFound)
			return
		}
		contentType := overlay.ContentType
		if contentType == "" {
			contentType = "image/png"
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "no-cache")
		if _, err := w.Write(overlay.Data); err != nil {
			log.Printf("Error writing heat map: %v", err)
		}
	})

	// Signal-strength chart rendered by the backend
	mux.HandleFunc("GET /signal-chart.png", func(w http.ResponseWriter, r *http.Request) {
		chart, err := session.Client().SignalChart(r.Context())
		if err != nil {
			log.Printf("Error fetching signal chart: %v", err)
			http.Error(w, "Failed to fetch signal chart", http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", chart.ContentType)
		w.Header().Set("Cache-Control", "no-cache")
		if _, err := w.Write(chart.Body); err != nil {
			log.Printf("Error writing signal chart: %v", err)
		}
	})

	mux.HandleFunc("POST /session", func(w http.ResponseWriter, r *http.Request) {
		blob, err := session.SaveSession(r.Context())
		if err != nil {
			writeSessionError(w, err, session)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", `attachment; filename="wifisurvey-session.json"`)
		if _, err := w.Write(blob); err != nil {
			log.Printf("Error writing session: %v", err)
		}
	})

	mux.HandleFunc("PUT /session", func(w http.ResponseWriter, r *http.Request) {
		blob, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSessionBytes))
		if err != nil {
			http.Error(w, "Failed to read session", http.StatusBadRequest)
			return
		}
		if err := session.RestoreSession(r.Context(), blob); err != nil {
			writeSessionError(w, err, session)
			return
		}
		writeJSON(w, http.StatusOK, session.Snapshot())
	})

	mux.HandleFunc("DELETE /heatmap", func(w http.ResponseWriter, r *http.Request) {
		if err := session.CloseHeatMap(); err != nil {
			writeSessionError(w, err, session)
			return
		}
		writeJSON(w, http.StatusOK, session.Snapshot())
	})

	mux.HandleFunc("POST /reset", func(w http.ResponseWriter, r *http.Request) {
		if err := session.Reset(r.Context()); err != nil {
			writeSessionError(w, err, session)
			return
		}
		writeJSON(w, http.StatusOK, session.Snapshot())
	})

	mux.HandleFunc("POST /alert/dismiss", func(w http.ResponseWriter, r *http.Request) {
		session.DismissAlert()
		writeJSON(w, http.StatusOK, session.Snapshot())
	})

	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		if hub == nil {
			http.Error(w, "Live updates disabled", http.StatusNotFound)
			return
		}
		hub.Serve(w, r, survey.Event{Kind: survey.EventStatus, Snapshot: session.Snapshot()})
	})

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = fmt.Fprint(w, previewPage)
	})

	// Wrap mux with logging middleware
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
		mux.ServeHTTP(w, r)
	})
}

// frameFor returns the frame for the optional w/h query size, writing an
// error response when none can be rendered
func frameFor(w http.ResponseWriter, r *http.Request, session *survey.Session) (survey.Frame, bool) {
	var frame survey.Frame
	if r.URL.Query().Has("w") || r.URL.Query().Has("h") {
		width, err := intQuery(r, "w")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return frame, false
		}
		height, err := intQuery(r, "h")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return frame, false
		}
		frame = session.FrameFor(survey.Size{Width: width, Height: height})
	} else {
		frame = session.Frame()
	}

	if frame.Image == nil {
		http.Error(w, "No floor plan loaded", http.StatusServiceUnavailable)
		return frame, false
	}
	if !frame.Viewport.Valid() {
		http.Error(w, "Viewport has no area", http.StatusBadRequest)
		return frame, false
	}
	return frame, true
}

func intQuery(r *http.Request, name string) (int, error) {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v <= 0 || v > 10000 {
		return 0, fmt.Errorf("invalid %s: must be an integer in 1..10000", name)
	}
	return v, nil
}

func pointQuery(r *http.Request) (survey.Point, error) {
	q := r.URL.Query()
	x, err := strconv.ParseFloat(q.Get("x"), 64)
	if err != nil {
		return survey.Point{}, fmt.Errorf("invalid x: %q", q.Get("x"))
	}
	y, err := strconv.ParseFloat(q.Get("y"), 64)
	if err != nil {
		return survey.Point{}, fmt.Errorf("invalid y: %q", q.Get("y"))
	}
	return survey.Point{X: x, Y: y}, nil
}

// writeSessionError maps session failures onto HTTP statuses. The body always
// carries the current snapshot so the page can show status and alert.
func writeSessionError(w http.ResponseWriter, err error, session *survey.Session) {
	code := http.StatusBadGateway
	switch {
	case errors.Is(err, survey.ErrUnsupportedFormat), errors.Is(err, survey.ErrFileTooLarge),
		errors.Is(err, survey.ErrInvalidSession):
		code = http.StatusBadRequest
	case errors.Is(err, survey.ErrQueueFull):
		code = http.StatusTooManyRequests
	case errors.Is(err, survey.ErrInvalidTransition), errors.Is(err, survey.ErrSuperseded):
		code = http.StatusConflict
	}
	writeJSON(w, code, struct {
		Error    string          `json:"error"`
		Snapshot survey.Snapshot `json:"snapshot"`
	}{err.Error(), session.Snapshot()})
}

// mqttState reports the broker connection for /health
func mqttState(c *survey.MQTTClient) string {
	switch {
	case c == nil:
		return "disabled"
	case c.IsConnected():
		return "connected"
	default:
		return "disconnected"
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

const previewPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>wifisurvey</title>
<style>
*{margin:0;padding:0;box-sizing:border-box}
html,body{width:100%;height:100%;overflow:hidden;font-family:sans-serif;background:#f0f0f0}
#bar{height:44px;display:flex;gap:8px;align-items:center;padding:0 8px;background:#fff;border-bottom:1px solid #ccc}
#status{flex:1}
#alert{color:#b00;cursor:pointer}
#view{display:block;width:100vw;height:calc(100vh - 44px)}
#heatmap{position:fixed;inset:44px 0 0 0;margin:auto;max-width:90vw;max-height:80vh;display:none;border:1px solid #333;background:#fff}
</style>
</head>
<body>
<div id="bar">
<input id="file" type="file" accept=".png,.jpg,.jpeg">
<button id="gen" disabled>Generate Heat Map</button>
<button id="reset" disabled>Reset</button>
<span id="status"></span>
<span id="alert"></span>
</div>
<img id="view" alt="Survey view">
<img id="heatmap" alt="Heat map" title="Click to close">
<script>
const view=document.getElementById('view');
let size={w:0,h:0};
function refresh(){view.src='/view.png?w='+size.w+'&h='+size.h+'&t='+Date.now();}
function show(s){
 document.getElementById('status').textContent=s.status;
 document.getElementById('alert').textContent=s.alert||'';
 const gen=document.getElementById('gen');
 gen.disabled=!s.heatMapEnabled;gen.textContent=s.heatMapLabel;
 document.getElementById('reset').disabled=!s.resetEnabled;
 const hm=document.getElementById('heatmap');
 if(s.phase==='heatmap_shown'){hm.src='/heatmap.png?t='+Date.now();hm.style.display='block';}else{hm.style.display='none';}
 if(s.floorPlan){refresh();}
}
async function post(url,opts){const r=await fetch(url,Object.assign({method:'POST'},opts||{}));const b=await r.json();show(b.snapshot||b);}
function resize(){const r=view.getBoundingClientRect();size={w:Math.round(r.width),h:Math.round(r.height)};post('/resize?w='+size.w+'&h='+size.h);}
window.addEventListener('resize',resize);
view.addEventListener('click',e=>{const r=view.getBoundingClientRect();post('/click?x='+(e.clientX-r.left)+'&y='+(e.clientY-r.top));});
view.addEventListener('mousemove',async e=>{const r=view.getBoundingClientRect();const res=await fetch('/hover?x='+(e.clientX-r.left)+'&y='+(e.clientY-r.top));view.style.cursor=(await res.json()).cursor;});
document.getElementById('file').addEventListener('change',e=>{const f=new FormData();f.append('file',e.target.files[0]);post('/floor-plan',{body:f});});
document.getElementById('gen').addEventListener('click',()=>post('/heatmap'));
document.getElementById('reset').addEventListener('click',()=>{if(confirm('Are you sure you want to reset all data? This cannot be undone.'))post('/reset');});
document.getElementById('alert').addEventListener('click',()=>post('/alert/dismiss'));
document.getElementById('heatmap').addEventListener('click',()=>fetch('/heatmap',{method:'DELETE'}).then(r=>r.json()).then(show));
const ws=new WebSocket((location.protocol==='https:'?'wss://':'ws://')+location.host+'/ws');
ws.onmessage=m=>show(JSON.parse(m.data).snapshot);
resize();
</script>
</body>
</html>`
