package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/kwv/wifisurvey/survey"
)

// App holds the state shared by every CLI mode
type App struct {
	Config     *survey.Config
	Transport  survey.Transport
	Session    *survey.Session
	MQTTClient *survey.MQTTClient
	Publisher  *survey.Publisher
	Hub        *LiveHub
	Watcher    *FloorPlanWatcher
	Out        io.Writer

	// CLI Flags (effectively dependencies)
	ConfigFile    string
	BackendURL    string
	Width         int
	Height        int
	RenderFormat  string
	OutputFile    string
	HeatMapMethod string
	UploadFile    string
	Serve         bool
	HttpPort      int
	Watch         bool
	MqttMode      bool
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{
		Out:          os.Stdout,
		ConfigFile:   defaultConfigFile,
		RenderFormat: "raster",
	}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.BackendURL = opts.BackendURL
	a.Width = opts.Width
	a.Height = opts.Height
	a.RenderFormat = opts.RenderFormat
	a.OutputFile = opts.OutputFile
	a.HeatMapMethod = opts.HeatMapMethod
	a.UploadFile = opts.UploadFile
	a.Serve = opts.Serve
	a.HttpPort = opts.HttpPort
	a.Watch = opts.Watch
	a.MqttMode = opts.MqttMode
}

// loadConfig reads the config file and applies CLI overrides. A missing
// default config file falls back to built-in defaults.
func (a *App) loadConfig() (*survey.Config, error) {
	var config *survey.Config
	_, statErr := os.Stat(a.ConfigFile)
	if errors.Is(statErr, fs.ErrNotExist) && a.ConfigFile == defaultConfigFile {
		log.Printf("Warning: %s not found, using defaults", a.ConfigFile)
		config = survey.DefaultConfig()
		config.ApplyEnv()
	} else {
		var err error
		config, err = survey.LoadConfig(a.ConfigFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		log.Printf("Loaded config from %s", a.ConfigFile)
	}

	a.applyOverrides(config)
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// applyOverrides copies CLI flags that were set onto config
func (a *App) applyOverrides(config *survey.Config) {
	if a.BackendURL != "" {
		config.Backend.URL = a.BackendURL
	}
	if a.Width > 0 {
		config.Viewport.Width = a.Width
	}
	if a.Height > 0 {
		config.Viewport.Height = a.Height
	}
	if a.HeatMapMethod != "" {
		config.HeatMap.Method = a.HeatMapMethod
	}
	if a.HttpPort > 0 {
		config.HTTP.Port = a.HttpPort
	}
}

// setup loads configuration, connects to the backend and loads the stored
// session. It is idempotent.
func (a *App) setup(ctx context.Context) error {
	if a.Session != nil {
		return nil
	}

	config, err := a.loadConfig()
	if err != nil {
		return err
	}
	a.Config = config

	if a.Transport == nil {
		transport, err := survey.NewHTTPTransport(config.Backend.URL, config.TransportOptions()...)
		if err != nil {
			return err
		}
		a.Transport = transport
	}

	a.Session = survey.NewSession(a.Transport, survey.SessionOptions{
		Container:     survey.Size{Width: config.Viewport.Width, Height: config.Viewport.Height},
		HeatMapMethod: config.HeatMap.Method,
		MinPoints:     config.HeatMap.MinPoints,
	})
	if err := a.Session.Load(ctx); err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	snap := a.Session.Snapshot()
	log.Printf("Session loaded: phase=%s measurements=%d", snap.Phase, snap.Count)
	return nil
}

func (a *App) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(a.Out, format, args...)
}

func (a *App) outputPath(fallback string) string {
	if a.OutputFile != "" {
		return a.OutputFile
	}
	return fallback
}

// RunRender writes the current survey view to a PNG or SVG file
func (a *App) RunRender() error {
	ctx := context.Background()
	if err := a.setup(ctx); err != nil {
		return err
	}

	frame := a.Session.Frame()
	if frame.Image == nil {
		return fmt.Errorf("render: %w", survey.ErrNoFloorPlan)
	}

	fallback := "survey.png"
	if a.RenderFormat == "vector" {
		fallback = "survey.svg"
	}
	path := a.outputPath(fallback)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := a.renderFrame(f, frame, path); err != nil {
		return err
	}

	a.printf("Rendered %d measurements at %.0fx%.0f to %s\n",
		len(frame.Points), frame.Viewport.ContainerWidth, frame.Viewport.ContainerHeight, path)
	return nil
}

func (a *App) renderFrame(w io.Writer, frame survey.Frame, path string) error {
	if a.RenderFormat != "vector" {
		return survey.NewCompositor(a.Config.Render).RenderPNG(w, frame)
	}
	vr := survey.NewVectorRenderer(a.Config.Render)
	if strings.EqualFold(filepath.Ext(path), ".png") {
		return vr.RenderToPNG(w, frame)
	}
	return vr.RenderToSVG(w, frame)
}

// RunMeasure clicks the survey view at a screen position and reports the result
func (a *App) RunMeasure(x, y int) error {
	ctx := context.Background()
	if err := a.setup(ctx); err != nil {
		return err
	}

	outcome, err := a.Session.Click(ctx, survey.Point{X: float64(x), Y: float64(y)})
	snap := a.Session.Snapshot()
	if err != nil {
		if snap.Alert != "" {
			return fmt.Errorf("%s: %w", snap.Alert, err)
		}
		return err
	}
	if outcome == survey.ClickIgnored {
		return fmt.Errorf("position (%d, %d) is outside the floor plan", x, y)
	}

	a.printf("%s\n", snap.Status)
	_, label := a.Session.HeatMapControl()
	a.printf("%d measurements stored. %s\n", snap.Count, label)
	return nil
}

// RunHeatMap generates a heat map and writes the image to the output file
func (a *App) RunHeatMap() error {
	ctx := context.Background()
	if err := a.setup(ctx); err != nil {
		return err
	}

	if err := a.Session.GenerateHeatMap(ctx, a.Config.HeatMap.Method); err != nil {
		if alert := a.Session.Snapshot().Alert; alert != "" {
			return fmt.Errorf("%s: %w", alert, err)
		}
		return err
	}

	overlay := a.Session.Overlay()
	if overlay == nil {
		return fmt.Errorf("heat map not generated: %s", a.Session.Snapshot().Status)
	}

	path := a.outputPath("heatmap.png")
	if err := os.WriteFile(path, overlay.Data, 0644); err != nil {
		return fmt.Errorf("failed to write heat map: %w", err)
	}
	a.printf("Heat map (%s) written to %s\n", overlay.Method, path)
	return nil
}

// RunUpload uploads a floor plan image
func (a *App) RunUpload() error {
	ctx := context.Background()
	if err := a.setup(ctx); err != nil {
		return err
	}
	if err := a.uploadFile(ctx, a.UploadFile); err != nil {
		return err
	}

	snap := a.Session.Snapshot()
	a.printf("%s\n", snap.Status)
	if snap.FloorPlan != nil {
		a.printf("Floor plan: %dx%d (scale %.3f)\n", snap.FloorPlan.Width, snap.FloorPlan.Height, snap.Viewport.Scale)
	}
	return nil
}

func (a *App) uploadFile(ctx context.Context, path string) error {
	data, err := survey.ReadUploadFile(path)
	if err != nil {
		return err
	}
	if err := a.Session.Upload(ctx, filepath.Base(path), data); err != nil {
		if alert := a.Session.Snapshot().Alert; alert != "" {
			return fmt.Errorf("%s: %w", alert, err)
		}
		return err
	}
	return nil
}

// RunReset deletes every measurement and the floor plan
func (a *App) RunReset() error {
	ctx := context.Background()
	if err := a.setup(ctx); err != nil {
		return err
	}

	_, idle := a.Session.Phase().(survey.Idle)
	if idle && !a.Session.ResetEnabled() {
		a.printf("No survey data to delete\n")
		return nil
	}
	if err := a.Session.Reset(ctx); err != nil {
		return fmt.Errorf("%s: %w", survey.AlertReset, err)
	}

	a.printf("All survey data deleted\n")
	return nil
}

// RunSignalChart downloads the backend's signal-strength chart
func (a *App) RunSignalChart() error {
	ctx := context.Background()
	if err := a.setup(ctx); err != nil {
		return err
	}

	chart, err := a.Session.Client().SignalChart(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch signal chart: %w", err)
	}
	path := a.outputPath("signal-chart.png")
	if err := os.WriteFile(path, chart.Body, 0644); err != nil {
		return fmt.Errorf("failed to write signal chart: %w", err)
	}
	a.printf("Signal chart (%s) written to %s\n", chart.ContentType, path)
	return nil
}

// RunSaveSession writes the backend's session snapshot to path
func (a *App) RunSaveSession(path string) error {
	ctx := context.Background()
	if err := a.setup(ctx); err != nil {
		return err
	}

	blob, err := a.Session.SaveSession(ctx)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, blob, 0644); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	a.printf("Session with %d measurements saved to %s\n", a.Session.Snapshot().Count, path)
	return nil
}

// RunLoadSession replaces the survey with a session saved by RunSaveSession
func (a *App) RunLoadSession(path string) error {
	blob, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read session: %w", err)
	}

	ctx := context.Background()
	if err := a.setup(ctx); err != nil {
		return err
	}
	if err := a.Session.RestoreSession(ctx, blob); err != nil {
		return fmt.Errorf("%s: %w", survey.AlertRestore, err)
	}

	snap := a.Session.Snapshot()
	a.printf("%s: %d measurements\n", snap.Status, snap.Count)
	return nil
}

// RunInitConfig writes the defaults plus any CLI overrides to the config
// path. An existing file is never overwritten.
func (a *App) RunInitConfig() error {
	if _, err := os.Stat(a.ConfigFile); err == nil {
		return fmt.Errorf("%s already exists", a.ConfigFile)
	}

	config := survey.DefaultConfig()
	a.applyOverrides(config)
	if err := config.Validate(); err != nil {
		return err
	}
	if err := survey.SaveConfig(a.ConfigFile, config); err != nil {
		return err
	}
	a.printf("Wrote default configuration to %s\n", a.ConfigFile)
	return nil
}

// startService wires observers, the file watcher and the preview server.
// The returned server is nil when --serve is not set.
func (a *App) startService(ctx context.Context) (*http.Server, error) {
	if err := a.setup(ctx); err != nil {
		return nil, err
	}

	if a.MqttMode {
		mqttClient := survey.InitMQTT(a.Config.MQTT)
		if mqttClient == nil {
			return nil, errors.New("MQTT broker not configured in config.yaml")
		}
		a.MQTTClient = mqttClient
		a.Publisher = survey.NewPublisher(mqttClient.GetClient(), a.Config.MQTT.PublishPrefix)
		a.Publisher.SetQoS(a.Config.MQTT.QoS)
		a.Publisher.SetRetain(a.Config.MQTT.RetainStatus)
		mqttClient.OnConnect(a.Publisher.Republish)
		a.Session.AddObserver(a.Publisher)
		a.printf("MQTT publisher initialized\n")
	}

	if a.Watch {
		watcher, err := NewFloorPlanWatcher(a.UploadFile, 0, func(path string) {
			if err := a.uploadFile(ctx, path); err != nil {
				log.Printf("Error re-uploading %s: %v", path, err)
				return
			}
			log.Printf("Re-uploaded floor plan %s", path)
		})
		if err != nil {
			return nil, err
		}
		a.Watcher = watcher
		log.Printf("Watching floor plan %s", watcher.Path())
		if _, idle := a.Session.Phase().(survey.Idle); idle {
			if err := a.uploadFile(ctx, a.UploadFile); err != nil {
				log.Printf("Warning: initial upload of %s failed: %v", a.UploadFile, err)
			}
		}
		go watcher.Run()
	}

	if !a.Serve {
		return nil, nil
	}

	a.Hub = NewLiveHub()
	a.Session.AddObserver(a.Hub)

	srv := &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", a.Config.HTTP.Port),
		Handler:           newHTTPServer(a.Session, a.Config, a.Hub, a.MQTTClient),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("[HTTP] Starting server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[HTTP] Server error: %v", err)
		}
	}()
	return srv, nil
}

// RunService runs the preview server, MQTT publisher and file watcher until
// interrupted
func (a *App) RunService() error {
	a.printf("Starting wifisurvey service...\n")

	srv, err := a.startService(context.Background())
	if err != nil {
		return err
	}

	a.printf("\nService Running\n")
	a.printf("===============\n")
	if a.MqttMode {
		a.printf("\nMQTT:\n")
		a.printf("  Publishing to: %s/measurements/{id}\n", a.Config.MQTT.PublishPrefix)
		a.printf("  Session status: %s/status\n", a.Config.MQTT.PublishPrefix)
	}
	if a.Watch {
		a.printf("\nWatching %s for changes\n", a.UploadFile)
	}
	if srv != nil {
		a.printf("\nHTTP endpoints (port %d):\n", a.Config.HTTP.Port)
		a.printf("  GET  /               - Preview page\n")
		a.printf("  GET  /view.png       - Rendered survey view\n")
		a.printf("  POST /click?x=&y=    - Take a measurement\n")
		a.printf("  POST /heatmap        - Generate a heat map\n")
		a.printf("  GET  /signal-chart.png - Signal-strength chart\n")
		a.printf("  POST /session        - Download the saved session\n")
		a.printf("  PUT  /session        - Restore a saved session\n")
		a.printf("  GET  /ws             - Live session events\n")
	}
	a.printf("\nPress Ctrl+C to stop\n")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	a.printf("\nShutting down service...\n")
	a.shutdown(srv)
	a.printf("Service stopped\n")
	return nil
}

func (a *App) shutdown(srv *http.Server) {
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("[HTTP] Shutdown error: %v", err)
		}
	}
	if a.Hub != nil {
		a.Hub.Close()
	}
	if a.Watcher != nil {
		if err := a.Watcher.Close(); err != nil {
			log.Printf("Warning: closing watcher: %v", err)
		}
	}
	if a.MQTTClient != nil {
		a.MQTTClient.Disconnect()
	}
}
