package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
)

// Version is set at build time via -ldflags
var Version = "dev"

const defaultConfigFile = "config.yaml"

// AppOptions holds the parsed command line
type AppOptions struct {
	ConfigFile    string
	BackendURL    string
	Width         int
	Height        int
	RenderOnly    bool
	RenderFormat  string
	OutputFile    string
	Measure       string
	HeatMap       bool
	HeatMapMethod string
	UploadFile    string
	Reset         bool
	SignalChart   bool
	SaveSession   string
	LoadSession   string
	InitConfig    bool
	Serve         bool
	HttpPort      int
	Watch         bool
	MqttMode      bool
}

// Application is the set of modes the CLI dispatches to
type Application interface {
	ApplyOptions(opts AppOptions)
	RunRender() error
	RunMeasure(x, y int) error
	RunHeatMap() error
	RunUpload() error
	RunReset() error
	RunSignalChart() error
	RunSaveSession(path string) error
	RunLoadSession(path string) error
	RunInitConfig() error
	RunService() error
}

func main() {
	if err := run(os.Args[1:], os.Stdout, NewApp()); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatal(err)
	}
}

func run(args []string, out io.Writer, app Application) error {
	fs := flag.NewFlagSet("wifisurvey", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", defaultConfigFile, "Path to configuration file")
	fs.StringVar(&opts.BackendURL, "backend", "", "Survey backend API root (overrides config)")
	fs.IntVar(&opts.Width, "width", 0, "Viewing surface width in pixels (overrides config)")
	fs.IntVar(&opts.Height, "height", 0, "Viewing surface height in pixels (overrides config)")
	fs.BoolVar(&opts.RenderOnly, "render", false, "Render the current survey view and exit")
	fs.StringVar(&opts.RenderFormat, "format", "raster", "Render format: raster or vector")
	fs.StringVar(&opts.OutputFile, "output", "", "Output file for --render and --heatmap")
	fs.StringVar(&opts.Measure, "measure", "", "Take a measurement at screen position X,Y and exit")
	fs.BoolVar(&opts.HeatMap, "heatmap", false, "Generate a heat map and download it to --output")
	fs.StringVar(&opts.HeatMapMethod, "method", "", "Heat map interpolation method (overrides config)")
	fs.StringVar(&opts.UploadFile, "upload", "", "Floor plan image to upload (.png, .jpg, .jpeg)")
	fs.BoolVar(&opts.Reset, "reset", false, "Delete the floor plan and all measurements")
	fs.BoolVar(&opts.SignalChart, "signal-chart", false, "Download the signal-strength chart to --output")
	fs.StringVar(&opts.SaveSession, "save-session", "", "Save the survey session to a JSON file")
	fs.StringVar(&opts.LoadSession, "load-session", "", "Replace the survey with a saved session file")
	fs.BoolVar(&opts.InitConfig, "init-config", false, "Write the effective configuration to --config and exit")
	fs.BoolVar(&opts.Serve, "serve", false, "Run the preview HTTP server")
	fs.IntVar(&opts.HttpPort, "http-port", 0, "Preview server port (overrides config, default 8080)")
	fs.BoolVar(&opts.Watch, "watch", false, "Re-upload the --upload file whenever it changes")
	fs.BoolVar(&opts.MqttMode, "mqtt", false, "Publish measurements and status over MQTT")

	if err := fs.Parse(args); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(out, "wifisurvey version: %s\n", Version)

	if opts.RenderFormat != "raster" && opts.RenderFormat != "vector" {
		return fmt.Errorf("invalid --format %q: must be raster or vector", opts.RenderFormat)
	}
	if opts.Watch && opts.UploadFile == "" {
		return errors.New("--watch requires --upload")
	}

	app.ApplyOptions(opts)

	switch {
	case opts.InitConfig:
		return app.RunInitConfig()
	case opts.Serve || opts.MqttMode || opts.Watch:
		return app.RunService()
	case opts.Reset:
		return app.RunReset()
	case opts.LoadSession != "":
		return app.RunLoadSession(opts.LoadSession)
	case opts.SaveSession != "":
		return app.RunSaveSession(opts.SaveSession)
	case opts.UploadFile != "":
		return app.RunUpload()
	case opts.Measure != "":
		x, y, err := parsePosition(opts.Measure)
		if err != nil {
			return err
		}
		return app.RunMeasure(x, y)
	case opts.HeatMap:
		return app.RunHeatMap()
	case opts.SignalChart:
		return app.RunSignalChart()
	case opts.RenderOnly:
		return app.RunRender()
	}

	_, _ = fmt.Fprintln(out, "wifisurvey service starting...")
	_, _ = fmt.Fprintln(out, "Use --upload FILE to upload a floor plan")
	_, _ = fmt.Fprintln(out, "Use --measure X,Y to take a measurement at a screen position")
	_, _ = fmt.Fprintln(out, "Use --heatmap to generate and download a heat map")
	_, _ = fmt.Fprintln(out, "Use --render to output the survey view (--format raster|vector)")
	_, _ = fmt.Fprintln(out, "Use --signal-chart to download the signal-strength chart")
	_, _ = fmt.Fprintln(out, "Use --save-session FILE / --load-session FILE to keep a survey for later")
	_, _ = fmt.Fprintln(out, "Use --reset to delete all survey data")
	_, _ = fmt.Fprintln(out, "Use --init-config to write a starter config.yaml")
	_, _ = fmt.Fprintln(out, "Use --serve to run the preview server, --mqtt to publish, --watch to follow the floor plan file")
	_, _ = fmt.Fprintln(out, "\nConfiguration:")
	_, _ = fmt.Fprintln(out, "  config.yaml - backend, viewport, render, heat map, MQTT and HTTP settings")
	return nil
}

// parsePosition parses "X,Y" screen coordinates
func parsePosition(s string) (int, int, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid position %q: want X,Y", s)
	}
	x, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid x in %q: %w", s, err)
	}
	y, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid y in %q: %w", s, err)
	}
	return x, y, nil
}
