package survey

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultBackendURL is the local survey backend API root
	DefaultBackendURL = "http://localhost:5000/api"

	// DefaultHeatMapMethod is the interpolation method requested when none is given
	DefaultHeatMapMethod = "idw"

	// MinHeatMapPoints is the fewest measurements a heat map can be generated from
	MinHeatMapPoints = 3
)

// Config is the unified configuration file layout
type Config struct {
	Backend  BackendConfig  `yaml:"backend"`
	Viewport ViewportConfig `yaml:"viewport"`
	Render   RenderConfig   `yaml:"render"`
	HeatMap  HeatMapConfig  `yaml:"heatmap"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	HTTP     HTTPConfig     `yaml:"http"`
}

// BackendConfig locates the survey backend
type BackendConfig struct {
	URL          string        `yaml:"url"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	RetryBackoff time.Duration `yaml:"retryBackoff"`
}

// ViewportConfig is the initial viewing surface size
type ViewportConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// RenderConfig controls the compositor
type RenderConfig struct {
	Background   string  `yaml:"background"`
	MarkerRadius int     `yaml:"markerRadius"`
	LabelOffset  int     `yaml:"labelOffset"`
	Resolution   float64 `yaml:"resolution"` // DPI for vector PNG export
}

// HeatMapConfig controls heat-map requests
type HeatMapConfig struct {
	Method    string `yaml:"method"`
	MinPoints int    `yaml:"minPoints"`
}

// MQTTConfig holds MQTT broker settings
type MQTTConfig struct {
	Broker        string `yaml:"broker"`
	ClientID      string `yaml:"clientId"`
	Username      string `yaml:"username"`
	Password      string `yaml:"password"`
	PublishPrefix string `yaml:"publishPrefix"`
	QoS           byte   `yaml:"qos"`
	RetainStatus  bool   `yaml:"retainStatus"`
}

// HTTPConfig configures the preview server
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// DefaultConfig returns a configuration that talks to a local backend
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			URL:          DefaultBackendURL,
			Timeout:      DefaultRequestTimeout,
			MaxRetries:   DefaultMaxRetries,
			RetryBackoff: defaultBaseBackoff,
		},
		Viewport: ViewportConfig{Width: 800, Height: 600},
		Render: RenderConfig{
			Background:   "#f0f0f0",
			MarkerRadius: 6,
			LabelOffset:  9,
			Resolution:   96,
		},
		HeatMap: HeatMapConfig{
			Method:    DefaultHeatMapMethod,
			MinPoints: MinHeatMapPoints,
		},
		MQTT: MQTTConfig{
			ClientID:      "wifisurvey",
			PublishPrefix: "wifisurvey",
			RetainStatus:  true,
		},
		HTTP: HTTPConfig{Port: 8080},
	}
}

// LoadConfig loads the configuration from a YAML file. Missing fields keep
// their defaults and environment overrides are applied last.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	config.ApplyEnv()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides configuration from environment variables
func (c *Config) ApplyEnv() {
	if v := os.Getenv("WIFISURVEY_BACKEND_URL"); v != "" {
		c.Backend.URL = v
	}
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		c.MQTT.Broker = v
	}
	if v := os.Getenv("MQTT_CLIENT_ID"); v != "" {
		c.MQTT.ClientID = v
	}
	if v := os.Getenv("MQTT_USERNAME"); v != "" {
		c.MQTT.Username = v
	}
	if v := os.Getenv("MQTT_PASSWORD"); v != "" {
		c.MQTT.Password = v
	}
	if v := os.Getenv("MQTT_PUBLISH_PREFIX"); v != "" {
		c.MQTT.PublishPrefix = v
	}
}

// Validate checks required fields and ranges
func (c *Config) Validate() error {
	if c.Backend.URL == "" {
		return fmt.Errorf("backend.url is required")
	}
	if c.Backend.MaxRetries < 1 {
		return fmt.Errorf("backend.maxRetries must be at least 1, got %d", c.Backend.MaxRetries)
	}
	if c.Viewport.Width <= 0 || c.Viewport.Height <= 0 {
		return fmt.Errorf("viewport must be positive, got %dx%d", c.Viewport.Width, c.Viewport.Height)
	}
	if c.Render.MarkerRadius <= 0 {
		return fmt.Errorf("render.markerRadius must be positive, got %d", c.Render.MarkerRadius)
	}
	if c.HeatMap.Method == "" {
		return fmt.Errorf("heatmap.method is required")
	}
	if c.HeatMap.MinPoints < 1 {
		return fmt.Errorf("heatmap.minPoints must be at least 1, got %d", c.HeatMap.MinPoints)
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port out of range: %d", c.HTTP.Port)
	}
	return nil
}

// TransportOptions converts the backend section into transport options
func (c *Config) TransportOptions() []TransportOption {
	return []TransportOption{
		WithTimeout(c.Backend.Timeout),
		WithMaxRetries(c.Backend.MaxRetries),
		WithBaseBackoff(c.Backend.RetryBackoff),
	}
}
