package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults taken from the reference capture pipeline.
const (
	DefaultSweepAngleDeg      = 160
	DefaultCapturePixels      = 960 * 720
	DefaultSpeedThresholdDeg  = 25
	DefaultDirectionThreshold = 10
	DefaultProgressIntervalMs = 50
	DefaultMaxFrames          = 100
)

// Size is a preview resolution in pixels.
type Size struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// FPSRange is a supported preview frame-rate range (frames per second).
type FPSRange struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// CameraConfig describes the frame source.
// Type selects a concrete implementation (only "synthetic" for now).
type CameraConfig struct {
	Type             string     `yaml:"type"`              // e.g., "synthetic"
	ID               int        `yaml:"id"`                // camera id (-1 = first back camera)
	MountOrientation int        `yaml:"mount_orientation"` // 0, 90, 180 or 270
	PreviewSizes     []Size     `yaml:"preview_sizes"`     // sizes the sensor supports
	FPSRanges        []FPSRange `yaml:"fps_ranges"`        // ranges the sensor supports
	FocusModes       []string   `yaml:"focus_modes"`       // e.g., "auto", "infinity"
	BitsPerPixel     int        `yaml:"bits_per_pixel"`    // preview format (NV21 = 12)

	// View angles in degrees. 0 = derive from lens/sensor.
	HorizontalViewAngleDeg float64 `yaml:"horizontal_view_angle_deg"`
	VerticalViewAngleDeg   float64 `yaml:"vertical_view_angle_deg"`

	// Synthetic source only: simulated hand pan while previewing.
	PanRateDegPerSec  float64 `yaml:"pan_rate_deg_per_sec"`
	TiltRateDegPerSec float64 `yaml:"tilt_rate_deg_per_sec"`
}

// LensConfig describes the mounted lens.
type LensConfig struct {
	Name          string  `yaml:"name"`            // e.g., "4.3mm phone module"
	FocalLengthMm float64 `yaml:"focal_length_mm"` // focal length in use
}

// SensorConfig is optional: physical sensor size in mm.
type SensorConfig struct {
	WidthMm  float64 `yaml:"width_mm"`
	HeightMm float64 `yaml:"height_mm"`
}

// SweepConfig holds the capture thresholds.
type SweepConfig struct {
	AngleDeg              float64 `yaml:"angle_deg"`               // auto-stop once either axis reaches this
	CapturePixels         int     `yaml:"capture_pixels"`          // target preview pixel count
	SpeedThresholdDegSec  float64 `yaml:"speed_threshold_deg_sec"` // "too fast" warning above this
	DirectionThresholdDeg float64 `yaml:"direction_threshold_deg"` // pan direction decided after this
}

// EngineConfig tunes the software stitch engine.
type EngineConfig struct {
	MaxFrames      int     `yaml:"max_frames"`      // keyframes before the sweep is complete
	KeyframeStride float64 `yaml:"keyframe_stride"` // min FOV fraction between keyframes
	LowResScale    int     `yaml:"low_res_scale"`   // preview mosaic downscale factor
	RowCostUs      int     `yaml:"row_cost_us"`     // simulated cost per mosaic row
}

// ProgressConfig controls the finalize progress poll.
type ProgressConfig struct {
	IntervalMs int `yaml:"interval_ms"`
}

// StorageConfig describes where panoramas are written.
type StorageConfig struct {
	Dir            string `yaml:"dir"`
	NameFormat     string `yaml:"name_format"`     // Go time layout, e.g. "PANO_20060102_150405"
	ThumbnailWidth int    `yaml:"thumbnail_width"` // px
}

// StepperConfig holds the configuration for a stepper motor.
type StepperConfig struct {
	StepPin       int `yaml:"step_pin"`
	DirPin        int `yaml:"dir_pin"`
	EnablePin     int `yaml:"enable_pin"` // A4988 ENABLE pin (BCM). 0 = not used. Active LOW.
	StepsPerRev   int `yaml:"steps_per_rev"`
	Microstepping int `yaml:"microstepping"`
}

// RigConfig enables a motorized pan head that performs the sweep.
type RigConfig struct {
	Enabled       bool          `yaml:"enabled"`
	PanStepper    StepperConfig `yaml:"pan_stepper"`
	RateDegPerSec float64       `yaml:"rate_deg_per_sec"`
	StepDelayUs   int           `yaml:"step_delay_us"`
}

// PanelConfig maps physical controls to GPIO pins (BCM). 0 = not wired.
type PanelConfig struct {
	ShutterPin int  `yaml:"shutter_pin"`
	CancelPin  int  `yaml:"cancel_pin"`
	LEDPin     int  `yaml:"led_pin"`
	ActiveLow  bool `yaml:"active_low"` // buttons pull the line LOW when pressed
	PollMs     int  `yaml:"poll_ms"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int  `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool `yaml:"mock_gpio"`   // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	Camera   CameraConfig   `yaml:"camera"`
	Lens     LensConfig     `yaml:"lens"`
	Sensor   *SensorConfig  `yaml:"sensor,omitempty"` // optional
	Sweep    SweepConfig    `yaml:"sweep"`
	Engine   EngineConfig   `yaml:"engine"`
	Progress ProgressConfig `yaml:"progress"`
	Storage  StorageConfig  `yaml:"storage"`
	Rig      RigConfig      `yaml:"rig"`
	Panel    PanelConfig    `yaml:"panel"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// ValidateConfigPath rejects paths that are not a .yaml file directly under a
// "configs" directory.
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	clean := filepath.Clean(path)
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config file must have .yaml extension: %s", path)
	}
	if filepath.Base(filepath.Dir(clean)) != "configs" {
		return fmt.Errorf("config file must live in a configs/ directory: %s", path)
	}
	return nil
}

// MaxConfigFileBytes bounds the size of a config file accepted by Load.
const MaxConfigFileBytes = 1 << 20

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), MaxConfigFileBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration for the synthetic camera with all defaults applied.
func Default() *Config {
	cfg := &Config{Camera: CameraConfig{Type: "synthetic"}}
	if err := cfg.applyDefaults(); err != nil {
		panic(err) // defaults are static
	}
	return cfg
}

func (cfg *Config) applyDefaults() error {
	if cfg.Camera.Type == "" {
		return fmt.Errorf("camera.type is required")
	}
	switch cfg.Camera.MountOrientation {
	case 0, 90, 180, 270:
	default:
		return fmt.Errorf("camera.mount_orientation must be 0, 90, 180 or 270, got %d", cfg.Camera.MountOrientation)
	}
	if len(cfg.Camera.PreviewSizes) == 0 {
		cfg.Camera.PreviewSizes = []Size{{1280, 960}, {1920, 1080}, {640, 480}, {320, 240}}
	}
	for _, s := range cfg.Camera.PreviewSizes {
		if s.Width <= 0 || s.Height <= 0 {
			return fmt.Errorf("camera.preview_sizes: invalid size %dx%d", s.Width, s.Height)
		}
	}
	if len(cfg.Camera.FPSRanges) == 0 {
		cfg.Camera.FPSRanges = []FPSRange{{15, 15}, {15, 30}, {30, 30}}
	}
	if len(cfg.Camera.FocusModes) == 0 {
		cfg.Camera.FocusModes = []string{"auto", "infinity"}
	}
	if cfg.Camera.BitsPerPixel <= 0 {
		cfg.Camera.BitsPerPixel = 12 // NV21
	}
	if cfg.Camera.PanRateDegPerSec == 0 {
		cfg.Camera.PanRateDegPerSec = 20 // comfortably under the speed warning
	}

	hasAngles := cfg.Camera.HorizontalViewAngleDeg > 0 && cfg.Camera.VerticalViewAngleDeg > 0
	if !hasAngles {
		if cfg.Sensor == nil && cfg.Lens.FocalLengthMm <= 0 {
			// typical phone module: ~60° x ~47°
			cfg.Camera.HorizontalViewAngleDeg = 60
			cfg.Camera.VerticalViewAngleDeg = 47
		} else if cfg.Sensor == nil || cfg.Lens.FocalLengthMm <= 0 {
			return fmt.Errorf("view angles need both sensor and lens.focal_length_mm, or explicit camera view angles")
		}
	}
	if cfg.Camera.HorizontalViewAngleDeg > 360 || cfg.Camera.VerticalViewAngleDeg > 180 {
		return fmt.Errorf("camera view angles out of range: %.2f x %.2f",
			cfg.Camera.HorizontalViewAngleDeg, cfg.Camera.VerticalViewAngleDeg)
	}

	if cfg.Sweep.AngleDeg <= 0 {
		cfg.Sweep.AngleDeg = DefaultSweepAngleDeg
	}
	if cfg.Sweep.AngleDeg > 360 {
		return fmt.Errorf("sweep.angle_deg must be <= 360, got %.2f", cfg.Sweep.AngleDeg)
	}
	if cfg.Sweep.CapturePixels <= 0 {
		cfg.Sweep.CapturePixels = DefaultCapturePixels
	}
	if cfg.Sweep.SpeedThresholdDegSec <= 0 {
		cfg.Sweep.SpeedThresholdDegSec = DefaultSpeedThresholdDeg
	}
	if cfg.Sweep.DirectionThresholdDeg <= 0 {
		cfg.Sweep.DirectionThresholdDeg = DefaultDirectionThreshold
	}

	if cfg.Engine.MaxFrames <= 0 {
		cfg.Engine.MaxFrames = DefaultMaxFrames
	}
	if cfg.Engine.KeyframeStride <= 0 {
		cfg.Engine.KeyframeStride = 0.05
	}
	if cfg.Engine.KeyframeStride >= 1 {
		return fmt.Errorf("engine.keyframe_stride must be < 1, got %.2f", cfg.Engine.KeyframeStride)
	}
	if cfg.Engine.LowResScale <= 0 {
		cfg.Engine.LowResScale = 4
	}
	if cfg.Engine.RowCostUs < 0 {
		cfg.Engine.RowCostUs = 0
	}

	if cfg.Progress.IntervalMs <= 0 {
		cfg.Progress.IntervalMs = DefaultProgressIntervalMs
	}

	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = "pictures"
	}
	if cfg.Storage.NameFormat == "" {
		cfg.Storage.NameFormat = "PANO_20060102_150405"
	}
	if cfg.Storage.ThumbnailWidth <= 0 {
		cfg.Storage.ThumbnailWidth = 96
	}

	if cfg.Rig.Enabled {
		if cfg.Rig.PanStepper.StepsPerRev <= 0 || cfg.Rig.PanStepper.Microstepping <= 0 {
			return fmt.Errorf("rig.pan_stepper needs steps_per_rev and microstepping")
		}
		if cfg.Rig.RateDegPerSec <= 0 {
			cfg.Rig.RateDegPerSec = 15
		}
		if cfg.Rig.StepDelayUs <= 0 {
			cfg.Rig.StepDelayUs = 500
		}
	}

	if cfg.Panel.PollMs <= 0 {
		cfg.Panel.PollMs = 20
	}
	return nil
}

// ProgressInterval returns the finalize progress poll interval.
func (c *Config) ProgressInterval() time.Duration {
	return time.Duration(c.Progress.IntervalMs) * time.Millisecond
}

// RowCost returns the simulated engine cost per mosaic row.
func (c *Config) RowCost() time.Duration {
	return time.Duration(c.Engine.RowCostUs) * time.Microsecond
}

// RigStepDelay returns the half-cycle delay of the rig stepper pulse.
func (c *Config) RigStepDelay() time.Duration {
	return time.Duration(c.Rig.StepDelayUs) * time.Microsecond
}

// PanelPoll returns the GPIO button poll period.
func (c *Config) PanelPoll() time.Duration {
	return time.Duration(c.Panel.PollMs) * time.Millisecond
}
