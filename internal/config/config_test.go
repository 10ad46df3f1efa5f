package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// ---------- ValidateConfigPath ----------

func TestValidateConfigPath_Valid(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "default.yaml")
	if err := ValidateConfigPath(path); err != nil {
		t.Errorf("expected valid path, got error: %v", err)
	}
}

func TestValidateConfigPath_Rejected(t *testing.T) {
	cases := []string{
		"",
		"../../etc/passwd",
		"configs/../../../etc/shadow",
		"configs/default.json",
		"configs/default.yml",
		"configs/default",
		"other/default.yaml",
		"default.yaml",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_VeryLongPath(t *testing.T) {
	long := "configs/" + strings.Repeat("a", 1000) + ".yaml"
	if err := ValidateConfigPath(long); err != nil {
		t.Errorf("long but well-formed path rejected: %v", err)
	}
}

// ---------- Load ----------

// writeConfig creates a temporary configs/ dir with the given YAML content and returns the path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "test.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validYAML = `
camera:
  type: "synthetic"
  mount_orientation: 90
  preview_sizes:
    - {width: 1280, height: 960}
    - {width: 640, height: 480}
  fps_ranges:
    - {min: 10, max: 20}
    - {min: 15, max: 30}
lens:
  name: "4.3mm module"
  focal_length_mm: 4.3
sensor:
  width_mm: 4.8
  height_mm: 3.6
sweep:
  angle_deg: 120
engine:
  max_frames: 40
  row_cost_us: 10
storage:
  dir: "/tmp/pano"
rig:
  enabled: true
  pan_stepper:
    step_pin: 17
    dir_pin: 27
    enable_pin: 5
    steps_per_rev: 200
    microstepping: 16
panel:
  shutter_pin: 24
  cancel_pin: 25
  led_pin: 12
  active_low: true
defaults:
  debug_level: 2
  mock_gpio: true
`

func TestLoad_ValidFullConfig(t *testing.T) {
	path := writeConfig(t, validYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Camera.Type != "synthetic" {
		t.Errorf("camera.type = %q, want %q", cfg.Camera.Type, "synthetic")
	}
	if cfg.Camera.MountOrientation != 90 {
		t.Errorf("camera.mount_orientation = %d, want 90", cfg.Camera.MountOrientation)
	}
	if len(cfg.Camera.PreviewSizes) != 2 || cfg.Camera.PreviewSizes[1] != (Size{640, 480}) {
		t.Errorf("camera.preview_sizes = %v", cfg.Camera.PreviewSizes)
	}
	if cfg.Sensor == nil || cfg.Sensor.WidthMm != 4.8 {
		t.Fatalf("sensor = %+v, want width 4.8", cfg.Sensor)
	}
	if cfg.Sweep.AngleDeg != 120 {
		t.Errorf("sweep.angle_deg = %v, want 120", cfg.Sweep.AngleDeg)
	}
	if cfg.Engine.MaxFrames != 40 {
		t.Errorf("engine.max_frames = %d, want 40", cfg.Engine.MaxFrames)
	}
	if cfg.Rig.PanStepper.StepsPerRev != 200 {
		t.Errorf("rig.pan_stepper.steps_per_rev = %d, want 200", cfg.Rig.PanStepper.StepsPerRev)
	}
	if cfg.Panel.ShutterPin != 24 || !cfg.Panel.ActiveLow {
		t.Errorf("panel = %+v", cfg.Panel)
	}
	if cfg.Defaults.DebugLevel != 2 {
		t.Errorf("debug_level = %d, want 2", cfg.Defaults.DebugLevel)
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	path := writeConfig(t, "camera:\n  type: synthetic\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Sweep.AngleDeg != 160 {
		t.Errorf("sweep.angle_deg default = %v, want 160", cfg.Sweep.AngleDeg)
	}
	if cfg.Sweep.CapturePixels != 960*720 {
		t.Errorf("sweep.capture_pixels default = %d, want %d", cfg.Sweep.CapturePixels, 960*720)
	}
	if cfg.Sweep.SpeedThresholdDegSec != 25 {
		t.Errorf("speed threshold default = %v, want 25", cfg.Sweep.SpeedThresholdDegSec)
	}
	if cfg.Sweep.DirectionThresholdDeg != 10 {
		t.Errorf("direction threshold default = %v, want 10", cfg.Sweep.DirectionThresholdDeg)
	}
	if cfg.Progress.IntervalMs != 50 {
		t.Errorf("progress.interval_ms default = %d, want 50", cfg.Progress.IntervalMs)
	}
	if cfg.Camera.BitsPerPixel != 12 {
		t.Errorf("bits_per_pixel default = %d, want 12", cfg.Camera.BitsPerPixel)
	}
	if cfg.Camera.HorizontalViewAngleDeg != 60 || cfg.Camera.VerticalViewAngleDeg != 47 {
		t.Errorf("view angles default = %vx%v, want 60x47",
			cfg.Camera.HorizontalViewAngleDeg, cfg.Camera.VerticalViewAngleDeg)
	}
	if cfg.Storage.NameFormat != "PANO_20060102_150405" {
		t.Errorf("storage.name_format default = %q", cfg.Storage.NameFormat)
	}
	if len(cfg.Camera.PreviewSizes) == 0 || len(cfg.Camera.FPSRanges) == 0 {
		t.Error("expected default preview sizes and fps ranges")
	}
}

func TestLoad_Errors(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"missing camera type", "lens:\n  focal_length_mm: 4.3\n"},
		{"empty file", ""},
		{"invalid yaml", "{{{{invalid yaml!!!!"},
		{"bad mount orientation", "camera:\n  type: synthetic\n  mount_orientation: 45\n"},
		{"lens without sensor", "camera:\n  type: synthetic\nlens:\n  focal_length_mm: 4.3\n"},
		{"sweep angle too large", "camera:\n  type: synthetic\nsweep:\n  angle_deg: 361\n"},
		{"horizontal view angle too large", "camera:\n  type: synthetic\n  horizontal_view_angle_deg: 361\n  vertical_view_angle_deg: 40\n"},
		{"bad preview size", "camera:\n  type: synthetic\n  preview_sizes:\n    - {width: 0, height: 480}\n"},
		{"keyframe stride", "camera:\n  type: synthetic\nengine:\n  keyframe_stride: 1.5\n"},
		{"rig without stepper", "camera:\n  type: synthetic\nrig:\n  enabled: true\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.yaml)
			if _, err := Load(path); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestLoad_FileTooLarge(t *testing.T) {
	data := strings.Repeat("#", MaxConfigFileBytes+1)
	path := writeConfig(t, data)
	if _, err := Load(path); err == nil {
		t.Error("expected error for oversized config file, got nil")
	}
}

func TestLoad_UnknownFields(t *testing.T) {
	path := writeConfig(t, "camera:\n  type: synthetic\nunknown_section:\n  foo: bar\n")
	if _, err := Load(path); err != nil {
		t.Errorf("unknown fields should be ignored, got error: %v", err)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "configs", "nonexistent.yaml")
	if _, err := Load(path); err == nil {
		t.Error("expected error for nonexistent file, got nil")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Camera.Type != "synthetic" {
		t.Errorf("camera.type = %q, want synthetic", cfg.Camera.Type)
	}
	if cfg.Sweep.AngleDeg != DefaultSweepAngleDeg {
		t.Errorf("sweep.angle_deg = %v", cfg.Sweep.AngleDeg)
	}
}

// ---------- Helper methods ----------

func TestConfig_Durations(t *testing.T) {
	cfg := &Config{
		Progress: ProgressConfig{IntervalMs: 50},
		Engine:   EngineConfig{RowCostUs: 20},
		Rig:      RigConfig{StepDelayUs: 500},
		Panel:    PanelConfig{PollMs: 20},
	}
	cases := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"ProgressInterval", cfg.ProgressInterval(), 50 * time.Millisecond},
		{"RowCost", cfg.RowCost(), 20 * time.Microsecond},
		{"RigStepDelay", cfg.RigStepDelay(), 500 * time.Microsecond},
		{"PanelPoll", cfg.PanelPoll(), 20 * time.Millisecond},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Errorf("%s() = %v, want %v", tc.name, tc.got, tc.want)
		}
	}
}
