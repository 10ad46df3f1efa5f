package geometry

import (
	"fmt"
	"math"

	"github.com/cjeanneret/pansweep/internal/config"
)

// FOVCalculator computes field of view angles from lens and sensor configuration.
type FOVCalculator struct {
	cfg *config.Config
}

// NewFOVCalculator creates a new FOV calculator.
// Returns an error if sensor information is not available
// (required for calculations).
func NewFOVCalculator(cfg *config.Config) (*FOVCalculator, error) {
	if cfg.Sensor == nil {
		return nil, fmt.Errorf("sensor configuration is required for FOV calculations")
	}
	if cfg.Lens.FocalLengthMm <= 0 {
		return nil, fmt.Errorf("lens.focal_length_mm must be > 0, got %.2f", cfg.Lens.FocalLengthMm)
	}
	return &FOVCalculator{cfg: cfg}, nil
}

// HorizontalFOV calculates the horizontal field of view in degrees.
// Formula: FOV = 2 × arctan(sensor_width / (2 × focal_length))
func (f *FOVCalculator) HorizontalFOV() float64 {
	return fovDeg(f.cfg.Sensor.WidthMm, f.cfg.Lens.FocalLengthMm)
}

// VerticalFOV calculates the vertical field of view in degrees.
func (f *FOVCalculator) VerticalFOV() float64 {
	return fovDeg(f.cfg.Sensor.HeightMm, f.cfg.Lens.FocalLengthMm)
}

func fovDeg(sensorMm, focalMm float64) float64 {
	return 2.0 * math.Atan(sensorMm/(2.0*focalMm)) * 180.0 / math.Pi
}

// ViewAngles are the camera's horizontal and vertical view angles in degrees.
// Sweep progress reported by the engine as a fraction of the frame is
// multiplied by these to get accumulated degrees.
type ViewAngles struct {
	Horizontal float64
	Vertical   float64
}

// ViewAnglesFor returns the explicit camera view angles when configured,
// otherwise derives them from lens and sensor.
func ViewAnglesFor(cfg *config.Config) (ViewAngles, error) {
	if cfg.Camera.HorizontalViewAngleDeg > 0 && cfg.Camera.VerticalViewAngleDeg > 0 {
		return ViewAngles{cfg.Camera.HorizontalViewAngleDeg, cfg.Camera.VerticalViewAngleDeg}, nil
	}
	fov, err := NewFOVCalculator(cfg)
	if err != nil {
		return ViewAngles{}, err
	}
	return ViewAngles{fov.HorizontalFOV(), fov.VerticalFOV()}, nil
}

// Rotated swaps the axes when the sensor is mounted at 90 or 270 degrees,
// so Horizontal always follows the pan axis.
func (v ViewAngles) Rotated(mountDeg int) ViewAngles {
	if mountDeg%180 != 0 {
		return ViewAngles{Horizontal: v.Vertical, Vertical: v.Horizontal}
	}
	return v
}
