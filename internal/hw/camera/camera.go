package camera

import (
	"errors"
	"fmt"
	"time"

	"github.com/cjeanneret/pansweep/internal/config"
	"github.com/cjeanneret/pansweep/internal/mosaic"
)

// Size is a preview resolution.
type Size struct {
	Width  int
	Height int
}

func (s Size) Pixels() int { return s.Width * s.Height }

func (s Size) String() string { return fmt.Sprintf("%dx%d", s.Width, s.Height) }

// FPSRange is a supported preview frame-rate range.
type FPSRange struct {
	Min int
	Max int
}

// Parameters describe what the sensor supports.
type Parameters struct {
	PreviewSizes []Size
	FPSRanges    []FPSRange
	FocusModes   []string
	BitsPerPixel int
}

// Settings is the preview configuration chosen for a session.
type Settings struct {
	PreviewSize Size
	FPSRange    FPSRange
	FocusMode   string // "" keeps the camera default
}

// Frame is one preview frame notification. Transform places the frame
// relative to the sensor's home pose.
type Frame struct {
	Seq       uint64
	Transform mosaic.Transform
	At        time.Time
}

var (
	ErrUnsupported = errors.New("unsupported camera setting")
	ErrNotOpen     = errors.New("camera is closed")
)

// Camera is the frame source used by a capture session. It represents an
// abstract preview stream, regardless of how frames are produced.
type Camera interface {
	ID() int
	// MountOrientation is the clockwise rotation of the sensor relative to
	// the device's natural orientation: 0, 90, 180 or 270.
	MountOrientation() int
	Parameters() Parameters
	Configure(s Settings) error
	// StartPreview delivers frames to fn from the camera's own goroutine.
	StartPreview(fn func(Frame)) error
	StopPreview()
	// Latest returns the most recent frame, as a texture update would.
	Latest() (Frame, bool)
	Close() error
}

// PoseFunc reports the current yaw and pitch of the camera in degrees.
type PoseFunc func() (yawDeg, pitchDeg float64)

// Open creates the camera selected by cfg.Camera.Type.
func Open(cfg *config.Config, pose PoseFunc, hfovDeg, vfovDeg float64) (Camera, error) {
	switch cfg.Camera.Type {
	case "synthetic":
		return NewSynthetic(SyntheticConfig{
			ID:               cfg.Camera.ID,
			MountOrientation: cfg.Camera.MountOrientation,
			Parameters:       ParametersFrom(cfg),
			HorizontalFOV:    hfovDeg,
			VerticalFOV:      vfovDeg,
			Pose:             pose,
		}), nil
	default:
		return nil, fmt.Errorf("unknown camera type %q", cfg.Camera.Type)
	}
}

// ParametersFrom converts the configured sensor capabilities.
func ParametersFrom(cfg *config.Config) Parameters {
	p := Parameters{
		FocusModes:   append([]string(nil), cfg.Camera.FocusModes...),
		BitsPerPixel: cfg.Camera.BitsPerPixel,
	}
	for _, s := range cfg.Camera.PreviewSizes {
		p.PreviewSizes = append(p.PreviewSizes, Size{s.Width, s.Height})
	}
	for _, r := range cfg.Camera.FPSRanges {
		p.FPSRanges = append(p.FPSRanges, FPSRange{r.Min, r.Max})
	}
	return p
}

// HandPan simulates a hand-held pan at a constant rate starting now.
func HandPan(yawRateDegSec, pitchRateDegSec float64) PoseFunc {
	start := time.Now()
	return func() (float64, float64) {
		s := time.Since(start).Seconds()
		return yawRateDegSec * s, pitchRateDegSec * s
	}
}
