package camera

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/cjeanneret/pansweep/internal/debug"
	"github.com/cjeanneret/pansweep/internal/mosaic"
)

// SyntheticConfig configures a Synthetic camera.
type SyntheticConfig struct {
	ID               int
	MountOrientation int
	Parameters       Parameters
	HorizontalFOV    float64 // degrees, used to turn pose into frame offsets
	VerticalFOV      float64
	Pose             PoseFunc
}

// Synthetic is a camera without a sensor: it ticks at the configured frame
// rate and stamps each frame with a transform derived from Pose.
type Synthetic struct {
	cfg SyntheticConfig

	mu       sync.Mutex
	settings Settings
	closed   bool
	latest   Frame
	hasFrame bool
	seq      uint64
	stop     chan struct{}
	done     chan struct{}
}

// NewSynthetic creates a synthetic camera. The first preview size and
// FPS range are selected until Configure is called.
func NewSynthetic(cfg SyntheticConfig) *Synthetic {
	if cfg.Pose == nil {
		cfg.Pose = func() (float64, float64) { return 0, 0 }
	}
	s := &Synthetic{cfg: cfg}
	if len(cfg.Parameters.PreviewSizes) > 0 {
		s.settings.PreviewSize = cfg.Parameters.PreviewSizes[0]
	}
	if len(cfg.Parameters.FPSRanges) > 0 {
		s.settings.FPSRange = cfg.Parameters.FPSRanges[0]
	}
	return s
}

func (s *Synthetic) ID() int { return s.cfg.ID }

func (s *Synthetic) MountOrientation() int { return s.cfg.MountOrientation }

func (s *Synthetic) Parameters() Parameters { return s.cfg.Parameters }

// Settings returns the current preview settings.
func (s *Synthetic) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

func (s *Synthetic) Configure(set Settings) error {
	p := s.cfg.Parameters
	if !slices.Contains(p.PreviewSizes, set.PreviewSize) {
		return fmt.Errorf("%w: preview size %s", ErrUnsupported, set.PreviewSize)
	}
	if !slices.Contains(p.FPSRanges, set.FPSRange) {
		return fmt.Errorf("%w: fps range %d-%d", ErrUnsupported, set.FPSRange.Min, set.FPSRange.Max)
	}
	if set.FocusMode != "" && !slices.Contains(p.FocusModes, set.FocusMode) {
		return fmt.Errorf("%w: focus mode %q", ErrUnsupported, set.FocusMode)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrNotOpen
	}
	s.settings = set
	debug.Verbose("Camera: preview %s @ %d-%d fps, focus %q", set.PreviewSize, set.FPSRange.Min, set.FPSRange.Max, set.FocusMode)
	return nil
}

func (s *Synthetic) StartPreview(fn func(Frame)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrNotOpen
	}
	if s.stop != nil {
		return fmt.Errorf("preview already running")
	}
	fps := s.settings.FPSRange.Max
	if fps <= 0 {
		fps = 30
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(time.Second/time.Duration(fps), fn, s.stop, s.done)
	debug.Verbose("Camera: preview started at %d fps", fps)
	return nil
}

func (s *Synthetic) loop(period time.Duration, fn func(Frame), stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			f := s.capture(now)
			debug.Trace("Camera: frame %d", f.Seq)
			fn(f)
		}
	}
}

func (s *Synthetic) capture(now time.Time) Frame {
	yaw, pitch := s.cfg.Pose()
	var tx, ty float64
	if s.cfg.HorizontalFOV > 0 {
		tx = yaw / s.cfg.HorizontalFOV
	}
	if s.cfg.VerticalFOV > 0 {
		ty = pitch / s.cfg.VerticalFOV
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.latest = Frame{Seq: s.seq, Transform: mosaic.Translation(tx, ty), At: now}
	s.hasFrame = true
	return s.latest
}

func (s *Synthetic) Latest() (Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.hasFrame
}

// StopPreview stops the frame goroutine and waits for it to exit.
func (s *Synthetic) StopPreview() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
	debug.Verbose("Camera: preview stopped")
}

func (s *Synthetic) Close() error {
	s.StopPreview()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
