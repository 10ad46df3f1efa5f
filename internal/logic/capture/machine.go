// Package capture holds the sweep state machine: when a sweep may start or
// stop, and how engine alignment reports turn into sweep feedback.
package capture

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/cjeanneret/pansweep/internal/debug"
	"github.com/cjeanneret/pansweep/internal/logic/geometry"
	"github.com/cjeanneret/pansweep/internal/mosaic"
)

// State is the capture state. Only Viewfinder and MosaicCapture exist.
type State int

const (
	Viewfinder State = iota
	MosaicCapture
)

func (s State) String() string {
	if s == MosaicCapture {
		return "mosaic_capture"
	}
	return "viewfinder"
}

// Direction of the pan, decided once per sweep.
type Direction int

const (
	DirectionNone Direction = iota
	DirectionLeft
	DirectionRight
)

func (d Direction) String() string {
	switch d {
	case DirectionLeft:
		return "left"
	case DirectionRight:
		return "right"
	default:
		return "none"
	}
}

var (
	ErrAlreadyCapturing = errors.New("sweep already in progress")
	ErrNotCapturing     = errors.New("no sweep in progress")
	ErrJobRunning       = errors.New("a background job is running")
)

// JobGate reports whether the single background job slot is taken.
type JobGate interface {
	Running() bool
}

// Config holds the sweep thresholds.
type Config struct {
	SweepAngleDeg         float64 // auto-stop once either axis reaches this
	SpeedThresholdDegSec  float64 // too fast above this on either axis
	DirectionThresholdDeg float64 // pan direction decided past this
	View                  geometry.ViewAngles
}

// Progress is the accumulated sweep in degrees.
type Progress struct {
	HorizontalDeg float64
	VerticalDeg   float64
	RateXDegSec   float64
	RateYDegSec   float64
}

// MajorAngle returns the accumulated angle along the dominant axis,
// truncated to whole degrees.
func (p Progress) MajorAngle() int {
	if math.Abs(p.HorizontalDeg) > math.Abs(p.VerticalDeg) {
		return int(p.HorizontalDeg)
	}
	return int(p.VerticalDeg)
}

// Decision is what an alignment report asks the session to do.
type Decision struct {
	// AutoStop is set when the engine is full or the sweep angle is reached.
	AutoStop bool

	Progress         Progress
	AngleDeg         int
	TooFast          bool
	Direction        Direction
	DirectionChanged bool
}

// Machine is the capture state machine. All methods are safe for
// concurrent use; alignment reports arrive on the render goroutine while
// start/stop come from the interactive one.
type Machine struct {
	cfg    Config
	jobs   JobGate
	freeze func()

	mu        sync.Mutex
	state     State
	progress  Progress
	direction Direction
	startedAt time.Time
	now       func() time.Time
}

// NewMachine creates a machine in Viewfinder. freeze is called on every
// successful Start to pin the capture orientation.
func NewMachine(cfg Config, jobs JobGate, freeze func()) *Machine {
	return &Machine{cfg: cfg, jobs: jobs, freeze: freeze, now: time.Now}
}

// SetViewAngles updates the view angles after the camera is (re)opened.
func (m *Machine) SetViewAngles(v geometry.ViewAngles) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.View = v
}

// ViewAngles returns the angles sweep progress is measured against.
func (m *Machine) ViewAngles() geometry.ViewAngles {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.View
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) Progress() Progress {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.progress
}

// StartedAt is the time of the last successful Start.
func (m *Machine) StartedAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startedAt
}

// Start begins a sweep. It is a no-op returning an error when a sweep is
// already running or a background job holds the slot.
func (m *Machine) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == MosaicCapture {
		return ErrAlreadyCapturing
	}
	if m.jobs != nil && m.jobs.Running() {
		return ErrJobRunning
	}
	m.progress = Progress{}
	m.direction = DirectionNone
	m.startedAt = m.now()
	if m.freeze != nil {
		m.freeze()
	}
	m.state = MosaicCapture
	debug.Info("Capture: sweep started")
	return nil
}

// Stop ends the sweep. Unless aborted, and only when the job slot is free,
// schedule is invoked under the machine lock so that admission is atomic
// with the state change. It reports whether schedule was called successfully.
func (m *Machine) Stop(aborted bool, schedule func() error) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != MosaicCapture {
		return false, ErrNotCapturing
	}
	m.state = Viewfinder
	debug.Info("Capture: sweep stopped (aborted=%v) at %.1f°", aborted, m.progress.HorizontalDeg)

	if aborted || schedule == nil || (m.jobs != nil && m.jobs.Running()) {
		return false, nil
	}
	if err := schedule(); err != nil {
		return false, fmt.Errorf("schedule finalize: %w", err)
	}
	return true, nil
}

// Reset forces Viewfinder without scheduling anything.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = Viewfinder
	m.progress = Progress{}
	m.direction = DirectionNone
}

// Align converts an engine report into degrees and decides what to do.
// ok is false when no sweep is running and the report must be ignored.
func (m *Machine) Align(a mosaic.Alignment) (d Decision, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != MosaicCapture {
		return Decision{}, false
	}

	p := Progress{
		HorizontalDeg: a.ProgressX * m.cfg.View.Horizontal,
		VerticalDeg:   a.ProgressY * m.cfg.View.Vertical,
		RateXDegSec:   a.RateX * m.cfg.View.Horizontal,
		RateYDegSec:   a.RateY * m.cfg.View.Vertical,
	}
	m.progress = p
	d.Progress = p

	if a.Finished ||
		math.Abs(p.HorizontalDeg) >= m.cfg.SweepAngleDeg ||
		math.Abs(p.VerticalDeg) >= m.cfg.SweepAngleDeg {
		d.AutoStop = true
		return d, true
	}

	d.TooFast = math.Abs(p.RateXDegSec) > m.cfg.SpeedThresholdDegSec ||
		math.Abs(p.RateYDegSec) > m.cfg.SpeedThresholdDegSec
	d.AngleDeg = p.MajorAngle()

	if m.direction == DirectionNone && math.Abs(float64(d.AngleDeg)) > m.cfg.DirectionThresholdDeg {
		if d.AngleDeg > 0 {
			m.direction = DirectionRight
		} else {
			m.direction = DirectionLeft
		}
		d.DirectionChanged = true
		debug.Live("Capture: panning %s", m.direction)
	}
	d.Direction = m.direction
	return d, true
}
