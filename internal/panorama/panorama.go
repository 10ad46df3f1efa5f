// Package panorama is the capture session: it owns the UI state on one
// interactive goroutine and wires the camera, renderer, state machine,
// stitch engine and background jobs together.
package panorama

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/cjeanneret/pansweep/internal/config"
	"github.com/cjeanneret/pansweep/internal/debug"
	"github.com/cjeanneret/pansweep/internal/hw/camera"
	"github.com/cjeanneret/pansweep/internal/logic/capture"
	"github.com/cjeanneret/pansweep/internal/logic/jobs"
	"github.com/cjeanneret/pansweep/internal/logic/motion"
	"github.com/cjeanneret/pansweep/internal/logic/orientation"
	"github.com/cjeanneret/pansweep/internal/mosaic"
	"github.com/cjeanneret/pansweep/internal/render"
	"github.com/cjeanneret/pansweep/internal/storage"
	"github.com/cjeanneret/pansweep/internal/telemetry"
)

const (
	jobLowRes  = "low-res"
	jobHighRes = "high-res"

	callQueueSize = 16
)

// OpenFunc opens the camera when the session resumes.
type OpenFunc func() (camera.Camera, error)

// Options are the collaborators of a session. Rig and Metrics may be nil.
type Options struct {
	Config  *config.Config
	Open    OpenFunc
	Engine  *mosaic.Shared
	Store   *storage.Store
	Rig     *motion.Controller
	Metrics *telemetry.Metrics
	Sink    Sink
}

// Snapshot is a read-only view of the session, safe to take from any
// goroutine.
type Snapshot struct {
	State        capture.State
	Paused       bool
	Job          string
	Compensation int
	Progress     capture.Progress
}

// Panorama is one capture session. Create it with New, start Run, then
// drive it with Resume, Shutter, Cancel and Pause.
type Panorama struct {
	cfg     *config.Config
	open    OpenFunc
	engine  *mosaic.Shared
	store   *storage.Store
	rig     *motion.Controller
	metrics *telemetry.Metrics
	sink    Sink

	runner      *jobs.Runner
	machine     *capture.Machine
	tracker     *orientation.Tracker
	coordinator *render.Coordinator
	surface     *render.SoftwareSurface
	source      *liveSource
	box         *mailbox

	calls chan func()
	done  chan struct{}
	once  sync.Once

	pausedFlag atomic.Bool
	// serialises rig sweeps with the return move of the previous one
	rigMu sync.Mutex

	// owned by the interactive goroutine
	ctx         context.Context
	paused      bool
	cam         camera.Camera
	settings    camera.Settings
	mount       int
	previewing  bool
	initialized bool
	waitCancel  context.CancelFunc
	rigCancel   context.CancelFunc
}

// New builds a paused session.
func New(opts Options) *Panorama {
	p := &Panorama{
		cfg:     opts.Config,
		open:    opts.Open,
		engine:  opts.Engine,
		store:   opts.Store,
		rig:     opts.Rig,
		metrics: opts.Metrics,
		sink:    opts.Sink,
		source:  &liveSource{},
		box:     newMailbox(),
		calls:   make(chan func(), callQueueSize),
		done:    make(chan struct{}),
		ctx:     context.Background(),
		paused:  true,
	}
	p.pausedFlag.Store(true)
	p.runner = jobs.NewRunner(p.metrics.JobFinished)
	p.tracker = orientation.NewTracker(p.sink.orientation)

	cc := p.cfg.Sweep
	p.machine = capture.NewMachine(capture.Config{
		SweepAngleDeg:         cc.AngleDeg,
		SpeedThresholdDegSec:  cc.SpeedThresholdDegSec,
		DirectionThresholdDeg: cc.DirectionThresholdDeg,
	}, p.runner, p.tracker.FreezeCapture)

	p.surface = render.NewSoftwareSurface(p.source)
	p.coordinator = render.NewCoordinator(p.surface, p.engine, p.machine, p.metrics, render.DefaultQueueSize)
	return p
}

// Run owns the interactive goroutine and the render goroutine until ctx is
// done. It must be called once.
func (p *Panorama) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.coordinator.Run(gctx) })
	g.Go(func() error { return p.loop(gctx) })
	err := g.Wait()
	if errors.Is(err, ctx.Err()) {
		return nil
	}
	return err
}

func (p *Panorama) loop(ctx context.Context) error {
	defer p.once.Do(func() { close(p.done) })
	p.ctx = ctx
	debug.Verbose("Panorama: session loop started")
	for {
		select {
		case <-ctx.Done():
			p.pause()
			p.runner.Close()
			debug.Verbose("Panorama: session loop stopped")
			return nil
		case fn := <-p.calls:
			fn()
		case d := <-p.runner.Events():
			p.onDelivery(d)
		case <-p.box.notify:
			if d, ok := p.box.take(); ok {
				p.onDecision(d)
			}
		}
	}
}

// post queues fn for the interactive goroutine. It reports false once the
// session has stopped.
func (p *Panorama) post(fn func()) bool {
	select {
	case p.calls <- fn:
		return true
	case <-p.done:
		return false
	}
}

// tryPost is post for lossy updates: it drops fn when the queue is full.
func (p *Panorama) tryPost(fn func()) bool {
	select {
	case p.calls <- fn:
		return true
	default:
		return false
	}
}

// Resume opens the camera and returns to the viewfinder.
func (p *Panorama) Resume() { p.post(p.resume) }

// Pause aborts any sweep and releases the camera. A running finalize job
// keeps going and its outcome is applied silently.
func (p *Panorama) Pause() { p.post(p.pause) }

// Shutter starts a sweep from the viewfinder or stops the current one.
func (p *Panorama) Shutter() { p.post(p.shutter) }

// Cancel aborts the current sweep, or cancels the running finalize job.
func (p *Panorama) Cancel() { p.post(p.cancel) }

// Orientation feeds a raw orientation sensor reading in degrees.
func (p *Panorama) Orientation(raw int) { p.post(func() { p.tracker.Update(raw) }) }

// DisplayRotation records the current display rotation.
func (p *Panorama) DisplayRotation(deg int) {
	p.post(func() { p.tracker.SetDisplayRotation(deg) })
}

// Snapshot reports the current session state.
func (p *Panorama) Snapshot() Snapshot {
	s := Snapshot{
		State:        p.machine.State(),
		Paused:       p.pausedFlag.Load(),
		Compensation: p.tracker.Compensation(),
		Progress:     p.machine.Progress(),
	}
	if h := p.runner.Active(); h != nil {
		s.Job = h.Name
	}
	return s
}

// RenderStats exposes the render coordinator counters.
func (p *Panorama) RenderStats() render.Stats { return p.coordinator.Stats() }

// liveSource lets the surface latch frames from whichever camera the
// session currently holds.
type liveSource struct {
	mu  sync.Mutex
	cam camera.Camera
}

func (s *liveSource) set(cam camera.Camera) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cam = cam
}

func (s *liveSource) Latest() (camera.Frame, bool) {
	s.mu.Lock()
	cam := s.cam
	s.mu.Unlock()
	if cam == nil {
		return camera.Frame{}, false
	}
	return cam.Latest()
}
