// Package render owns the GPU context: every surface call and every engine
// ingestion happens on the goroutine running Coordinator.Run.
package render

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/cjeanneret/pansweep/internal/debug"
	"github.com/cjeanneret/pansweep/internal/logic/capture"
	"github.com/cjeanneret/pansweep/internal/mosaic"
)

// DefaultQueueSize bounds the pending GPU operations.
const DefaultQueueSize = 4

// Surface is the preview texture and its renderers.
type Surface interface {
	// UpdateTexImage latches the latest camera frame into the texture.
	UpdateTexImage() error
	// TransformMatrix is the transform of the latched frame.
	TransformMatrix() mosaic.Transform
	DrawPreview(t mosaic.Transform)
	DrawAlignment(t mosaic.Transform)
}

// Ingester receives frames for stitching.
type Ingester interface {
	ProcessFrame(t mosaic.Transform)
}

// StateSource tells the coordinator which draw path to take.
type StateSource interface {
	State() capture.State
}

// Observer is notified about frame handling. Implementations must be cheap.
type Observer interface {
	FrameDropped(reason string)
	FrameRendered(capturing bool)
}

// Stats are cumulative frame counters.
type Stats struct {
	Available uint64
	Dropped   uint64
	Rendered  uint64
	Ingested  uint64
}

// Coordinator serialises GPU work onto one goroutine.
type Coordinator struct {
	surface  Surface
	engine   Ingester
	state    StateSource
	observer Observer
	ops      chan func()

	// held for reading by every op, for writing by Pause
	mu       sync.RWMutex
	paused   bool
	attached bool

	renderEnabled atomic.Bool

	tmu       sync.Mutex
	transform mosaic.Transform

	available, dropped, rendered, ingested atomic.Uint64
}

// NewCoordinator creates a paused, detached coordinator.
func NewCoordinator(surface Surface, engine Ingester, state StateSource, observer Observer, queueSize int) *Coordinator {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Coordinator{
		surface:   surface,
		engine:    engine,
		state:     state,
		observer:  observer,
		ops:       make(chan func(), queueSize),
		paused:    true,
		transform: mosaic.Identity(),
	}
}

// Run executes queued operations on a locked OS thread until ctx is done.
func (c *Coordinator) Run(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	debug.Verbose("Render: GPU goroutine started")
	for {
		select {
		case <-ctx.Done():
			debug.Verbose("Render: GPU goroutine stopped")
			return ctx.Err()
		case op := <-c.ops:
			op()
		}
	}
}

// Resume re-enables frame handling after Pause.
func (c *Coordinator) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = false
}

// Pause stops all surface and engine access. It waits for an operation in
// flight; operations still queued become no-ops.
func (c *Coordinator) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = true
	c.renderEnabled.Store(false)
}

// Attach installs the frame listener.
func (c *Coordinator) Attach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attached = true
}

// Detach removes the frame listener. Later notifications are dropped.
func (c *Coordinator) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attached = false
}

func (c *Coordinator) SetRenderEnabled(on bool) { c.renderEnabled.Store(on) }

func (c *Coordinator) RenderEnabled() bool { return c.renderEnabled.Load() }

// Transform returns the last transform read from the surface.
func (c *Coordinator) Transform() mosaic.Transform {
	c.tmu.Lock()
	defer c.tmu.Unlock()
	return c.transform
}

func (c *Coordinator) Stats() Stats {
	return Stats{
		Available: c.available.Load(),
		Dropped:   c.dropped.Load(),
		Rendered:  c.rendered.Load(),
		Ingested:  c.ingested.Load(),
	}
}

// Post queues op for the GPU goroutine. It reports false when the queue is
// full.
func (c *Coordinator) Post(op func()) bool {
	select {
	case c.ops <- op:
		return true
	default:
		return false
	}
}

// OnFrameAvailable is the camera's frame notification. It may be called
// from any goroutine and never blocks.
func (c *Coordinator) OnFrameAvailable(seq uint64) {
	c.available.Add(1)
	c.mu.RLock()
	live := !c.paused && c.attached
	c.mu.RUnlock()
	if !live {
		c.drop("paused")
		return
	}
	c.renderEnabled.Store(true)
	if !c.Post(func() { c.render(seq) }) {
		c.drop("queue_full")
	}
}

func (c *Coordinator) drop(reason string) {
	c.dropped.Add(1)
	if c.observer != nil {
		c.observer.FrameDropped(reason)
	}
}

func (c *Coordinator) render(seq uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.paused {
		return
	}
	if err := c.surface.UpdateTexImage(); err != nil {
		debug.Errorf("Render: frame %d: update texture: %v", seq, err)
		return
	}
	c.tmu.Lock()
	defer c.tmu.Unlock()
	c.transform = c.surface.TransformMatrix()

	capturing := c.state.State() == capture.MosaicCapture
	if capturing {
		c.surface.DrawAlignment(c.transform)
		c.engine.ProcessFrame(c.transform)
		c.ingested.Add(1)
	} else {
		c.surface.DrawPreview(c.transform)
	}
	c.rendered.Add(1)
	if c.observer != nil {
		c.observer.FrameRendered(capturing)
	}
	if debug.IsEnabled(debug.LevelTrace) {
		x, y := c.transform.Offset()
		debug.Trace("Render: frame %d at (%.3f, %.3f) capturing=%v", seq, x, y, capturing)
	}
}
