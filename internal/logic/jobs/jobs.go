// Package jobs runs the single background finalize job and delivers its
// outcome to the interactive goroutine as an ordered event stream.
package jobs

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cjeanneret/pansweep/internal/debug"
)

// Event is the one message a job produces. The set is closed:
// LowResReady, ResetWithThumbnail, FinalizeFailed and ResetToPreview.
type Event interface {
	isEvent()
}

// LowResReady carries the preview mosaic for review.
type LowResReady struct {
	Image image.Image
}

// ResetWithThumbnail follows a successful save.
type ResetWithThumbnail struct {
	Path      string
	Thumbnail image.Image
}

// FinalizeFailed reports an engine or encode failure.
type FinalizeFailed struct {
	Err error
}

// ResetToPreview returns to the viewfinder without saving.
type ResetToPreview struct{}

func (LowResReady) isEvent()        {}
func (ResetWithThumbnail) isEvent() {}
func (FinalizeFailed) isEvent()     {}
func (ResetToPreview) isEvent()     {}

// State is the lifecycle of a job handle.
type State int

const (
	Pending State = iota
	Running
	Completed
	Cancelled
	Disposed
)

func (s State) String() string {
	return [...]string{"pending", "running", "completed", "cancelled", "disposed"}[s]
}

// Job does the work and returns exactly one event. It must observe ctx.
type Job func(ctx context.Context) Event

var (
	ErrBusy   = errors.New("a background job is already running")
	ErrClosed = errors.New("job runner closed")
)

// Handle identifies a submitted job.
type Handle struct {
	ID   uuid.UUID
	Name string

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	state   State
	started time.Time
}

// Context is cancelled when the job is cancelled.
func (h *Handle) Context() context.Context { return h.ctx }

// Done is closed once the consumer has disposed of the job's event.
func (h *Handle) Done() <-chan struct{} { return h.done }

func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *Handle) setState(s State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = s
}

// Delivery pairs an event with the job that produced it.
type Delivery struct {
	Handle *Handle
	Event  Event
}

// FinishFunc observes every disposed job.
type FinishFunc func(name string, final State, elapsed time.Duration)

// Runner admits at most one job at a time. The slot is released only when
// the consumer calls Finish for the delivered event.
type Runner struct {
	events   chan Delivery
	quit     chan struct{}
	onFinish FinishFunc
	wg       sync.WaitGroup

	mu     sync.Mutex
	active *Handle
	closed bool
}

// NewRunner creates an idle runner. onFinish may be nil.
func NewRunner(onFinish FinishFunc) *Runner {
	return &Runner{
		events:   make(chan Delivery, 1),
		quit:     make(chan struct{}),
		onFinish: onFinish,
	}
}

// Events is the ordered stream of job outcomes.
func (r *Runner) Events() <-chan Delivery { return r.events }

// Running reports whether the job slot is taken.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil
}

// Active returns the current job, or nil.
func (r *Runner) Active() *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Submit starts job on its own goroutine. It fails with ErrBusy while
// another job holds the slot.
func (r *Runner) Submit(ctx context.Context, name string, job Job) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	if r.active != nil {
		return nil, ErrBusy
	}
	jctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		ID:      uuid.New(),
		Name:    name,
		ctx:     jctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		started: time.Now(),
	}
	r.active = h
	r.wg.Add(1)
	go r.run(h, job)
	debug.Live("Jobs: %s %s submitted", name, h.ID)
	return h, nil
}

func (r *Runner) run(h *Handle, job Job) {
	defer r.wg.Done()
	h.setState(Running)
	ev := job(h.ctx)
	if h.ctx.Err() != nil {
		h.setState(Cancelled)
	} else {
		h.setState(Completed)
	}
	debug.Live("Jobs: %s %s %s", h.Name, h.ID, h.State())
	select {
	case r.events <- Delivery{Handle: h, Event: ev}:
	case <-r.quit:
		r.Finish(h)
	}
}

// Cancel cancels the running job, if any. The job still delivers its event.
func (r *Runner) Cancel() {
	r.mu.Lock()
	h := r.active
	r.mu.Unlock()
	if h != nil {
		debug.Live("Jobs: cancelling %s %s", h.Name, h.ID)
		h.cancel()
	}
}

// Finish disposes of h and frees the slot. The consumer calls it when it
// receives h's event, before acting on it.
func (r *Runner) Finish(h *Handle) {
	r.mu.Lock()
	if r.active != h {
		r.mu.Unlock()
		return
	}
	r.active = nil
	r.mu.Unlock()

	final := h.State()
	h.setState(Disposed)
	h.cancel()
	close(h.done)
	if r.onFinish != nil {
		r.onFinish(h.Name, final, time.Since(h.started))
	}
}

// Close cancels any running job and waits for it to return.
func (r *Runner) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	h := r.active
	r.mu.Unlock()
	if h != nil {
		h.cancel()
	}
	close(r.quit)
	r.wg.Wait()
}
