package mosaic

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cjeanneret/pansweep/internal/debug"
)

// SoftwareConfig tunes SoftwareEngine.
type SoftwareConfig struct {
	MaxFrames      int           // keyframes after which the sweep is complete
	KeyframeStride float64       // minimum offset between keyframes, in frames
	LowResScale    int           // downscale factor of the preview mosaic
	RowCost        time.Duration // simulated cost per rendered row
}

type keyframe struct {
	x, y float64
}

// SoftwareEngine is a CPU reference engine. It keyframes incoming frames by
// their translation, and renders a procedural scene across the swept area as
// NV21. It stands in for a native stitcher on machines without one.
type SoftwareEngine struct {
	cfg SoftwareConfig
	now func() time.Time

	mu        sync.Mutex
	allocated bool
	width     int
	height    int
	frames    []keyframe
	origin    keyframe
	last      keyframe
	lastAt    time.Time
	finished  bool
	listener  func(Alignment)
	result    []byte

	progress  atomic.Int32
	cancel    atomic.Bool
	changedMu sync.Mutex
	changed   chan struct{}
}

// NewSoftwareEngine returns an engine with no memory allocated.
func NewSoftwareEngine(cfg SoftwareConfig) *SoftwareEngine {
	if cfg.MaxFrames <= 0 {
		cfg.MaxFrames = 100
	}
	if cfg.KeyframeStride <= 0 {
		cfg.KeyframeStride = 0.05
	}
	if cfg.LowResScale <= 0 {
		cfg.LowResScale = 4
	}
	return &SoftwareEngine{
		cfg:     cfg,
		now:     time.Now,
		changed: make(chan struct{}),
	}
}

func (e *SoftwareEngine) Initialize(width, height, bufSize int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid preview size %dx%d", width, height)
	}
	if bufSize < NV21Size(width, height) {
		return fmt.Errorf("preview buffer of %d bytes too small for %dx%d", bufSize, width, height)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.allocated = true
	e.width, e.height = width, height
	e.resetLocked()
	debug.Verbose("Engine: initialized for %dx%d (buffer %d bytes)", width, height, bufSize)
	return nil
}

func (e *SoftwareEngine) SetProgressListener(fn func(Alignment)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listener = fn
}

func (e *SoftwareEngine) ProcessFrame(t Transform) {
	x, y := t.Offset()
	now := e.now()

	e.mu.Lock()
	if !e.allocated || e.finished {
		e.mu.Unlock()
		return
	}
	kf := keyframe{x, y}
	var a Alignment
	if len(e.frames) == 0 {
		e.origin = kf
		e.frames = append(e.frames, kf)
	} else {
		if dt := now.Sub(e.lastAt).Seconds(); dt > 0 {
			a.RateX = (x - e.last.x) / dt
			a.RateY = (y - e.last.y) / dt
		}
		prev := e.frames[len(e.frames)-1]
		if math.Abs(x-prev.x) >= e.cfg.KeyframeStride || math.Abs(y-prev.y) >= e.cfg.KeyframeStride {
			e.frames = append(e.frames, kf)
		}
	}
	e.last, e.lastAt = kf, now
	e.finished = len(e.frames) >= e.cfg.MaxFrames
	a.Finished = e.finished
	a.ProgressX = x - e.origin.x
	a.ProgressY = y - e.origin.y
	listener := e.listener
	e.mu.Unlock()

	if listener != nil {
		listener(a)
	}
}

// Keyframes returns how many frames were kept for the mosaic.
func (e *SoftwareEngine) Keyframes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.frames)
}

func (e *SoftwareEngine) ReportProgress(blocking, cancelRequested bool) int {
	if cancelRequested {
		e.cancel.Store(true)
	}
	if blocking {
		e.changedMu.Lock()
		ch := e.changed
		e.changedMu.Unlock()
		t := time.NewTimer(10 * time.Millisecond)
		select {
		case <-ch:
		case <-t.C:
		}
		t.Stop()
	}
	return int(e.progress.Load())
}

func (e *SoftwareEngine) setProgress(p int) {
	e.progress.Store(int32(p))
	e.changedMu.Lock()
	close(e.changed)
	e.changed = make(chan struct{})
	e.changedMu.Unlock()
}

func (e *SoftwareEngine) CreateMosaic(ctx context.Context, highRes bool) Status {
	e.mu.Lock()
	if !e.allocated || len(e.frames) == 0 {
		e.mu.Unlock()
		return StatusError
	}
	frames := append([]keyframe(nil), e.frames...)
	fw, fh := e.width, e.height
	e.mu.Unlock()

	e.cancel.Store(false)
	e.setProgress(0)

	minX, maxX, minY, maxY := frames[0].x, frames[0].x, frames[0].y, frames[0].y
	for _, f := range frames[1:] {
		minX, maxX = math.Min(minX, f.x), math.Max(maxX, f.x)
		minY, maxY = math.Min(minY, f.y), math.Max(maxY, f.y)
	}
	scale := 1
	if !highRes {
		scale = e.cfg.LowResScale
	}
	w := evenAtLeast2(int(float64(fw)*(1+maxX-minX)) / scale)
	h := evenAtLeast2(int(float64(fh)*(1+maxY-minY)) / scale)
	debug.Verbose("Engine: rendering %dx%d from %d keyframes (highRes=%v)", w, h, len(frames), highRes)

	out := make([]byte, NV21Size(w, h), NV21Size(w, h)+TrailerSize)
	for row := 0; row < h; row++ {
		if ctx.Err() != nil || e.cancel.Load() {
			debug.Live("Engine: mosaic cancelled at row %d/%d", row, h)
			return StatusCancelled
		}
		// world coordinates in frames
		wy := minY + float64(row)/float64(h)*(1+maxY-minY)
		line := out[row*w : (row+1)*w]
		for col := range line {
			wx := minX + float64(col)/float64(w)*(1+maxX-minX)
			line[col] = scene(wx, wy)
		}
		if e.cfg.RowCost > 0 {
			time.Sleep(e.cfg.RowCost)
		}
		if p := (row + 1) * 100 / h; p != int(e.progress.Load()) {
			e.setProgress(p)
		}
	}
	for i := w * h; i < len(out); i++ {
		out[i] = 128 // neutral chroma
	}
	out = AppendTrailer(out, w, h)

	e.mu.Lock()
	e.result = out
	e.mu.Unlock()
	return StatusOK
}

func evenAtLeast2(n int) int {
	if n < 2 {
		return 2
	}
	return n &^ 1
}

// scene is the luma of the synthetic world at (x, y) frames from the origin.
func scene(x, y float64) byte {
	v := 128 + 60*math.Sin(x*2*math.Pi*1.5) + 40*math.Cos(y*2*math.Pi*0.75)
	return byte(math.Max(16, math.Min(235, v)))
}

func (e *SoftwareEngine) FinalMosaicNV21() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.result == nil {
		return nil
	}
	return append([]byte(nil), e.result...)
}

func (e *SoftwareEngine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetLocked()
}

func (e *SoftwareEngine) resetLocked() {
	e.frames = e.frames[:0]
	e.finished = false
	e.result = nil
	e.lastAt = time.Time{}
	e.progress.Store(0)
	e.cancel.Store(false)
}

func (e *SoftwareEngine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.allocated = false
	e.frames = nil
	e.result = nil
	debug.Verbose("Engine: memory released")
}

func (e *SoftwareEngine) IsMemoryAllocated() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.allocated
}
