package panorama

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cjeanneret/pansweep/internal/config"
	"github.com/cjeanneret/pansweep/internal/hw/camera"
	"github.com/cjeanneret/pansweep/internal/logic/capture"
	"github.com/cjeanneret/pansweep/internal/mosaic"
	"github.com/cjeanneret/pansweep/internal/storage"
)

const wait = 5 * time.Second

// manualCamera delivers frames only when the test emits them.
type manualCamera struct {
	params camera.Parameters

	mu      sync.Mutex
	fn      func(camera.Frame)
	latest  camera.Frame
	seq     uint64
	closed  bool
	configs []camera.Settings
}

func (c *manualCamera) ID() int                       { return 0 }
func (c *manualCamera) MountOrientation() int         { return 0 }
func (c *manualCamera) Parameters() camera.Parameters { return c.params }

func (c *manualCamera) Configure(s camera.Settings) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.configs = append(c.configs, s)
	return nil
}

func (c *manualCamera) StartPreview(fn func(camera.Frame)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fn = fn
	return nil
}

func (c *manualCamera) StopPreview() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fn = nil
}

func (c *manualCamera) Latest() (camera.Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest, c.seq > 0
}

func (c *manualCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *manualCamera) previewing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fn != nil
}

func (c *manualCamera) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// emit publishes a frame translated by x frame widths. It reports false
// when the preview is stopped.
func (c *manualCamera) emit(x float64) bool {
	c.mu.Lock()
	c.seq++
	c.latest = camera.Frame{Seq: c.seq, Transform: mosaic.Translation(x, 0), At: time.Now()}
	fn, f := c.fn, c.latest
	c.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(f)
	return true
}

// recorder is a Sink that keeps everything it is told.
type recorder struct {
	mu        sync.Mutex
	dialogs   []string
	saving    []int
	angles    []int
	dirs      []capture.Direction
	capturing []bool
	final     image.Image
	thumb     image.Image
	saved     []string
	errs      []string
	resets    int
	orients   []int
}

func (r *recorder) sink() Sink {
	lock := func(fn func()) {
		r.mu.Lock()
		defer r.mu.Unlock()
		fn()
	}
	return Sink{
		SweepProgress:      func(d int) { lock(func() { r.angles = append(r.angles, d) }) },
		SavingProgress:     func(p int) { lock(func() { r.saving = append(r.saving, p) }) },
		Direction:          func(d capture.Direction) { lock(func() { r.dirs = append(r.dirs, d) }) },
		Capturing:          func(on bool) { lock(func() { r.capturing = append(r.capturing, on) }) },
		Dialog:             func(s string) { lock(func() { r.dialogs = append(r.dialogs, s) }) },
		FinalImage:         func(img image.Image) { lock(func() { r.final = img }) },
		ResetWithThumbnail: func(img image.Image) { lock(func() { r.thumb = img }) },
		Error: func(msg string, ack func()) {
			lock(func() { r.errs = append(r.errs, msg) })
			ack()
		},
		Reset:        func() { lock(func() { r.resets++ }) },
		PictureSaved: func(p string) { lock(func() { r.saved = append(r.saved, p) }) },
		Orientation:  func(c int) { lock(func() { r.orients = append(r.orients, c) }) },
	}
}

func (r *recorder) snapshot() recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	return recorder{
		dialogs:   append([]string(nil), r.dialogs...),
		saving:    append([]int(nil), r.saving...),
		angles:    append([]int(nil), r.angles...),
		dirs:      append([]capture.Direction(nil), r.dirs...),
		capturing: append([]bool(nil), r.capturing...),
		final:     r.final,
		thumb:     r.thumb,
		saved:     append([]string(nil), r.saved...),
		errs:      append([]string(nil), r.errs...),
		resets:    r.resets,
		orients:   append([]int(nil), r.orients...),
	}
}

// failingEngine fails the high-res pass.
type failingEngine struct {
	*mosaic.SoftwareEngine
}

func (e failingEngine) CreateMosaic(ctx context.Context, highRes bool) mosaic.Status {
	if highRes {
		return mosaic.StatusError
	}
	return e.SoftwareEngine.CreateMosaic(ctx, highRes)
}

type harness struct {
	p      *Panorama
	cam    *manualCamera
	rec    *recorder
	engine *mosaic.Shared
	dir    string
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Camera.PreviewSizes = []config.Size{{Width: 64, Height: 48}}
	cfg.Storage.Dir = t.TempDir()
	cfg.Storage.ThumbnailWidth = 8
	cfg.Progress.IntervalMs = 5
	return cfg
}

func newHarness(t *testing.T, cfg *config.Config, engine mosaic.Engine) *harness {
	t.Helper()
	store, err := storage.New(cfg.Storage)
	require.NoError(t, err)

	h := &harness{
		cam:    &manualCamera{params: camera.ParametersFrom(cfg)},
		rec:    &recorder{},
		engine: mosaic.NewShared(engine),
		dir:    cfg.Storage.Dir,
	}
	h.p = New(Options{
		Config: cfg,
		Open:   func() (camera.Camera, error) { return h.cam, nil },
		Engine: h.engine,
		Store:  store,
		Sink:   h.rec.sink(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.p.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(wait):
			t.Error("session did not stop")
		}
	})
	return h
}

func softwareEngine(rowCost time.Duration) *mosaic.SoftwareEngine {
	return mosaic.NewSoftwareEngine(mosaic.SoftwareConfig{
		MaxFrames:      100,
		KeyframeStride: 0.1,
		LowResScale:    2,
		RowCost:        rowCost,
	})
}

func (h *harness) resume(t *testing.T) {
	t.Helper()
	h.p.Resume()
	require.Eventually(t, h.cam.previewing, wait, time.Millisecond)
}

// sweep emits frames panning right until the session leaves capture.
func (h *harness) sweep(t *testing.T, to float64) {
	t.Helper()
	for x := 0.0; x <= to; x += 0.25 {
		before := h.p.RenderStats().Ingested
		if !h.cam.emit(x) {
			return
		}
		require.Eventually(t, func() bool {
			return h.p.RenderStats().Ingested > before || h.p.Snapshot().State != capture.MosaicCapture
		}, wait, time.Millisecond)
	}
}

func (h *harness) startSweep(t *testing.T) {
	t.Helper()
	h.p.Shutter()
	require.Eventually(t, func() bool { return h.p.Snapshot().State == capture.MosaicCapture }, wait, time.Millisecond)
}

func panoramas(t *testing.T, dir string) []string {
	t.Helper()
	files, err := filepath.Glob(filepath.Join(dir, "PANO_*.jpg"))
	require.NoError(t, err)
	return files
}

func TestPanorama_SweepAutoStopsAndSaves(t *testing.T) {
	cfg := testConfig(t)
	h := newHarness(t, cfg, softwareEngine(0))
	h.p.Orientation(90)
	h.resume(t)
	h.startSweep(t)

	// 60° per frame width: 160° is reached at x = 2.75
	h.sweep(t, 4)

	require.Eventually(t, func() bool { return len(h.rec.snapshot().saved) == 1 }, wait, time.Millisecond)
	got := h.rec.snapshot()

	assert.Equal(t, capture.Viewfinder, h.p.Snapshot().State)
	assert.Equal(t, []bool{true, false}, got.capturing)
	assert.Contains(t, got.dialogs, msgPreparingPreview)
	assert.Contains(t, got.dirs, capture.DirectionRight)
	require.NotNil(t, got.final)
	require.NotNil(t, got.thumb)
	assert.Greater(t, got.thumb.Bounds().Dy(), got.thumb.Bounds().Dx(), "thumbnail rotated upright")
	assert.Equal(t, []int{90}, got.orients)
	for i := 1; i < len(got.saving); i++ {
		assert.GreaterOrEqual(t, got.saving[i], got.saving[i-1])
	}

	files := panoramas(t, h.dir)
	require.Len(t, files, 1)
	assert.Equal(t, files[0], got.saved[0])

	// back in the viewfinder with the preview running
	require.Eventually(t, h.cam.previewing, wait, time.Millisecond)
	assert.Empty(t, h.p.Snapshot().Job)
}

func TestPanorama_ShutterStopsSweep(t *testing.T) {
	h := newHarness(t, testConfig(t), softwareEngine(0))
	h.resume(t)
	h.startSweep(t)
	h.sweep(t, 1)

	h.p.Shutter()
	require.Eventually(t, func() bool { return len(h.rec.snapshot().saved) == 1 }, wait, time.Millisecond)
}

func TestPanorama_ShutterIgnoredWhilePaused(t *testing.T) {
	h := newHarness(t, testConfig(t), softwareEngine(0))
	h.p.Shutter()
	h.p.Resume()
	require.Eventually(t, h.cam.previewing, wait, time.Millisecond)
	assert.Equal(t, capture.Viewfinder, h.p.Snapshot().State)
}

func TestPanorama_CancelHighResSavesNothing(t *testing.T) {
	h := newHarness(t, testConfig(t), softwareEngine(5*time.Millisecond))
	h.resume(t)
	h.startSweep(t)
	h.sweep(t, 4)

	require.Eventually(t, func() bool { return h.p.Snapshot().Job == jobHighRes }, wait, time.Millisecond)
	h.p.Cancel()

	require.Eventually(t, func() bool { return h.p.Snapshot().Job == "" && h.cam.previewing() }, wait, time.Millisecond)
	assert.Empty(t, panoramas(t, h.dir))
	assert.Empty(t, h.rec.snapshot().saved)
}

func TestPanorama_CancelAbortsSweep(t *testing.T) {
	h := newHarness(t, testConfig(t), softwareEngine(0))
	h.resume(t)
	h.startSweep(t)
	h.sweep(t, 1)

	h.p.Cancel()
	require.Eventually(t, func() bool { return h.p.Snapshot().State == capture.Viewfinder }, wait, time.Millisecond)
	require.Eventually(t, h.cam.previewing, wait, time.Millisecond)
	assert.Empty(t, h.p.Snapshot().Job, "an aborted sweep schedules nothing")
	assert.NotContains(t, h.rec.snapshot().dialogs, msgPreparingPreview)
}

func TestPanorama_PauseDuringSweep(t *testing.T) {
	h := newHarness(t, testConfig(t), softwareEngine(0))
	h.resume(t)
	h.startSweep(t)
	h.sweep(t, 1)

	h.p.Pause()
	require.Eventually(t, func() bool { return !h.engine.IsMemoryAllocated() }, wait, time.Millisecond,
		"paused session releases the engine")
	assert.True(t, h.cam.isClosed())
	s := h.p.Snapshot()
	assert.True(t, s.Paused)
	assert.Equal(t, capture.Viewfinder, s.State)
	assert.Empty(t, s.Job)
}

func TestPanorama_FinalizeFailureShowsError(t *testing.T) {
	h := newHarness(t, testConfig(t), failingEngine{softwareEngine(0)})
	h.resume(t)
	h.startSweep(t)
	h.sweep(t, 4)

	require.Eventually(t, func() bool { return len(h.rec.snapshot().errs) == 1 }, wait, time.Millisecond)
	assert.Equal(t, msgFinalizeFailed, h.rec.snapshot().errs[0])
	// the acknowledged dialog returns to the preview
	require.Eventually(t, h.cam.previewing, wait, time.Millisecond)
	assert.Empty(t, panoramas(t, h.dir))
}

func TestPanorama_ResumeWaitsForPreviousSession(t *testing.T) {
	engine := softwareEngine(0)
	require.NoError(t, engine.Initialize(16, 16, mosaic.NV21Size(16, 16)))
	h := newHarness(t, testConfig(t), engine)

	h.p.Resume()
	require.Eventually(t, func() bool {
		return len(h.rec.snapshot().dialogs) > 0
	}, wait, time.Millisecond)
	assert.Equal(t, msgWaitingPrevious, h.rec.snapshot().dialogs[0])
	time.Sleep(20 * time.Millisecond)
	assert.False(t, h.cam.previewing(), "viewfinder waits for the engine")

	h.engine.Clear()
	require.Eventually(t, h.cam.previewing, wait, time.Millisecond)
	assert.True(t, h.engine.IsMemoryAllocated())
}

func TestPanorama_PauseCancelsEngineWait(t *testing.T) {
	engine := softwareEngine(0)
	require.NoError(t, engine.Initialize(16, 16, mosaic.NV21Size(16, 16)))
	h := newHarness(t, testConfig(t), engine)

	h.p.Resume()
	require.Eventually(t, func() bool { return len(h.rec.snapshot().dialogs) > 0 }, wait, time.Millisecond)
	h.p.Pause()
	require.Eventually(t, h.cam.isClosed, wait, time.Millisecond)

	h.engine.Clear()
	time.Sleep(20 * time.Millisecond)
	assert.False(t, h.cam.previewing())
}

func TestPanorama_ThumbnailKeptWhenPaused(t *testing.T) {
	cfg := testConfig(t)
	h := newHarness(t, cfg, softwareEngine(2*time.Millisecond))
	h.resume(t)
	h.startSweep(t)
	h.sweep(t, 4)

	require.Eventually(t, func() bool { return h.p.Snapshot().Job == jobHighRes }, wait, time.Millisecond)
	h.p.Pause()

	require.Eventually(t, func() bool { return len(h.rec.snapshot().saved) == 1 }, wait, time.Millisecond)
	_, err := os.Stat(filepath.Join(cfg.Storage.Dir, ".last_thumb.jpg"))
	assert.NoError(t, err)
	assert.Eventually(t, func() bool { return !h.engine.IsMemoryAllocated() }, wait, time.Millisecond)
}

func TestMailbox_KeepsStickyFlags(t *testing.T) {
	m := newMailbox()
	m.put(capture.Decision{AutoStop: true})
	m.put(capture.Decision{AngleDeg: 12, DirectionChanged: true})
	m.put(capture.Decision{AngleDeg: 13})

	d, ok := m.take()
	require.True(t, ok)
	assert.True(t, d.AutoStop)
	assert.True(t, d.DirectionChanged)
	assert.Equal(t, 13, d.AngleDeg)

	_, ok = m.take()
	assert.False(t, ok)
	assert.Len(t, m.notify, 1)
}
