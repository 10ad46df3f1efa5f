package panorama

import (
	"context"
	"errors"
	"os"

	"github.com/cjeanneret/pansweep/internal/debug"
	"github.com/cjeanneret/pansweep/internal/hw/camera"
	"github.com/cjeanneret/pansweep/internal/logic/capture"
	"github.com/cjeanneret/pansweep/internal/logic/geometry"
	"github.com/cjeanneret/pansweep/internal/logic/preview"
)

const (
	msgWaitingPrevious = "Waiting for the previous panorama to finish"
	msgCameraError     = "Cannot connect to the camera"
)

func (p *Panorama) setPaused(on bool) {
	p.paused = on
	p.pausedFlag.Store(on)
}

func (p *Panorama) resume() {
	if !p.paused {
		return
	}
	p.setPaused(false)
	debug.Section("Panorama: resume")

	if err := p.setupCamera(); err != nil {
		debug.Errorf("Panorama: %v", err)
		p.sink.showError(msgCameraError, func() {})
		return
	}
	p.coordinator.Resume()

	if p.store != nil {
		if thumb, err := p.store.LastThumbnail(); err == nil {
			p.sink.resetWithThumbnail(thumb)
		} else if !errors.Is(err, os.ErrNotExist) {
			debug.Errorf("Panorama: last thumbnail: %v", err)
		}
	}

	if !p.runner.Running() && !p.initialized && p.engine.IsMemoryAllocated() {
		p.waitForEngine()
		return
	}
	p.startSession()
}

// waitForEngine blocks the UI with a dialog until the previous session
// releases the engine. Pause cancels the wait.
func (p *Panorama) waitForEngine() {
	p.sink.dialog(msgWaitingPrevious)
	ctx, cancel := context.WithCancel(p.ctx)
	p.waitCancel = cancel
	debug.Live("Panorama: engine memory still held, waiting")
	go func() {
		err := p.engine.WaitReleased(ctx)
		p.post(func() {
			if err != nil || ctx.Err() != nil {
				return
			}
			p.waitCancel = nil
			cancel()
			p.sink.dialog("")
			p.startSession()
		})
	}()
}

// startSession initializes the engine and shows the viewfinder. While a
// job still runs the review stays up; its completion resets the preview.
func (p *Panorama) startSession() {
	if p.runner.Running() {
		return
	}
	if err := p.initEngineIfNeeded(); err != nil {
		debug.Errorf("Panorama: %v", err)
		p.sink.showError(err.Error(), func() {})
		return
	}
	p.resetToPreview()
}

func (p *Panorama) setupCamera() error {
	cam, err := p.open()
	if err != nil {
		return err
	}
	set, err := preview.Choose(cam.Parameters(), p.cfg.Sweep.CapturePixels)
	if err != nil {
		cam.Close()
		return err
	}
	if err := cam.Configure(set); err != nil {
		cam.Close()
		return err
	}
	view, err := geometry.ViewAnglesFor(p.cfg)
	if err != nil {
		cam.Close()
		return err
	}
	p.cam, p.settings, p.mount = cam, set, cam.MountOrientation()
	p.machine.SetViewAngles(view.Rotated(p.mount))
	p.source.set(cam)
	debug.Verbose("Panorama: camera %d open, preview %s, mount %d°", cam.ID(), set.PreviewSize, p.mount)
	return nil
}

func (p *Panorama) releaseCamera() {
	if p.cam == nil {
		return
	}
	p.stopPreview()
	p.source.set(nil)
	if err := p.cam.Close(); err != nil {
		debug.Errorf("Panorama: close camera: %v", err)
	}
	p.cam = nil
}

func (p *Panorama) startPreview() {
	if p.cam == nil || p.previewing {
		return
	}
	p.coordinator.Attach()
	if err := p.cam.StartPreview(func(f camera.Frame) { p.coordinator.OnFrameAvailable(f.Seq) }); err != nil {
		debug.Errorf("Panorama: start preview: %v", err)
		p.coordinator.Detach()
		return
	}
	p.previewing = true
}

func (p *Panorama) stopPreview() {
	if p.cam == nil || !p.previewing {
		return
	}
	p.cam.StopPreview()
	p.coordinator.Detach()
	p.previewing = false
}

func (p *Panorama) pause() {
	if p.paused {
		return
	}
	p.setPaused(true)
	debug.Section("Panorama: pause")

	if p.machine.State() == capture.MosaicCapture {
		p.stopCapture(true)
		p.reset()
	}
	p.releaseCamera()
	p.coordinator.Pause()
	p.clearEngineIfNeeded()
	if p.waitCancel != nil {
		p.waitCancel()
		p.waitCancel = nil
	}
	p.box.drain()
}

func (p *Panorama) initEngineIfNeeded() error {
	if p.initialized {
		return nil
	}
	size := p.settings.PreviewSize
	buf := preview.BufferSize(size, p.cam.Parameters().BitsPerPixel)
	if err := p.engine.Initialize(size.Width, size.Height, buf); err != nil {
		return err
	}
	p.initialized = true
	return nil
}

// clearEngineIfNeeded releases the engine memory once the session is
// paused and no job needs it.
func (p *Panorama) clearEngineIfNeeded() {
	if !p.paused || p.runner.Running() {
		return
	}
	if p.initialized {
		p.engine.Clear()
		p.initialized = false
	}
}

// reset returns to the viewfinder and re-arms the engine.
func (p *Panorama) reset() {
	p.machine.Reset()
	if p.initialized {
		p.engine.Reset()
	}
	p.box.drain()
	p.engine.SetProgressListener(p.onAlignment)
	p.sink.reset()
}

func (p *Panorama) resetToPreview() {
	p.reset()
	if !p.paused {
		p.startPreview()
	}
}
