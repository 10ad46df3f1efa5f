package panorama

import (
	"context"
	"errors"

	"github.com/cjeanneret/pansweep/internal/debug"
	"github.com/cjeanneret/pansweep/internal/logic/capture"
	"github.com/cjeanneret/pansweep/internal/mosaic"
	"github.com/cjeanneret/pansweep/internal/telemetry"
)

const msgPreparingPreview = "Preparing preview"

func (p *Panorama) shutter() {
	if p.paused || p.runner.Running() || p.cam == nil || !p.previewing {
		debug.Verbose("Panorama: shutter ignored")
		return
	}
	if p.machine.State() == capture.Viewfinder {
		p.startCapture()
	} else {
		p.stopCapture(false)
	}
}

func (p *Panorama) cancel() {
	if p.paused || p.cam == nil {
		return
	}
	switch {
	case p.machine.State() == capture.MosaicCapture:
		p.stopCapture(true)
	case p.runner.Running():
		p.runner.Cancel()
	}
}

func (p *Panorama) startCapture() {
	if err := p.machine.Start(); err != nil {
		debug.Verbose("Panorama: start refused: %v", err)
		return
	}
	p.box.drain()
	p.engine.SetProgressListener(p.onAlignment)
	p.sink.capturing(true)
	p.sink.sweepProgress(0)
	p.sink.direction(capture.DirectionNone)
	p.startRig()
}

// stopCapture leaves MosaicCapture. Unless aborted, the low-res pass is
// scheduled atomically with the state change.
func (p *Panorama) stopCapture(aborted bool) {
	scheduled, err := p.machine.Stop(aborted, p.scheduleLowRes)
	if errors.Is(err, capture.ErrNotCapturing) {
		return
	}
	p.engine.SetProgressListener(nil)
	p.stopRig()
	p.sink.capturing(false)
	p.sink.tooFast(false)
	p.stopPreview()
	p.box.drain()

	switch {
	case err != nil:
		debug.Errorf("Panorama: %v", err)
		p.metrics.RecordSweep(p.ctx, telemetry.OutcomeFailed)
	case scheduled:
		p.sink.dialog(msgPreparingPreview)
		return
	case aborted:
		p.metrics.RecordSweep(p.ctx, telemetry.OutcomeAborted)
	}
	if !p.paused {
		p.resetToPreview()
	}
}

// onAlignment runs on the render goroutine and must not block.
func (p *Panorama) onAlignment(a mosaic.Alignment) {
	if d, ok := p.machine.Align(a); ok {
		p.box.put(d)
	}
}

func (p *Panorama) onDecision(d capture.Decision) {
	if p.machine.State() != capture.MosaicCapture {
		return
	}
	if d.AutoStop {
		debug.Info("Panorama: sweep complete at %.1f°", d.Progress.HorizontalDeg)
		p.stopCapture(false)
		return
	}
	p.sink.sweepProgress(d.AngleDeg)
	p.sink.tooFast(d.TooFast)
	if d.DirectionChanged {
		p.sink.direction(d.Direction)
	}
}

// startRig pans the motorized head through the sweep. Reaching the end of
// travel stops the sweep like the shutter would; the head then returns home.
func (p *Panorama) startRig() {
	if p.rig == nil {
		return
	}
	view := p.machine.ViewAngles()
	angle := p.cfg.Sweep.AngleDeg + view.Horizontal/2
	ctx, cancel := context.WithCancel(p.ctx)
	p.rigCancel = cancel
	home := p.ctx
	go func() {
		p.rigMu.Lock()
		defer p.rigMu.Unlock()
		err := p.rig.Sweep(ctx, angle)
		if err != nil && ctx.Err() == nil {
			debug.Errorf("Panorama: rig sweep: %v", err)
		}
		if ctx.Err() == nil {
			p.post(func() {
				if ctx.Err() == nil && p.machine.State() == capture.MosaicCapture {
					debug.Live("Panorama: rig reached end of travel")
					p.stopCapture(false)
				}
			})
		}
		if err := p.rig.Return(home); err != nil && home.Err() == nil {
			debug.Errorf("Panorama: rig return: %v", err)
		}
	}()
}

func (p *Panorama) stopRig() {
	if p.rigCancel != nil {
		p.rigCancel()
		p.rigCancel = nil
	}
}
