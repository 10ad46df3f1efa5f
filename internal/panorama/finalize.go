package panorama

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"time"

	"github.com/cjeanneret/pansweep/internal/debug"
	"github.com/cjeanneret/pansweep/internal/logic/jobs"
	"github.com/cjeanneret/pansweep/internal/logic/progress"
	"github.com/cjeanneret/pansweep/internal/mosaic"
	"github.com/cjeanneret/pansweep/internal/storage"
	"github.com/cjeanneret/pansweep/internal/telemetry"
)

const msgFinalizeFailed = "Unable to create the panorama"

// scheduleLowRes runs under the capture machine lock.
func (p *Panorama) scheduleLowRes() error {
	_, err := p.runner.Submit(p.ctx, jobLowRes, p.lowResJob)
	return err
}

func (p *Panorama) lowResJob(ctx context.Context) jobs.Event {
	res, ok := mosaic.Generate(ctx, p.engine, false).(mosaic.Success)
	if !ok {
		return jobs.ResetToPreview{}
	}
	img, err := jpeg.Decode(bytes.NewReader(res.JPEG))
	if err != nil {
		debug.Errorf("Panorama: decode preview mosaic: %v", err)
		return jobs.ResetToPreview{}
	}
	return jobs.LowResReady{Image: img}
}

// saveHighRes starts the high-res pass and its progress reporter.
func (p *Panorama) saveHighRes() {
	mount, taken := p.mount, p.machine.StartedAt()
	h, err := p.runner.Submit(p.ctx, jobHighRes, func(ctx context.Context) jobs.Event {
		return p.highResJob(ctx, mount, taken)
	})
	if err != nil {
		debug.Errorf("Panorama: schedule high-res pass: %v", err)
		p.resetToPreview()
		return
	}

	p.sink.savingProgress(0)
	rep := progress.NewReporter(p.engine, p.cfg.ProgressInterval(), func(pct int) {
		p.tryPost(func() {
			if p.runner.Active() == h {
				p.sink.savingProgress(pct)
			}
		})
	})
	go rep.Run(h.Context().Done(), h.Done())
}

// highResJob encodes, stores and tags the final mosaic. A cancelled pass
// saves nothing.
func (p *Panorama) highResJob(ctx context.Context, mount int, taken time.Time) jobs.Event {
	switch res := mosaic.Generate(ctx, p.engine, true).(type) {
	case mosaic.Cancelled:
		return jobs.ResetToPreview{}
	case mosaic.Failed:
		return jobs.FinalizeFailed{Err: res}
	case mosaic.Success:
		rotation := p.tracker.SaveOrientation(mount)
		path, err := p.store.Save(res.JPEG, res.Width, res.Height, rotation, taken)
		if err != nil {
			return jobs.FinalizeFailed{Err: fmt.Errorf("save panorama: %w", err)}
		}
		if err := storage.SetMetadata(path, storage.BuildMetadata(taken, rotation)); err != nil {
			debug.Errorf("Panorama: exif for %s: %v", path, err)
		}
		thumb, err := storage.Thumbnail(res.JPEG, rotation, p.store.ThumbnailWidth())
		if err != nil {
			debug.Errorf("Panorama: thumbnail for %s: %v", path, err)
		}
		return jobs.ResetWithThumbnail{Path: path, Thumbnail: thumb}
	default:
		panic(fmt.Sprintf("panorama: unexpected mosaic result %T", res))
	}
}

// onDelivery disposes of the job first so the slot is free while the
// event is handled.
func (p *Panorama) onDelivery(d jobs.Delivery) {
	p.runner.Finish(d.Handle)

	switch ev := d.Event.(type) {
	case jobs.LowResReady:
		p.sink.dialog("")
		p.sink.finalImage(ev.Image)
		p.saveHighRes()

	case jobs.ResetWithThumbnail:
		p.metrics.RecordSweep(p.ctx, telemetry.OutcomeSaved)
		if p.paused && ev.Thumbnail != nil {
			if err := p.store.SaveThumbnail(ev.Thumbnail); err != nil {
				debug.Errorf("Panorama: %v", err)
			}
		}
		p.sink.resetWithThumbnail(ev.Thumbnail)
		p.sink.pictureSaved(ev.Path)
		p.resetToPreview()
		p.clearEngineIfNeeded()

	case jobs.FinalizeFailed:
		debug.Errorf("Panorama: finalize failed: %v", ev.Err)
		p.metrics.RecordSweep(p.ctx, telemetry.OutcomeFailed)
		if p.paused {
			p.resetToPreview()
		} else {
			p.sink.showError(msgFinalizeFailed, func() { go p.post(p.resetToPreview) })
		}
		p.clearEngineIfNeeded()

	case jobs.ResetToPreview:
		p.metrics.RecordSweep(p.ctx, telemetry.OutcomeCancelled)
		p.sink.dialog("")
		p.resetToPreview()
		p.clearEngineIfNeeded()

	default:
		panic(fmt.Sprintf("panorama: unexpected job event %T", ev))
	}
}
