// Package progress polls the stitch engine while a finalize job runs and
// publishes a saving percentage.
package progress

import (
	"time"

	"github.com/cjeanneret/pansweep/internal/debug"
)

// Source is the part of the engine the reporter polls.
type Source interface {
	ReportProgress(blocking, cancelRequested bool) int
}

// Reporter polls a Source at a fixed interval. It never touches UI state,
// it only calls publish.
type Reporter struct {
	src      Source
	interval time.Duration
	publish  func(percent int)
}

func NewReporter(src Source, interval time.Duration, publish func(int)) *Reporter {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	return &Reporter{src: src, interval: interval, publish: publish}
}

// Run loops until done is closed. The wait between polls is cut short when
// cancelled fires, and every later poll forwards the cancel request.
// Published values are clamped to [0,100] and never decrease.
func (r *Reporter) Run(cancelled, done <-chan struct{}) {
	last := -1
	cancelRequested := false
	timer := time.NewTimer(r.interval)
	defer timer.Stop()

	for {
		select {
		case <-done:
			return
		default:
		}

		v := r.src.ReportProgress(true, cancelRequested)

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(r.interval)
		select {
		case <-done:
			return
		case <-cancelled:
			debug.Verbose("Progress: cancel requested")
			cancelRequested = true
			cancelled = nil
		case <-timer.C:
		}

		v = min(max(v, last, 0), 100)
		if v != last {
			last = v
			if r.publish != nil {
				r.publish(v)
			}
		}
	}
}
