package panorama

import (
	"sync"

	"github.com/cjeanneret/pansweep/internal/logic/capture"
)

// mailbox hands alignment decisions from the render goroutine to the
// interactive one. Only the latest decision is kept, but an auto-stop or a
// direction change is never lost to a newer report. put never blocks.
type mailbox struct {
	mu     sync.Mutex
	latest capture.Decision
	full   bool
	notify chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{notify: make(chan struct{}, 1)}
}

func (m *mailbox) put(d capture.Decision) {
	m.mu.Lock()
	if m.full {
		d.AutoStop = d.AutoStop || m.latest.AutoStop
		d.DirectionChanged = d.DirectionChanged || m.latest.DirectionChanged
	}
	m.latest, m.full = d, true
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

func (m *mailbox) take() (capture.Decision, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.latest, m.full
	m.latest, m.full = capture.Decision{}, false
	return d, ok
}

func (m *mailbox) drain() {
	m.take()
}
