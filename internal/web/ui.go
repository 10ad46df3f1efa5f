package web

import (
	"image"
	"sync"

	"github.com/cjeanneret/pansweep/internal/debug"
	"github.com/cjeanneret/pansweep/internal/logic/capture"
	"github.com/cjeanneret/pansweep/internal/mosaic"
	"github.com/cjeanneret/pansweep/internal/panorama"
)

// Image names served under /images/.
const (
	ImagePreview   = "preview.jpg"
	ImageThumbnail = "thumbnail.jpg"
)

const uiJPEGQuality = 85

// UI turns session updates into stream events. It keeps the images the
// page fetches and the acknowledgement of the error dialog on screen.
type UI struct {
	b *StatusBroadcaster

	mu      sync.Mutex
	images  map[string][]byte
	pending func()
}

func NewUI(b *StatusBroadcaster) *UI {
	return &UI{b: b, images: make(map[string][]byte)}
}

// Sink returns the session sink publishing to the broadcaster.
func (u *UI) Sink() panorama.Sink {
	return panorama.Sink{
		SweepProgress:  func(deg int) { u.b.Publish(EventSweep, deg) },
		SavingProgress: func(pct int) { u.b.Publish(EventSaving, pct) },
		Direction:      func(d capture.Direction) { u.b.Publish(EventDirection, d.String()) },
		TooFast:        func(on bool) { u.b.Publish(EventTooFast, on) },
		Capturing:      func(on bool) { u.b.Publish(EventCapturing, on) },
		Dialog:         func(text string) { u.b.Publish(EventDialog, text) },
		FinalImage:     func(img image.Image) { u.publishImage(EventFinalImage, ImagePreview, img) },
		ResetWithThumbnail: func(img image.Image) {
			u.publishImage(EventThumbnail, ImageThumbnail, img)
			u.b.Publish(EventReset, nil)
		},
		Error: func(msg string, ack func()) {
			u.mu.Lock()
			u.pending = ack
			u.mu.Unlock()
			u.b.Publish(EventError, msg)
		},
		Reset:        func() { u.b.Publish(EventReset, nil) },
		PictureSaved: func(path string) { u.b.Publish(EventSaved, path) },
		Orientation:  func(comp int) { u.b.Publish(EventOrientation, comp) },
	}
}

func (u *UI) publishImage(event, name string, img image.Image) {
	if img == nil {
		return
	}
	data, err := mosaic.EncodeJPEG(img, uiJPEGQuality)
	if err != nil {
		debug.Errorf("Web: %s: %v", name, err)
		return
	}
	u.mu.Lock()
	u.images[name] = data
	u.mu.Unlock()
	u.b.Publish(event, "/images/"+name)
}

// Image returns the last published image called name.
func (u *UI) Image(name string) ([]byte, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	data, ok := u.images[name]
	return data, ok
}

// Dismiss acknowledges the error dialog. It reports false when none is
// showing.
func (u *UI) Dismiss() bool {
	u.mu.Lock()
	ack := u.pending
	u.pending = nil
	u.mu.Unlock()
	if ack == nil {
		return false
	}
	ack()
	return true
}
