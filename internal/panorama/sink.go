package panorama

import (
	"image"

	"github.com/cjeanneret/pansweep/internal/logic/capture"
)

// Sink receives UI updates. Every field is optional. Calls are made from
// the interactive goroutine only.
type Sink struct {
	// SweepProgress is the accumulated angle along the pan direction.
	SweepProgress func(angleDeg int)
	// SavingProgress is the high-res pass completion in [0,100].
	SavingProgress func(percent int)
	Direction      func(d capture.Direction)
	TooFast        func(on bool)
	Capturing      func(on bool)
	// Dialog shows a blocking message. An empty text hides it.
	Dialog     func(text string)
	FinalImage func(img image.Image)
	// ResetWithThumbnail shows the thumbnail of the last saved panorama.
	ResetWithThumbnail func(thumb image.Image)
	// Error shows an error dialog; ack must be called when it is dismissed.
	Error        func(msg string, ack func())
	Reset        func()
	PictureSaved func(path string)
	// Orientation is the rotation indicators apply to stay upright.
	Orientation func(compensation int)
}

func (s *Sink) sweepProgress(deg int) {
	if s.SweepProgress != nil {
		s.SweepProgress(deg)
	}
}

func (s *Sink) savingProgress(pct int) {
	if s.SavingProgress != nil {
		s.SavingProgress(pct)
	}
}

func (s *Sink) direction(d capture.Direction) {
	if s.Direction != nil {
		s.Direction(d)
	}
}

func (s *Sink) tooFast(on bool) {
	if s.TooFast != nil {
		s.TooFast(on)
	}
}

func (s *Sink) capturing(on bool) {
	if s.Capturing != nil {
		s.Capturing(on)
	}
}

func (s *Sink) dialog(text string) {
	if s.Dialog != nil {
		s.Dialog(text)
	}
}

func (s *Sink) finalImage(img image.Image) {
	if s.FinalImage != nil {
		s.FinalImage(img)
	}
}

func (s *Sink) resetWithThumbnail(thumb image.Image) {
	if s.ResetWithThumbnail != nil {
		s.ResetWithThumbnail(thumb)
	}
}

// showError falls back to acknowledging immediately when nobody listens.
func (s *Sink) showError(msg string, ack func()) {
	if s.Error != nil {
		s.Error(msg, ack)
		return
	}
	ack()
}

func (s *Sink) reset() {
	if s.Reset != nil {
		s.Reset()
	}
}

func (s *Sink) pictureSaved(path string) {
	if s.PictureSaved != nil {
		s.PictureSaved(path)
	}
}

func (s *Sink) orientation(comp int) {
	if s.Orientation != nil {
		s.Orientation(comp)
	}
}
