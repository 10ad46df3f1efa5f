package render

import (
	"errors"
	"sync/atomic"

	"github.com/cjeanneret/pansweep/internal/hw/camera"
	"github.com/cjeanneret/pansweep/internal/mosaic"
)

var ErrNoFrame = errors.New("no camera frame available")

// FrameSource is where the surface latches frames from.
type FrameSource interface {
	Latest() (camera.Frame, bool)
}

// SoftwareSurface is a CPU surface: it latches the camera's latest frame
// and counts draws. Only the GPU goroutine may call its methods.
type SoftwareSurface struct {
	src     FrameSource
	current camera.Frame

	previews   atomic.Uint64
	alignments atomic.Uint64
	lastSeq    atomic.Uint64
}

func NewSoftwareSurface(src FrameSource) *SoftwareSurface {
	return &SoftwareSurface{src: src, current: camera.Frame{Transform: mosaic.Identity()}}
}

func (s *SoftwareSurface) UpdateTexImage() error {
	f, ok := s.src.Latest()
	if !ok {
		return ErrNoFrame
	}
	s.current = f
	s.lastSeq.Store(f.Seq)
	return nil
}

func (s *SoftwareSurface) TransformMatrix() mosaic.Transform { return s.current.Transform }

func (s *SoftwareSurface) DrawPreview(mosaic.Transform) { s.previews.Add(1) }

func (s *SoftwareSurface) DrawAlignment(mosaic.Transform) { s.alignments.Add(1) }

// Draws returns the preview and alignment draw counts.
func (s *SoftwareSurface) Draws() (previews, alignments uint64) {
	return s.previews.Load(), s.alignments.Load()
}

// LastSeq is the sequence number of the latched frame.
func (s *SoftwareSurface) LastSeq() uint64 { return s.lastSeq.Load() }
