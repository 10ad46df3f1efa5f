// Package mosaic holds the stitch engine contract, the process-wide engine
// wrapper, a software reference engine and the finalize/encode glue that
// turns an engine's NV21 output into a JPEG.
package mosaic

import "context"

// Transform is a 4x4 column-major homogeneous matrix describing where a
// preview frame sits relative to the sweep origin. Elements 12 and 13 carry
// the x/y translation expressed in frame widths/heights.
type Transform [16]float32

// Identity returns the identity transform.
func Identity() Transform {
	return Transform{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Translation returns a transform shifted by tx, ty frames.
func Translation(tx, ty float64) Transform {
	t := Identity()
	t[12] = float32(tx)
	t[13] = float32(ty)
	return t
}

// Offset returns the x/y translation of t.
func (t Transform) Offset() (x, y float64) {
	return float64(t[12]), float64(t[13])
}

// Alignment is what the engine reports after ingesting a frame.
// Progress and rates are fractions of the frame size (and per second);
// the capture machine turns them into degrees using the view angles.
type Alignment struct {
	Finished  bool
	ProgressX float64
	ProgressY float64
	RateX     float64
	RateY     float64
}

// Status is the outcome of CreateMosaic.
type Status int

const (
	StatusOK Status = iota
	StatusCancelled
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusCancelled:
		return "cancelled"
	default:
		return "error"
	}
}

// Engine is the stitch engine. Implementations must tolerate ProcessFrame
// and ReportProgress being called from other goroutines while CreateMosaic
// runs.
type Engine interface {
	// Initialize allocates working buffers for preview frames of w x h.
	Initialize(width, height, bufSize int) error
	// ProcessFrame ingests the frame currently bound to the preview texture.
	ProcessFrame(t Transform)
	// ReportProgress returns the finalize progress in [0,100]. It may block
	// briefly when blocking is set. cancelRequested asks the engine to abort.
	ReportProgress(blocking, cancelRequested bool) int
	// CreateMosaic renders the mosaic of all ingested frames.
	CreateMosaic(ctx context.Context, highRes bool) Status
	// FinalMosaicNV21 returns the last rendered mosaic: NV21 pixels followed
	// by a trailer of big-endian int32 width and height. Nil when none exists.
	FinalMosaicNV21() []byte
	// Reset drops ingested frames but keeps the buffers.
	Reset()
	// Clear releases the buffers.
	Clear()
	IsMemoryAllocated() bool
	SetProgressListener(fn func(Alignment))
}
