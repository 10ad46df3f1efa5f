package mosaic

import (
	"context"
	"errors"
	"fmt"

	"github.com/cjeanneret/pansweep/internal/debug"
)

// Result is the outcome of a finalize pass: Cancelled, Failed or Success.
type Result interface {
	isResult()
}

// Cancelled means the pass was cancelled; nothing must be saved.
type Cancelled struct{}

// Failed means the engine or the encoder failed.
type Failed struct {
	Err error
}

// Success carries the encoded mosaic.
type Success struct {
	JPEG   []byte
	Width  int
	Height int
}

func (Cancelled) isResult() {}
func (Failed) isResult()    {}
func (Success) isResult()   {}

func (f Failed) Error() string {
	if f.Err == nil {
		return "mosaic failed"
	}
	return f.Err.Error()
}

var (
	ErrEngine    = errors.New("stitch engine failed")
	ErrNoMosaic  = errors.New("stitch engine returned no mosaic")
	ErrBadHeader = errors.New("mosaic trailer has invalid dimensions")
)

// Generate runs CreateMosaic and encodes the result as a JPEG. It blocks
// for the duration of the pass and must not run on the interactive
// goroutine.
func Generate(ctx context.Context, e Engine, highRes bool) Result {
	if ctx.Err() != nil {
		return Cancelled{}
	}
	status := e.CreateMosaic(ctx, highRes)
	debug.Live("Mosaic: createMosaic(highRes=%v) -> %s", highRes, status)
	switch status {
	case StatusCancelled:
		return Cancelled{}
	case StatusError:
		return Failed{Err: ErrEngine}
	}
	if ctx.Err() != nil {
		return Cancelled{}
	}

	raw := e.FinalMosaicNV21()
	if raw == nil {
		return Failed{Err: ErrNoMosaic}
	}
	pix, w, h, err := ParseNV21(raw)
	if err != nil {
		return Failed{Err: err}
	}
	if w <= 0 || h <= 0 {
		return Failed{Err: fmt.Errorf("%w: %dx%d", ErrBadHeader, w, h)}
	}
	debug.Verbose("Mosaic: %dx%d, %d payload bytes", w, h, len(pix))

	img, err := NV21ToYCbCr(pix, w, h)
	if err != nil {
		return Failed{Err: err}
	}
	jpg, err := EncodeJPEG(img, JPEGQuality)
	if err != nil {
		return Failed{Err: err}
	}
	return Success{JPEG: jpg, Width: w, Height: h}
}
