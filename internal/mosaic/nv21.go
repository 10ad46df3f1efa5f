package mosaic

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
)

// TrailerSize is the length of the width/height trailer the engine appends
// to its NV21 output.
const TrailerSize = 8

// JPEGQuality is the encoder quality used for stored panoramas.
const JPEGQuality = 100

var ErrShortBuffer = errors.New("nv21 buffer shorter than its trailer")

// NV21Size returns the byte length of an NV21 image of w x h.
func NV21Size(w, h int) int {
	cw, ch := (w+1)/2, (h+1)/2
	return w*h + 2*cw*ch
}

// AppendTrailer appends the big-endian width/height trailer to pix.
func AppendTrailer(pix []byte, w, h int) []byte {
	pix = binary.BigEndian.AppendUint32(pix, uint32(int32(w)))
	return binary.BigEndian.AppendUint32(pix, uint32(int32(h)))
}

// ParseNV21 splits an engine buffer into its pixel payload and the
// dimensions carried by the trailer. The payload aliases buf.
func ParseNV21(buf []byte) (pixels []byte, width, height int, err error) {
	if len(buf) < TrailerSize {
		return nil, 0, 0, fmt.Errorf("%w: %d bytes", ErrShortBuffer, len(buf))
	}
	n := len(buf) - TrailerSize
	width = int(int32(binary.BigEndian.Uint32(buf[n:])))
	height = int(int32(binary.BigEndian.Uint32(buf[n+4:])))
	return buf[:n], width, height, nil
}

// NV21ToYCbCr wraps NV21 pixels (Y plane then interleaved V/U) into a
// 4:2:0 image.
func NV21ToYCbCr(pix []byte, w, h int) (*image.YCbCr, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("invalid nv21 size %dx%d", w, h)
	}
	if need := NV21Size(w, h); len(pix) < need {
		return nil, fmt.Errorf("nv21 payload is %d bytes, need %d for %dx%d", len(pix), need, w, h)
	}
	img := image.NewYCbCr(image.Rect(0, 0, w, h), image.YCbCrSubsampleRatio420)
	copy(img.Y, pix[:w*h])

	vu := pix[w*h:]
	cw, ch := (w+1)/2, (h+1)/2
	for row := 0; row < ch; row++ {
		for col := 0; col < cw; col++ {
			src := 2 * (row*cw + col)
			dst := row*img.CStride + col
			img.Cr[dst] = vu[src]
			img.Cb[dst] = vu[src+1]
		}
	}
	return img, nil
}

// EncodeJPEG compresses img at the given quality.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
