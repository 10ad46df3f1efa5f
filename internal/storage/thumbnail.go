package storage

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"math/bits"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// SampleSize is the power-of-two reduction that brings the short side of a
// w x h image down to about targetWidth.
func SampleSize(w, h, targetWidth int) int {
	if targetWidth <= 0 {
		return 1
	}
	short := min(w, h)
	ratio := (short + targetWidth - 1) / targetWidth
	if ratio <= 1 {
		return 1
	}
	return 1 << (bits.Len(uint(ratio)) - 1)
}

// Thumbnail decodes a JPEG, downsamples it and rotates it upright.
func Thumbnail(jpg []byte, rotationDeg, targetWidth int) (image.Image, error) {
	src, err := jpeg.Decode(bytes.NewReader(jpg))
	if err != nil {
		return nil, fmt.Errorf("decode panorama: %w", err)
	}
	b := src.Bounds()
	n := SampleSize(b.Dx(), b.Dy(), targetWidth)
	small := image.NewRGBA(image.Rect(0, 0, max(1, b.Dx()/n), max(1, b.Dy()/n)))
	draw.ApproxBiLinear.Scale(small, small.Bounds(), src, b, draw.Src, nil)
	return Rotate(small, rotationDeg), nil
}

// Rotate turns img clockwise by 90, 180 or 270 degrees. Other values
// return img unchanged.
func Rotate(img image.Image, deg int) image.Image {
	b := img.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	var dst *image.RGBA
	var m f64.Aff3
	switch deg {
	case 90:
		dst = image.NewRGBA(image.Rect(0, 0, b.Dy(), b.Dx()))
		m = f64.Aff3{0, -1, h, 1, 0, 0}
	case 180:
		dst = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		m = f64.Aff3{-1, 0, w, 0, -1, h}
	case 270:
		dst = image.NewRGBA(image.Rect(0, 0, b.Dy(), b.Dx()))
		m = f64.Aff3{0, 1, 0, -1, 0, w}
	default:
		return img
	}
	// translate the source to the origin first
	m[2] -= m[0]*float64(b.Min.X) + m[1]*float64(b.Min.Y)
	m[5] -= m[3]*float64(b.Min.X) + m[4]*float64(b.Min.Y)
	draw.NearestNeighbor.Transform(dst, m, img, b, draw.Src, nil)
	return dst
}
