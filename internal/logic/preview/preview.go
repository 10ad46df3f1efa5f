// Package preview chooses the camera preview configuration for a sweep.
package preview

import (
	"errors"

	"github.com/cjeanneret/pansweep/internal/debug"
	"github.com/cjeanneret/pansweep/internal/hw/camera"
)

// TargetFocusMode is preferred so the whole sweep stays sharp.
const TargetFocusMode = "infinity"

// Tier reports which rule of the size policy produced the selection.
type Tier int

const (
	TierNone Tier = iota
	// 4:3 and no bigger than the target
	TierRatioTarget
	// any ratio, no bigger than the target
	TierBelowTarget
	// largest available
	TierLargest
)

var ErrNoPreviewSize = errors.New("camera reports no preview sizes")

// bestSize returns the size whose pixel count is closest to target among
// the sizes passing the filters.
func bestSize(sizes []camera.Size, target int, need4To3, needSmaller bool) (camera.Size, bool) {
	var best camera.Size
	found := false
	pixelsDiff := target
	for _, s := range sizes {
		d := target - s.Pixels()
		if needSmaller && d < 0 {
			continue
		}
		if need4To3 && s.Height*4 != s.Width*3 {
			continue
		}
		if d < 0 {
			d = -d
		}
		if d < pixelsDiff {
			best, pixelsDiff, found = s, d, true
		}
	}
	return best, found
}

// SelectSize applies the three-tier policy: 4:3 no bigger than target, then
// any ratio no bigger than target, then the largest size offered.
func SelectSize(sizes []camera.Size, targetPixels int) (camera.Size, Tier, error) {
	if len(sizes) == 0 {
		return camera.Size{}, TierNone, ErrNoPreviewSize
	}
	if s, ok := bestSize(sizes, targetPixels, true, true); ok {
		return s, TierRatioTarget, nil
	}
	debug.Warn("Preview: no 4:3 size no bigger than %d px", targetPixels)
	if s, ok := bestSize(sizes, targetPixels, false, true); ok {
		return s, TierBelowTarget, nil
	}
	debug.Warn("Preview: no size no bigger than %d px, using the largest", targetPixels)
	largest := sizes[0]
	for _, s := range sizes[1:] {
		if s.Pixels() > largest.Pixels() {
			largest = s
		}
	}
	return largest, TierLargest, nil
}

// ChooseFPSRange picks the last supported range, which cameras list as the
// highest.
func ChooseFPSRange(ranges []camera.FPSRange) (camera.FPSRange, bool) {
	if len(ranges) == 0 {
		return camera.FPSRange{}, false
	}
	return ranges[len(ranges)-1], true
}

// ChooseFocusMode returns TargetFocusMode when supported, otherwise "" to
// keep the camera default.
func ChooseFocusMode(modes []string) string {
	for _, m := range modes {
		if m == TargetFocusMode {
			return m
		}
	}
	debug.Warn("Preview: focus mode %q not supported, keeping default", TargetFocusMode)
	return ""
}

// BufferSize is the preview callback buffer size for a frame of s.
func BufferSize(s camera.Size, bitsPerPixel int) int {
	return s.Width*s.Height*bitsPerPixel/8 + 32
}

// Choose builds the complete preview settings for p.
func Choose(p camera.Parameters, targetPixels int) (camera.Settings, error) {
	size, tier, err := SelectSize(p.PreviewSizes, targetPixels)
	if err != nil {
		return camera.Settings{}, err
	}
	fps, _ := ChooseFPSRange(p.FPSRanges)
	set := camera.Settings{
		PreviewSize: size,
		FPSRange:    fps,
		FocusMode:   ChooseFocusMode(p.FocusModes),
	}
	debug.Verbose("Preview: %s (tier %d), fps %d-%d", size, tier, fps.Min, fps.Max)
	return set, nil
}
