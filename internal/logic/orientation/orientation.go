// Package orientation tracks device orientation for correctly rotated output.
package orientation

import (
	"fmt"
	"sync"
)

// Unknown is the raw reading reported when the device lies flat.
const Unknown = -1

// hysteresis in degrees around each 45° boundary
const hysteresis = 5

// Tracker is the sole writer of the orientation state. It is safe for
// concurrent use: the sensor callback updates it while the session reads it.
type Tracker struct {
	mu              sync.Mutex
	device          int
	displayRotation int
	atCapture       int
	onChange        func(compensation int)
}

// NewTracker returns a tracker at orientation 0. onChange, if non-nil, is
// called with the new compensation each time it changes.
func NewTracker(onChange func(compensation int)) *Tracker {
	return &Tracker{onChange: onChange}
}

// Round snaps a raw reading to 0, 90, 180 or 270 with hysteresis against
// the previous rounded value.
func Round(raw, previous int) int {
	dist := raw - previous
	if dist < 0 {
		dist = -dist
	}
	dist = min(dist, 360-dist)
	if dist < 45+hysteresis {
		return previous
	}
	return ((raw + 45) / 90 * 90) % 360
}

// Update feeds a raw sensor reading in degrees. Unknown readings are ignored.
func (t *Tracker) Update(raw int) {
	if raw == Unknown {
		return
	}
	t.mu.Lock()
	next := Round(raw, t.device)
	if next == t.device {
		t.mu.Unlock()
		return
	}
	t.device = next
	comp, cb := t.compensationLocked(), t.onChange
	t.mu.Unlock()
	if cb != nil {
		cb(comp)
	}
}

// SetDisplayRotation records the current display rotation (0/90/180/270).
func (t *Tracker) SetDisplayRotation(deg int) {
	t.mu.Lock()
	if deg == t.displayRotation {
		t.mu.Unlock()
		return
	}
	t.displayRotation = deg
	comp, cb := t.compensationLocked(), t.onChange
	t.mu.Unlock()
	if cb != nil {
		cb(comp)
	}
}

func (t *Tracker) compensationLocked() int {
	return (t.device + t.displayRotation) % 360
}

// Device returns the rounded device orientation.
func (t *Tracker) Device() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.device
}

// Compensation is the rotation UI indicators apply to stay upright.
func (t *Tracker) Compensation() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.compensationLocked()
}

// FreezeCapture records the device orientation at sweep start.
func (t *Tracker) FreezeCapture() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.atCapture = t.device
}

// CaptureOrientation returns the orientation frozen at sweep start.
func (t *Tracker) CaptureOrientation() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.atCapture
}

// SaveOrientation is the rotation of the stored image.
func (t *Tracker) SaveOrientation(mountDeg int) int {
	return (t.CaptureOrientation() + mountDeg) % 360
}

// ExifOrientation maps a rotation to its EXIF orientation tag. Any value
// other than 0, 90, 180 or 270 is a programming error and panics.
func ExifOrientation(deg int) int {
	switch deg {
	case 0:
		return 1
	case 90:
		return 6
	case 180:
		return 3
	case 270:
		return 8
	}
	panic(fmt.Sprintf("orientation: invalid rotation %d", deg))
}
