package orientation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var rightAngles = []int{0, 90, 180, 270}

func TestRound(t *testing.T) {
	cases := []struct {
		raw, prev, want int
	}{
		{10, 0, 0},
		{49, 0, 0},
		{50, 0, 90},
		{100, 90, 90},
		{134, 90, 90},
		{136, 90, 90},
		{140, 90, 180},
		{350, 0, 0},
		{311, 0, 0},
		{309, 0, 270},
		{359, 270, 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Round(tc.raw, tc.prev), "Round(%d, %d)", tc.raw, tc.prev)
	}
}

func TestTracker_DefaultsAndUnknown(t *testing.T) {
	tr := NewTracker(nil)
	assert.Equal(t, 0, tr.Device())
	tr.Update(Unknown)
	assert.Equal(t, 0, tr.Device())
	tr.Update(95)
	tr.Update(Unknown)
	assert.Equal(t, 90, tr.Device())
}

func TestTracker_CompensationNotifies(t *testing.T) {
	var got []int
	tr := NewTracker(func(c int) { got = append(got, c) })

	tr.Update(90)
	tr.SetDisplayRotation(270)
	tr.SetDisplayRotation(270) // unchanged
	tr.Update(92)              // rounds to the same value

	assert.Equal(t, []int{90, 0}, got)
	assert.Equal(t, 0, tr.Compensation())
}

func TestTracker_FreezeCapture(t *testing.T) {
	tr := NewTracker(nil)
	tr.Update(180)
	tr.FreezeCapture()
	tr.Update(270)

	assert.Equal(t, 180, tr.CaptureOrientation())
	assert.Equal(t, 270, tr.SaveOrientation(90))
}

func TestSaveOrientation_StaysRightAngle(t *testing.T) {
	for _, capture := range rightAngles {
		for _, mount := range rightAngles {
			tr := NewTracker(nil)
			tr.Update(capture)
			tr.FreezeCapture()
			got := tr.SaveOrientation(mount)
			assert.Contains(t, rightAngles, got, "capture=%d mount=%d", capture, mount)
			assert.NotPanics(t, func() { ExifOrientation(got) })
		}
	}
}

func TestExifOrientation(t *testing.T) {
	want := map[int]int{0: 1, 90: 6, 180: 3, 270: 8}
	for deg, tag := range want {
		assert.Equal(t, tag, ExifOrientation(deg))
	}
	for _, bad := range []int{-90, 45, 360, 1} {
		assert.Panics(t, func() { ExifOrientation(bad) }, "deg=%d", bad)
	}
}
