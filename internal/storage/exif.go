package storage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cjeanneret/pansweep/internal/logic/orientation"
)

// Metadata are the EXIF attributes written on a stored panorama.
type Metadata struct {
	GPSDate     string // yyyy:MM:dd, UTC
	GPSTime     string // hh/1,mm/1,ss/1, UTC
	DateTime    string // yyyy:MM:dd hh:mm:ss, UTC
	Orientation int    // EXIF orientation tag
}

const (
	exifDateLayout     = "2006:01:02"
	exifDateTimeLayout = "2006:01:02 15:04:05"
)

// BuildMetadata derives the attributes for a panorama taken at t and
// stored with the given rotation in degrees.
func BuildMetadata(t time.Time, rotationDeg int) Metadata {
	u := t.UTC()
	return Metadata{
		GPSDate:     u.Format(exifDateLayout),
		GPSTime:     fmt.Sprintf("%02d/1,%02d/1,%02d/1", u.Hour(), u.Minute(), u.Second()),
		DateTime:    u.Format(exifDateTimeLayout),
		Orientation: orientation.ExifOrientation(rotationDeg),
	}
}

var (
	ErrNotJPEG    = errors.New("not a jpeg file")
	ErrBadGPSTime = errors.New("malformed gps time")
	exifHeader    = []byte("Exif\x00\x00")
	order         = binary.BigEndian
)

// TIFF field types
const (
	typeASCII    = 2
	typeShort    = 3
	typeLong     = 4
	typeRational = 5
)

// EXIF tags
const (
	tagOrientation  = 0x0112
	tagDateTime     = 0x0132
	tagGPSIFD       = 0x8825
	tagGPSTimeStamp = 0x0007
	tagGPSDateStamp = 0x001D
)

// SetMetadata writes m into the JPEG at path, replacing any EXIF segment.
func SetMetadata(path string, m Metadata) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	app1, err := encodeExif(m)
	if err != nil {
		return err
	}
	out, err := insertApp1(data, app1)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return writeAtomic(path, out)
}

func parseGPSTime(s string) ([3]uint32, error) {
	var hms [3]uint32
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return hms, fmt.Errorf("%w: %q", ErrBadGPSTime, s)
	}
	for i, p := range parts {
		num, den, ok := strings.Cut(p, "/")
		if !ok || den != "1" {
			return hms, fmt.Errorf("%w: %q", ErrBadGPSTime, s)
		}
		v, err := strconv.ParseUint(num, 10, 32)
		if err != nil {
			return hms, fmt.Errorf("%w: %q", ErrBadGPSTime, s)
		}
		hms[i] = uint32(v)
	}
	return hms, nil
}

func asciiz(s string) []byte { return append([]byte(s), 0) }

// encodeExif builds a big-endian APP1 segment with IFD0 (Orientation,
// DateTime, GPS pointer) and a GPS IFD (time and date stamps).
func encodeExif(m Metadata) ([]byte, error) {
	hms, err := parseGPSTime(m.GPSTime)
	if err != nil {
		return nil, err
	}
	dateTime := asciiz(m.DateTime)
	gpsDate := asciiz(m.GPSDate)

	const (
		ifd0Off  = 8
		ifd0Size = 2 + 3*12 + 4
		dateOff  = ifd0Off + ifd0Size
	)
	gpsOff := dateOff + len(dateTime)
	const gpsSize = 2 + 2*12 + 4
	timeOff := gpsOff + gpsSize
	gpsDateOff := timeOff + 3*8

	var tiff bytes.Buffer
	w := func(v any) { _ = binary.Write(&tiff, order, v) }
	entry := func(tag, typ uint16, count, value uint32) {
		w(tag)
		w(typ)
		w(count)
		w(value)
	}

	tiff.WriteString("MM")
	w(uint16(42))
	w(uint32(ifd0Off))

	w(uint16(3))
	// SHORT values are left-justified in the 4-byte value field
	entry(tagOrientation, typeShort, 1, uint32(m.Orientation)<<16)
	entry(tagDateTime, typeASCII, uint32(len(dateTime)), uint32(dateOff))
	entry(tagGPSIFD, typeLong, 1, uint32(gpsOff))
	w(uint32(0))
	tiff.Write(dateTime)

	w(uint16(2))
	entry(tagGPSTimeStamp, typeRational, 3, uint32(timeOff))
	entry(tagGPSDateStamp, typeASCII, uint32(len(gpsDate)), uint32(gpsDateOff))
	w(uint32(0))
	for _, v := range hms {
		w(v)
		w(uint32(1))
	}
	tiff.Write(gpsDate)

	payload := append(append([]byte(nil), exifHeader...), tiff.Bytes()...)
	if len(payload)+2 > 0xFFFF {
		return nil, fmt.Errorf("exif segment too large")
	}
	seg := []byte{0xFF, 0xE1, 0, 0}
	order.PutUint16(seg[2:], uint16(len(payload)+2))
	return append(seg, payload...), nil
}

// insertApp1 places app1 right after SOI, dropping an existing EXIF APP1.
func insertApp1(jpg, app1 []byte) ([]byte, error) {
	if len(jpg) < 4 || jpg[0] != 0xFF || jpg[1] != 0xD8 {
		return nil, ErrNotJPEG
	}
	rest := jpg[2:]
	if len(rest) >= 4 && rest[0] == 0xFF && rest[1] == 0xE1 {
		n := int(order.Uint16(rest[2:]))
		if 2+n <= len(rest) && bytes.HasPrefix(rest[4:], exifHeader) {
			rest = rest[2+n:]
		}
	}
	out := make([]byte, 0, len(jpg)+len(app1))
	out = append(out, 0xFF, 0xD8)
	out = append(out, app1...)
	return append(out, rest...), nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".pansweep-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename to %s: %w", path, err)
	}
	return nil
}
