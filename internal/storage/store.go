// Package storage persists finished panoramas: the JPEG, its EXIF
// metadata and the last thumbnail shown to the user.
package storage

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"time"

	"github.com/cjeanneret/pansweep/internal/config"
	"github.com/cjeanneret/pansweep/internal/debug"
)

const lastThumbName = ".last_thumb.jpg"

// Store writes panoramas under a directory.
type Store struct {
	dir        string
	nameFormat string
	thumbWidth int
}

// New creates the directory if needed.
func New(cfg config.StorageConfig) (*Store, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Store{dir: cfg.Dir, nameFormat: cfg.NameFormat, thumbWidth: cfg.ThumbnailWidth}, nil
}

func (s *Store) Dir() string { return s.dir }

// ThumbnailWidth is the configured thumbnail width in pixels.
func (s *Store) ThumbnailWidth() int { return s.thumbWidth }

// Save writes jpg as PANO_yyyyMMdd_HHmmss.jpg named after taken, adding a
// numeric suffix instead of overwriting an existing file.
func (s *Store) Save(jpg []byte, width, height, rotationDeg int, taken time.Time) (string, error) {
	base := taken.Format(s.nameFormat)
	path := filepath.Join(s.dir, base+".jpg")
	for i := 1; ; i++ {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			break
		}
		path = filepath.Join(s.dir, fmt.Sprintf("%s_%d.jpg", base, i))
	}
	if err := writeAtomic(path, jpg); err != nil {
		return "", err
	}
	debug.Info("Storage: saved %s (%dx%d, rotation %d°, %d bytes)", path, width, height, rotationDeg, len(jpg))
	return path, nil
}

// SaveThumbnail keeps img as the last thumbnail across sessions.
func (s *Store) SaveThumbnail(img image.Image) error {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return fmt.Errorf("encode thumbnail: %w", err)
	}
	return writeAtomic(filepath.Join(s.dir, lastThumbName), buf.Bytes())
}

// LastThumbnail loads the thumbnail written by SaveThumbnail.
func (s *Store) LastThumbnail() (image.Image, error) {
	f, err := os.Open(filepath.Join(s.dir, lastThumbName))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, err := jpeg.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode thumbnail: %w", err)
	}
	return img, nil
}
