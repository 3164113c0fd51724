// Package metadata reads capture dates embedded in uploaded images.
//
// Every failure (unreadable file, not an image, no EXIF block, no date tag)
// collapses to a nil date. Nothing in this package returns an error to callers.
package metadata

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Tags looked up in order. The first one carrying a value wins.
var dateTags = []exif.FieldName{exif.DateTimeOriginal, exif.DateTime}

// Extractor pulls the EXIF capture date out of stored files.
type Extractor struct {
	logger *zap.Logger
}

func NewExtractor(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger}
}

// TakenDate returns the capture date of the image at path as YYYY-MM-DD,
// or nil when none can be determined.
func (e *Extractor) TakenDate(path string) *string {
	file, err := os.Open(path)
	if err != nil {
		e.logger.Debug("taken date: open failed", zap.String("path", path), zap.Error(err))
		return nil
	}
	defer file.Close()

	date, err := takenDate(file)
	if err != nil {
		e.logger.Debug("taken date: not available", zap.String("path", path), zap.Error(err))
		return nil
	}
	return &date
}

// TakenDateFromBytes is TakenDate for content that is already in memory.
func TakenDateFromBytes(data []byte) *string {
	date, err := takenDate(bytes.NewReader(data))
	if err != nil {
		return nil
	}
	return &date
}

func takenDate(r io.ReadSeeker) (date string, err error) {
	// Decoders for hostile input occasionally panic.
	defer func() {
		if p := recover(); p != nil {
			date, err = "", fmt.Errorf("decoder panic: %v", p)
		}
	}()

	_, format, err := image.DecodeConfig(r)
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind: %w", err)
	}

	src, err := exifBlock(r, format)
	if err != nil {
		return "", err
	}

	// Sub-IFD errors still leave the main directory usable.
	x, err := exif.Decode(src)
	if err != nil && (x == nil || exif.IsCriticalError(err)) {
		return "", fmt.Errorf("decode exif: %w", err)
	}

	for _, name := range dateTags {
		tag, err := x.Get(name)
		if err != nil {
			continue
		}
		raw, err := tag.StringVal()
		if err != nil {
			continue
		}
		raw = strings.TrimRight(raw, "\x00 ")
		if raw == "" {
			continue
		}
		return FormatExifDate(raw), nil
	}
	return "", errors.New("no date tag")
}

// FormatExifDate turns an EXIF timestamp ("2024:03:05 10:11:12") into its
// date part with dashes ("2024-03-05"). The value is not validated.
func FormatExifDate(raw string) string {
	datePart, _, _ := strings.Cut(raw, " ")
	return strings.ReplaceAll(datePart, ":", "-")
}
