package metadata

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/image/riff"
)

// maxExifBytes bounds the EXIF payload read out of PNG and WebP containers.
// JPEG caps APP1 at 64 KiB; the container formats allow more.
const maxExifBytes = 1 << 20

var (
	errNoExif    = errors.New("no exif block")
	fccWEBP      = riff.FourCC{'W', 'E', 'B', 'P'}
	fccEXIF      = riff.FourCC{'E', 'X', 'I', 'F'}
	pngSignature = []byte("\x89PNG\r\n\x1a\n")
)

// exifBlock returns a reader exif.Decode understands for the given image
// format. JPEG and TIFF are passed through as they are. PNG and WebP keep
// EXIF in a chunk of their own, whose payload is a bare TIFF structure
// (sometimes behind an "Exif\0\0" header).
func exifBlock(r io.ReadSeeker, format string) (io.Reader, error) {
	switch format {
	case "png":
		return pngExif(r)
	case "webp":
		return webpExif(r)
	default:
		return r, nil
	}
}

// pngExif walks the chunk list up to IEND looking for eXIf.
func pngExif(r io.ReadSeeker) (io.Reader, error) {
	sig := make([]byte, len(pngSignature))
	if _, err := io.ReadFull(r, sig); err != nil || !bytes.Equal(sig, pngSignature) {
		return nil, errors.New("png: bad signature")
	}

	var header [8]byte
	for {
		if _, err := io.ReadFull(r, header[:]); err != nil {
			return nil, errNoExif
		}
		length := binary.BigEndian.Uint32(header[:4])
		switch string(header[4:]) {
		case "eXIf":
			return readChunk(r, length)
		case "IEND":
			return nil, errNoExif
		}
		// data plus CRC
		if _, err := r.Seek(int64(length)+4, io.SeekCurrent); err != nil {
			return nil, fmt.Errorf("png: skip chunk: %w", err)
		}
	}
}

func webpExif(r io.Reader) (io.Reader, error) {
	formType, chunks, err := riff.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("webp: %w", err)
	}
	if formType != fccWEBP {
		return nil, errors.New("webp: not a WEBP form")
	}
	for {
		id, length, data, err := chunks.Next()
		if err != nil {
			return nil, errNoExif
		}
		if id == fccEXIF {
			return readChunk(data, length)
		}
	}
}

func readChunk(r io.Reader, length uint32) (io.Reader, error) {
	if length > maxExifBytes {
		return nil, fmt.Errorf("exif chunk of %d bytes", length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read exif chunk: %w", err)
	}
	return bytes.NewReader(payload), nil
}
