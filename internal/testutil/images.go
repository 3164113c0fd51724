// Package testutil builds image fixtures for tests.
package testutil

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"slices"
)

// EXIF tag ids used by the fixtures.
const (
	TagDateTime         uint16 = 0x0132
	TagDateTimeOriginal uint16 = 0x9003

	tagExifIFDPointer uint16 = 0x8769
)

// PlainJPEG returns a tiny valid JPEG without any EXIF block.
func PlainJPEG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 60), G: uint8(y * 60), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// JPEGWithExif returns a valid JPEG carrying an APP1 EXIF segment whose
// first directory holds the given ASCII tags.
func JPEGWithExif(tags map[uint16]string) []byte {
	return jpegWithTIFF(TIFF(tags, nil))
}

// JPEGWithExifSubIFD lays tags out the way cameras do: IFD0 only points at
// an Exif sub-IFD, and the tags live there.
func JPEGWithExifSubIFD(tags map[uint16]string) []byte {
	return jpegWithTIFF(TIFF(nil, tags))
}

func jpegWithTIFF(tiff []byte) []byte {
	plain := PlainJPEG()
	app1 := append([]byte("Exif\x00\x00"), tiff...)

	var out bytes.Buffer
	out.Write(plain[:2]) // SOI
	out.Write([]byte{0xFF, 0xE1})
	_ = binary.Write(&out, binary.BigEndian, uint16(len(app1)+2))
	out.Write(app1)
	out.Write(plain[2:])
	return out.Bytes()
}

// PNGWithExif returns a 2x2 PNG with an eXIf chunk right after IHDR.
func PNGWithExif(tags map[uint16]string) []byte {
	var plain bytes.Buffer
	if err := png.Encode(&plain, image.NewGray(image.Rect(0, 0, 2, 2))); err != nil {
		panic(err)
	}
	raw := plain.Bytes()

	// signature (8) + IHDR length, type, 13 bytes of data, CRC
	const afterIHDR = 8 + 4 + 4 + 13 + 4
	payload := TIFF(tags, nil)

	var out bytes.Buffer
	out.Write(raw[:afterIHDR])
	_ = binary.Write(&out, binary.BigEndian, uint32(len(payload)))
	chunk := append([]byte("eXIf"), payload...)
	out.Write(chunk)
	_ = binary.Write(&out, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	out.Write(raw[afterIHDR:])
	return out.Bytes()
}

// WebPWithExif returns an extended-format WebP header (VP8X) followed by an
// EXIF chunk. There is no bitstream; only the image config is decodable.
func WebPWithExif(tags map[uint16]string) []byte {
	le := binary.LittleEndian
	payload := TIFF(tags, nil)

	var body bytes.Buffer
	body.WriteString("WEBP")

	body.WriteString("VP8X")
	_ = binary.Write(&body, le, uint32(10))
	body.Write([]byte{
		0x08, 0, 0, 0, // flags: EXIF present
		1, 0, 0, // width-1
		1, 0, 0, // height-1
	})

	body.WriteString("EXIF")
	_ = binary.Write(&body, le, uint32(len(payload)))
	body.Write(payload)
	if len(payload)%2 == 1 {
		body.WriteByte(0)
	}

	var out bytes.Buffer
	out.WriteString("RIFF")
	_ = binary.Write(&out, le, uint32(body.Len()))
	out.Write(body.Bytes())
	return out.Bytes()
}

// TIFF builds a little-endian TIFF structure. ifd0 tags go in the first
// directory; when exifIFD is non-empty IFD0 also gets a 0x8769 pointer to a
// second directory holding those tags. All values are ASCII.
func TIFF(ifd0, exifIFD map[uint16]string) []byte {
	le := binary.LittleEndian

	n0 := len(ifd0)
	if len(exifIFD) > 0 {
		n0++
	}
	subOffset := uint32(8 + 2 + 12*n0 + 4)
	dataOffset := subOffset
	if len(exifIFD) > 0 {
		dataOffset += uint32(2 + 12*len(exifIFD) + 4)
	}

	var out, data bytes.Buffer
	out.WriteString("II")
	_ = binary.Write(&out, le, uint16(42))
	_ = binary.Write(&out, le, uint32(8))

	var pointer *uint32
	if len(exifIFD) > 0 {
		pointer = &subOffset
	}
	writeIFD(&out, &data, ifd0, pointer, dataOffset)
	if len(exifIFD) > 0 {
		writeIFD(&out, &data, exifIFD, nil, dataOffset)
	}
	out.Write(data.Bytes())
	return out.Bytes()
}

// writeIFD appends one directory to out. Values longer than four bytes go
// to data, which starts at dataOffset in the final structure.
func writeIFD(out, data *bytes.Buffer, tags map[uint16]string, exifPointer *uint32, dataOffset uint32) {
	le := binary.LittleEndian

	ids := make([]uint16, 0, len(tags)+1)
	for id := range tags {
		if id != tagExifIFDPointer {
			ids = append(ids, id)
		}
	}
	if exifPointer != nil {
		ids = append(ids, tagExifIFDPointer)
	}
	slices.Sort(ids)

	_ = binary.Write(out, le, uint16(len(ids)))
	for _, id := range ids {
		_ = binary.Write(out, le, id)
		if id == tagExifIFDPointer {
			_ = binary.Write(out, le, uint16(4)) // LONG
			_ = binary.Write(out, le, uint32(1))
			_ = binary.Write(out, le, *exifPointer)
			continue
		}

		value := append([]byte(tags[id]), 0)
		_ = binary.Write(out, le, uint16(2)) // ASCII
		_ = binary.Write(out, le, uint32(len(value)))
		if len(value) <= 4 {
			padded := make([]byte, 4)
			copy(padded, value)
			out.Write(padded)
			continue
		}
		_ = binary.Write(out, le, dataOffset+uint32(data.Len()))
		data.Write(value)
		if data.Len()%2 == 1 {
			data.WriteByte(0)
		}
	}
	_ = binary.Write(out, le, uint32(0))
}
