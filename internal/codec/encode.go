package codec

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/lunixbochs/struc"
)

// Standard masks for 32 bpp output: bytes are stored B,G,R,A.
const (
	maskR32 = 0x00FF0000
	maskG32 = 0x0000FF00
	maskB32 = 0x000000FF
)

const bmpMagic = 0x4D42 // "BM" read as a little-endian uint16

type wireFileHeader struct {
	Magic       uint16 `struc:"uint16"`
	FileSize    uint32 `struc:"uint32"`
	Reserved1   uint16 `struc:"uint16"`
	Reserved2   uint16 `struc:"uint16"`
	PixelOffset uint32 `struc:"uint32"`
}

type wireInfoHeader struct {
	Size            uint32 `struc:"uint32"`
	Width           int32  `struc:"int32"`
	Height          int32  `struc:"int32"`
	Planes          uint16 `struc:"uint16"`
	BitsPerPixel    uint16 `struc:"uint16"`
	Compression     uint32 `struc:"uint32"`
	ImageSize       uint32 `struc:"uint32"`
	XPelsPerMeter   int32  `struc:"int32"`
	YPelsPerMeter   int32  `struc:"int32"`
	ColorsUsed      uint32 `struc:"uint32"`
	ColorsImportant uint32 `struc:"uint32"`
}

type wireMasks struct {
	R uint32 `struc:"uint32"`
	G uint32 `struc:"uint32"`
	B uint32 `struc:"uint32"`
}

var packOptions = &struc.Options{Order: binary.LittleEndian}

// Encode returns pix encoded as an uncompressed BMP file.
func Encode(pix []byte, width, height, channels int) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, pix, width, height, channels); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write encodes a canonical buffer to w. Three channels produce a 24 bpp
// BI_RGB file, four channels a 32 bpp BI_BITFIELDS file. Rows are written
// bottom-up and padded with zeros to a 4-byte boundary.
func Write(w io.Writer, pix []byte, width, height, channels int) error {
	if width <= 0 || height <= 0 || width > MaxDimension || height > MaxDimension {
		return newError(KindDimensionOutOfRange, fmt.Sprintf("%dx%d", width, height))
	}
	if channels != 3 && channels != 4 {
		return newError(KindUnsupportedFormat, fmt.Sprintf("%d channels", channels))
	}
	stride := width * channels
	if int64(len(pix)) < int64(stride)*int64(height) {
		return newError(KindTruncatedData, fmt.Sprintf("%d bytes for a %dx%dx%d image", len(pix), width, height, channels))
	}

	bpp := channels * 8
	rowLen := rowSize(width, bpp)
	imageSize := int64(rowLen) * int64(height)
	offset := fileHeaderSize + infoHeaderSize
	compression := CompressionRGB
	if channels == 4 {
		offset += rgbMasksSize
		compression = CompressionBitFields
	}
	if int64(offset)+imageSize > int64(^uint32(0)) {
		return newError(KindAllocationFailure, fmt.Sprintf("%d byte image does not fit a BMP file", imageSize))
	}

	fh := wireFileHeader{
		Magic:       bmpMagic,
		FileSize:    uint32(int64(offset) + imageSize),
		PixelOffset: uint32(offset),
	}
	ih := wireInfoHeader{
		Size:         infoHeaderSize,
		Width:        int32(width),
		Height:       int32(height),
		Planes:       1,
		BitsPerPixel: uint16(bpp),
		Compression:  uint32(compression),
		ImageSize:    uint32(imageSize),
	}

	bw := bufio.NewWriter(w)
	if err := struc.PackWithOptions(bw, &fh, packOptions); err != nil {
		return fmt.Errorf("write file header: %w", err)
	}
	if err := struc.PackWithOptions(bw, &ih, packOptions); err != nil {
		return fmt.Errorf("write info header: %w", err)
	}
	if channels == 4 {
		masks := wireMasks{R: maskR32, G: maskG32, B: maskB32}
		if err := struc.PackWithOptions(bw, &masks, packOptions); err != nil {
			return fmt.Errorf("write bit masks: %w", err)
		}
	}

	row := make([]byte, rowLen)
	for r := height - 1; r >= 0; r-- {
		src := pix[r*stride : (r+1)*stride]
		for col := 0; col < width; col++ {
			o := col * channels
			row[o] = src[o+2]
			row[o+1] = src[o+1]
			row[o+2] = src[o]
			if channels == 4 {
				row[o+3] = src[o+3]
			}
		}
		if _, err := bw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", r, err)
		}
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}
