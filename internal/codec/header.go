// Package codec implements a BMP reader and writer.
//
// The reader turns an in-memory BMP file into a canonical pixel buffer: tightly
// packed R,G,B[,A] bytes, row-major, first row at the visual top of the image.
// The writer does the reverse, always emitting uncompressed 24 or 32 bpp files.
// Neither side touches the filesystem.
package codec

import (
	"encoding/binary"
	"fmt"
)

const (
	fileHeaderSize = 14
	infoHeaderSize = 40
	minHeaderSize  = fileHeaderSize + infoHeaderSize

	// three masks follow a 40-byte header for BI_BITFIELDS, four for BI_ALPHABITFIELDS
	rgbMasksSize  = 12
	rgbaMasksSize = 16

	// MaxDimension bounds the absolute width and height of any image read or written.
	MaxDimension = 65536
)

// Compression is the BMP compression method stored in the info header.
type Compression uint32

const (
	CompressionRGB            Compression = 0
	CompressionRLE8           Compression = 1
	CompressionRLE4           Compression = 2
	CompressionBitFields      Compression = 3
	CompressionJPEG           Compression = 4
	CompressionPNG            Compression = 5
	CompressionAlphaBitFields Compression = 6
	CompressionCMYK           Compression = 11
	CompressionCMYKRLE8       Compression = 12
	CompressionCMYKRLE4       Compression = 13
)

var compressionNames = map[Compression]string{
	CompressionRGB:            "BI_RGB",
	CompressionRLE8:           "BI_RLE8",
	CompressionRLE4:           "BI_RLE4",
	CompressionBitFields:      "BI_BITFIELDS",
	CompressionJPEG:           "BI_JPEG",
	CompressionPNG:            "BI_PNG",
	CompressionAlphaBitFields: "BI_ALPHABITFIELDS",
	CompressionCMYK:           "BI_CMYK",
	CompressionCMYKRLE8:       "BI_CMYKRLE8",
	CompressionCMYKRLE4:       "BI_CMYKRLE4",
}

func (c Compression) String() string {
	if s, ok := compressionNames[c]; ok {
		return s
	}
	return fmt.Sprintf("compression(%d)", uint32(c))
}

// supported reports whether the reader can decode pixels stored with c.
func (c Compression) supported() bool {
	switch c {
	case CompressionRGB, CompressionRLE8, CompressionRLE4, CompressionBitFields, CompressionAlphaBitFields:
		return true
	}
	return false
}

func (c Compression) hasMasks() bool {
	return c == CompressionBitFields || c == CompressionAlphaBitFields
}

// FileHeader is the 14-byte header every BMP file starts with.
type FileHeader struct {
	Magic       [2]byte
	FileSize    uint32
	Reserved1   uint16
	Reserved2   uint16
	PixelOffset uint32
}

// InfoHeader is the BITMAPINFOHEADER part of the DIB header. Larger (v4/v5)
// headers are accepted; their extra fields other than the alpha mask are ignored.
type InfoHeader struct {
	Size            uint32
	Width           int32
	Height          int32 // negative means rows are stored top-down
	Planes          uint16
	BitsPerPixel    uint16
	Compression     Compression
	ImageSize       uint32 // unreliable in the wild, never used
	XPelsPerMeter   int32
	YPelsPerMeter   int32
	ColorsUsed      uint32
	ColorsImportant uint32
}

// ChannelMasks holds the per-channel bit masks of a BI_BITFIELDS image.
type ChannelMasks struct {
	R, G, B, A uint32
}

// Header is a validated file header plus DIB header.
type Header struct {
	File  FileHeader
	Info  InfoHeader
	Masks ChannelMasks

	// HasMasks is set for BI_BITFIELDS and BI_ALPHABITFIELDS images.
	HasMasks bool

	// HasAlphaMask is set when the file itself stored a fourth (alpha) mask.
	HasAlphaMask bool
}

// Width returns the absolute image width in pixels.
func (h *Header) Width() int {
	return int(absDim(h.Info.Width))
}

// Height returns the absolute image height in pixels.
func (h *Header) Height() int {
	return int(absDim(h.Info.Height))
}

// TopDown reports whether the first stored row is the top of the image.
func (h *Header) TopDown() bool {
	return h.Info.Height < 0
}

// masksSize is the number of mask bytes stored after a bare 40-byte info
// header. Larger headers carry the masks inside themselves.
func (h *Header) masksSize() int {
	if !h.HasMasks || h.Info.Size > infoHeaderSize {
		return 0
	}
	if h.Info.Compression == CompressionAlphaBitFields {
		return rgbaMasksSize
	}
	return rgbMasksSize
}

// PaletteOffset is the absolute file offset of the first palette entry.
func (h *Header) PaletteOffset() int {
	return fileHeaderSize + int(h.Info.Size) + h.masksSize()
}

func absDim(v int32) int64 {
	n := int64(v)
	if n < 0 {
		n = -n
	}
	return n
}

// ParseHeader validates the file and DIB headers of data without touching
// pixel data.
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < minHeaderSize {
		return nil, newError(KindTruncatedData, fmt.Sprintf("%d bytes is shorter than the %d byte minimum header", len(data), minHeaderSize))
	}

	h := &Header{
		File: FileHeader{
			Magic:       [2]byte{data[0], data[1]},
			FileSize:    binary.LittleEndian.Uint32(data[2:6]),
			Reserved1:   binary.LittleEndian.Uint16(data[6:8]),
			Reserved2:   binary.LittleEndian.Uint16(data[8:10]),
			PixelOffset: binary.LittleEndian.Uint32(data[10:14]),
		},
	}

	if h.File.Magic != [2]byte{'B', 'M'} {
		return nil, newError(KindMalformedHeader, fmt.Sprintf("bad magic %q", h.File.Magic[:]))
	}
	if uint64(h.File.PixelOffset) > uint64(len(data)) {
		return nil, newError(KindTruncatedData, fmt.Sprintf("pixel offset %d past end of %d byte buffer", h.File.PixelOffset, len(data)))
	}

	info := data[fileHeaderSize:]
	h.Info = InfoHeader{
		Size:            binary.LittleEndian.Uint32(info[0:4]),
		Width:           int32(binary.LittleEndian.Uint32(info[4:8])),
		Height:          int32(binary.LittleEndian.Uint32(info[8:12])),
		Planes:          binary.LittleEndian.Uint16(info[12:14]),
		BitsPerPixel:    binary.LittleEndian.Uint16(info[14:16]),
		Compression:     Compression(binary.LittleEndian.Uint32(info[16:20])),
		ImageSize:       binary.LittleEndian.Uint32(info[20:24]),
		XPelsPerMeter:   int32(binary.LittleEndian.Uint32(info[24:28])),
		YPelsPerMeter:   int32(binary.LittleEndian.Uint32(info[28:32])),
		ColorsUsed:      binary.LittleEndian.Uint32(info[32:36]),
		ColorsImportant: binary.LittleEndian.Uint32(info[36:40]),
	}

	if h.Info.Size < infoHeaderSize {
		return nil, newError(KindMalformedHeader, fmt.Sprintf("info header size %d below %d", h.Info.Size, infoHeaderSize))
	}
	if uint64(fileHeaderSize)+uint64(h.Info.Size) > uint64(len(data)) {
		return nil, newError(KindTruncatedData, fmt.Sprintf("info header size %d past end of %d byte buffer", h.Info.Size, len(data)))
	}
	if h.Info.Planes != 1 {
		return nil, newError(KindMalformedHeader, fmt.Sprintf("plane count %d, want 1", h.Info.Planes))
	}

	w, ht := absDim(h.Info.Width), absDim(h.Info.Height)
	if w == 0 || ht == 0 || w > MaxDimension || ht > MaxDimension {
		return nil, newError(KindDimensionOutOfRange, fmt.Sprintf("%dx%d", h.Info.Width, h.Info.Height))
	}

	bpp := h.Info.BitsPerPixel
	switch bpp {
	case 1, 4, 8, 24, 32:
	case 16:
		return nil, newError(KindUnsupportedFormat, "16 bpp")
	default:
		return nil, newError(KindUnsupportedFormat, fmt.Sprintf("%d bpp", bpp))
	}

	comp := h.Info.Compression
	if bpp == 32 && !comp.hasMasks() {
		return nil, newError(KindUnsupportedFormat, fmt.Sprintf("32 bpp requires bit masks, got %s", comp))
	}
	if !comp.supported() {
		return nil, newError(KindUnsupportedFormat, comp.String())
	}
	if comp.hasMasks() && bpp != 32 {
		return nil, newError(KindUnsupportedFormat, fmt.Sprintf("%s with %d bpp", comp, bpp))
	}
	if (comp == CompressionRLE8 && bpp != 8) || (comp == CompressionRLE4 && bpp != 4) {
		return nil, newError(KindUnsupportedFormat, fmt.Sprintf("%s with %d bpp", comp, bpp))
	}
	if (comp == CompressionRLE8 || comp == CompressionRLE4) && h.TopDown() {
		return nil, newError(KindUnsupportedFormat, "run-length encoded bitmaps cannot be top-down")
	}

	if comp.hasMasks() {
		h.HasMasks = true
		if err := h.readMasks(data); err != nil {
			return nil, err
		}
	}

	return h, nil
}

// readMasks extracts the channel masks. They sit right after the first 40
// bytes of the DIB header both for a bare info header (where they trail it)
// and for v2+ headers (where they are part of it).
func (h *Header) readMasks(data []byte) error {
	const off = fileHeaderSize + infoHeaderSize

	n := rgbMasksSize
	if h.Info.Compression == CompressionAlphaBitFields || h.Info.Size >= infoHeaderSize+rgbaMasksSize {
		n = rgbaMasksSize
	}
	if h.Info.Size > infoHeaderSize && int(h.Info.Size)-infoHeaderSize < n {
		n = int(h.Info.Size) - infoHeaderSize
	}
	if n < rgbMasksSize {
		return newError(KindMalformedHeader, fmt.Sprintf("info header size %d too small for bit masks", h.Info.Size))
	}
	if off+n > len(data) {
		return newError(KindTruncatedData, "bit masks past end of buffer")
	}

	m := data[off : off+n]
	h.Masks.R = binary.LittleEndian.Uint32(m[0:4])
	h.Masks.G = binary.LittleEndian.Uint32(m[4:8])
	h.Masks.B = binary.LittleEndian.Uint32(m[8:12])
	if n >= rgbaMasksSize {
		h.Masks.A = binary.LittleEndian.Uint32(m[12:16])
		h.HasAlphaMask = true
	}
	return nil
}
