package codec

import (
	"fmt"
	"io"
	"math"

	"github.com/rcarmo/go-bmp/internal/logging"
)

// DefaultMaxPixelBytes caps the output buffer when ReadOptions leaves
// MaxPixelBytes at zero.
const DefaultMaxPixelBytes int64 = 256 << 20

// ReadOptions tunes Read.
type ReadOptions struct {
	// MaxPixelBytes caps the size of the output buffer. Zero selects
	// DefaultMaxPixelBytes; a negative value leaves only the dimension bound.
	MaxPixelBytes int64

	// MaxDimension lowers the width/height bound below the format limit.
	// Zero or anything above MaxDimension keeps the format limit.
	MaxDimension int
}

// Read decodes a BMP file held in data.
func Read(data []byte) (*Bitmap, error) {
	return ReadWithOptions(data, ReadOptions{})
}

// Decode reads all of r and decodes it as a BMP file.
func Decode(r io.Reader) (*Bitmap, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read bmp: %w", err)
	}
	return Read(data)
}

// ReadWithOptions decodes a BMP file held in data. On any failure no pixel
// buffer is returned.
func ReadWithOptions(data []byte, opts ReadOptions) (*Bitmap, error) {
	h, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}
	f, err := ResolveFormat(h)
	if err != nil {
		return nil, err
	}

	width, height := h.Width(), h.Height()
	if limit := opts.MaxDimension; limit > 0 && limit < MaxDimension && (width > limit || height > limit) {
		return nil, newError(KindDimensionOutOfRange, fmt.Sprintf("%dx%d exceeds limit %d", width, height, limit))
	}
	if logging.Enabled(logging.LevelDebug) {
		logging.Debug("bmp: %dx%d bpp=%d %s src_chans=%d dst_chans=%d top_down=%t",
			width, height, f.BitsPerPixel, f.Compression, f.SrcChannels, f.DstChannels, h.TopDown())
	}

	if h.PaletteOffset() > len(data) {
		return nil, newError(KindTruncatedData, "palette offset past end of buffer")
	}

	compressed := f.Compression == CompressionRLE8 || f.Compression == CompressionRLE4
	if !compressed {
		need := int64(h.File.PixelOffset) + int64(f.RowSize)*int64(height)
		if need > int64(len(data)) {
			return nil, newError(KindTruncatedData, fmt.Sprintf("pixel data needs %d bytes, buffer has %d", need, len(data)))
		}
	}

	limit := opts.MaxPixelBytes
	if limit == 0 {
		limit = DefaultMaxPixelBytes
	}
	size := int64(width) * int64(height) * int64(f.DstChannels)
	if size > int64(math.MaxInt) || (limit > 0 && size > limit) {
		return nil, newError(KindAllocationFailure, fmt.Sprintf("%d byte pixel buffer", size))
	}

	d := &decoder{
		src:     data[h.File.PixelOffset:],
		dst:     make([]byte, size),
		format:  f,
		width:   width,
		height:  height,
		stride:  width * f.DstChannels,
		topDown: h.TopDown(),
	}
	if f.HasPalette {
		d.palette = newPalette(data, h, f.BitsPerPixel)
	}

	switch {
	case f.BitsPerPixel == 32:
		err = d.decode32()
	case f.BitsPerPixel == 24:
		err = d.decode24()
	case f.Compression == CompressionRLE8:
		err = d.decodeRLE(false)
	case f.Compression == CompressionRLE4:
		err = d.decodeRLE(true)
	default:
		err = d.decodeIndexed()
	}
	if err != nil {
		d.dst = nil
		return nil, err
	}

	return &Bitmap{Pix: d.dst, Width: width, Height: height, Channels: f.DstChannels}, nil
}

type decoder struct {
	src     []byte // from the pixel data offset to the end of the file
	dst     []byte
	palette Palette
	format  Format
	width   int
	height  int
	stride  int
	topDown bool
}

// rowOffset maps a stored row onto its canonical destination offset.
func (d *decoder) rowOffset(row int) int {
	if d.topDown {
		return row * d.stride
	}
	return (d.height - 1 - row) * d.stride
}
