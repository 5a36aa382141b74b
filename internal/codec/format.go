package codec

import (
	"fmt"
	"math/bits"
)

// BitshiftTable records the lowest set bit of the R, G, B and A masks.
type BitshiftTable [4]uint32

// Format is the decoding strategy derived from a validated Header.
type Format struct {
	BitsPerPixel int
	Compression  Compression

	// SrcChannels is 1 for palette indices, 3 for 24 bpp and 4 for 32 bpp.
	SrcChannels int
	// DstChannels is 4 for 32 bpp sources and 3 for everything else.
	DstChannels int

	HasPalette bool
	HasMasks   bool

	// Masks has the alpha mask resolved; Shifts is derived from it.
	Masks  ChannelMasks
	Shifts BitshiftTable

	// RowSize is the stored size of one uncompressed row including its
	// padding to a 4-byte boundary.
	RowSize int
}

// ResolveFormat maps a header onto channel counts, palette and bit-mask use.
func ResolveFormat(h *Header) (Format, error) {
	f := Format{
		BitsPerPixel: int(h.Info.BitsPerPixel),
		Compression:  h.Info.Compression,
		DstChannels:  3,
	}

	switch f.BitsPerPixel {
	case 32:
		f.SrcChannels, f.DstChannels = 4, 4
	case 24:
		f.SrcChannels = 3
	case 8, 4, 1:
		f.SrcChannels = 1
		f.HasPalette = true
	default:
		return Format{}, newError(KindUnsupportedFormat, fmt.Sprintf("%d bpp", f.BitsPerPixel))
	}
	if h.Info.ColorsUsed > 0 {
		f.HasPalette = true
	}

	if h.HasMasks {
		f.HasMasks = true
		f.Masks = h.Masks
		if !h.HasAlphaMask || f.Masks.A == 0 {
			f.Masks.A = ^(f.Masks.R | f.Masks.G | f.Masks.B)
		}
		f.Shifts = BitshiftTable{
			LowestSetBit(f.Masks.R),
			LowestSetBit(f.Masks.G),
			LowestSetBit(f.Masks.B),
			LowestSetBit(f.Masks.A),
		}
	}

	f.RowSize = rowSize(h.Width(), f.BitsPerPixel)
	return f, nil
}

// LowestSetBit returns the index of the lowest set bit of mask, or 0 for an
// empty mask.
func LowestSetBit(mask uint32) uint32 {
	if mask == 0 {
		return 0
	}
	return uint32(bits.TrailingZeros32(mask))
}

// rowSize is the padded byte length of a stored row. For 1 and 4 bpp the
// padding is computed from the bit-packed width.
func rowSize(width, bpp int) int {
	return ((width*bpp + 31) / 32) * 4
}
