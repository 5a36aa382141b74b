package codec

import "fmt"

const paletteEntrySize = 4

// Palette is a read-only view of the (B,G,R,unused) quads of an indexed image.
type Palette []byte

// newPalette slices the palette out of data. The entry count is the declared
// color count (or 2^bpp when zero), capped to what an index can address and
// to the bytes between the headers and the pixel data.
func newPalette(data []byte, h *Header, bpp int) Palette {
	off := h.PaletteOffset()
	if off >= len(data) {
		return nil
	}

	n := int64(h.Info.ColorsUsed)
	if bpp <= 8 && (n == 0 || n > 1<<bpp) {
		n = 1 << bpp
	}
	end := len(data)
	if px := int64(h.File.PixelOffset); px >= int64(off) && px <= int64(end) {
		end = int(px)
	}
	if avail := int64((end - off) / paletteEntrySize); n > avail {
		n = avail
	}
	return Palette(data[off : off+int(n)*paletteEntrySize])
}

// Len returns the number of entries.
func (p Palette) Len() int {
	return len(p) / paletteEntrySize
}

// RGB returns the color at index.
func (p Palette) RGB(index byte) (r, g, b byte, ok bool) {
	i := int(index) * paletteEntrySize
	if i+paletteEntrySize > len(p) {
		return 0, 0, 0, false
	}
	return p[i+2], p[i+1], p[i], true
}

// put writes the R,G,B of palette entry index at dst[off:off+3].
func (p Palette) put(dst []byte, off int, index byte) error {
	r, g, b, ok := p.RGB(index)
	if !ok {
		return newError(KindDecodeOverflow, fmt.Sprintf("palette index %d out of %d entries", index, p.Len()))
	}
	if off < 0 || off+3 > len(dst) {
		return newError(KindDecodeOverflow, "pixel write past end of buffer")
	}
	dst[off] = r
	dst[off+1] = g
	dst[off+2] = b
	return nil
}
