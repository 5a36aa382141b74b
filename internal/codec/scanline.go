package codec

import (
	"encoding/binary"
	"fmt"
)

// decode32 extracts each channel of a little-endian word via its bit mask.
func (d *decoder) decode32() error {
	m, s := d.format.Masks, d.format.Shifts
	for row := 0; row < d.height; row++ {
		src := d.src[row*d.format.RowSize:]
		dst := d.dst[d.rowOffset(row):]
		for col := 0; col < d.width; col++ {
			px := binary.LittleEndian.Uint32(src[col*4:])
			o := col * 4
			dst[o] = byte((px & m.R) >> s[0])
			dst[o+1] = byte((px & m.G) >> s[1])
			dst[o+2] = byte((px & m.B) >> s[2])
			dst[o+3] = byte((px & m.A) >> s[3])
		}
	}
	return nil
}

// decode24 copies stored B,G,R triples into R,G,B order.
func (d *decoder) decode24() error {
	for row := 0; row < d.height; row++ {
		src := d.src[row*d.format.RowSize:]
		dst := d.dst[d.rowOffset(row):]
		for col := 0; col < d.width; col++ {
			o := col * 3
			dst[o] = src[o+2]
			dst[o+1] = src[o+1]
			dst[o+2] = src[o]
		}
	}
	return nil
}

// decodeIndexed expands uncompressed 8, 4 and 1 bpp palette indices.
func (d *decoder) decodeIndexed() error {
	bpp := d.format.BitsPerPixel
	for row := 0; row < d.height; row++ {
		src := d.src[row*d.format.RowSize : (row+1)*d.format.RowSize]
		off := d.rowOffset(row)
		for col := 0; col < d.width; col++ {
			if err := d.palette.put(d.dst, off+col*3, indexAt(src, col, bpp)); err != nil {
				return fmt.Errorf("row %d col %d: %w", row, col, err)
			}
		}
	}
	return nil
}

// indexAt returns the palette index of pixel col in a packed row. Sub-byte
// indices are stored most significant bits first.
func indexAt(row []byte, col, bpp int) byte {
	switch bpp {
	case 8:
		return row[col]
	case 4:
		b := row[col/2]
		if col%2 == 0 {
			return b >> 4
		}
		return b & 0x0f
	default:
		return (row[col/8] >> (7 - uint(col%8))) & 1
	}
}
