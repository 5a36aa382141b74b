package codec

import "fmt"

// RLE escape codes, valid when the first byte of a token is zero.
const (
	rleEndOfLine   = 0x00
	rleEndOfBitmap = 0x01
	rleDelta       = 0x02
)

// rleCursor tracks the write position of a run-length decode.
type rleCursor struct {
	d        *decoder
	row, col int
	off      int
}

func (c *rleCursor) put(index byte) error {
	if c.col >= c.d.width {
		return newError(KindDecodeOverflow, fmt.Sprintf("run past end of row %d", c.row))
	}
	if err := c.d.palette.put(c.d.dst, c.off, index); err != nil {
		return err
	}
	c.off += 3
	c.col++
	return nil
}

func (c *rleCursor) newLine() error {
	c.row++
	if c.row >= c.d.height {
		return newError(KindDecodeOverflow, fmt.Sprintf("end of line past last row %d", c.d.height-1))
	}
	c.col = 0
	c.off = c.d.rowOffset(c.row)
	return nil
}

// decodeRLE runs the BI_RLE8 / BI_RLE4 state machine over two-byte tokens.
// With nibbles set every index byte packs two 4-bit indices, high nibble
// first. The stream must finish with an end-of-bitmap escape.
func (d *decoder) decodeRLE(nibbles bool) error {
	c := &rleCursor{d: d, off: d.rowOffset(0)}
	src := d.src
	i := 0

	for i+1 < len(src) {
		count, value := src[i], src[i+1]
		i += 2

		if count != 0 {
			// encoded run: count pixels of one color, or alternating colors for RLE4
			for k := 0; k < int(count); k++ {
				if err := c.put(nibbleAt(value, k, nibbles)); err != nil {
					return err
				}
			}
			continue
		}

		switch value {
		case rleEndOfLine:
			if err := c.newLine(); err != nil {
				return err
			}
		case rleEndOfBitmap:
			return nil
		case rleDelta:
			return newError(KindUnsupportedFormat, "run-length delta escape")
		default:
			// absolute run of value raw indices, padded to a 16-bit boundary
			n := int(value)
			size := n
			if nibbles {
				size = (n + 1) / 2
			}
			if i+size > len(src) {
				return newError(KindTruncatedData, fmt.Sprintf("absolute run of %d pixels past end of data", n))
			}
			for k := 0; k < n; k++ {
				var b byte
				if nibbles {
					b = src[i+k/2]
				} else {
					b = src[i+k]
				}
				if err := c.put(nibbleAt(b, k, nibbles)); err != nil {
					return err
				}
			}
			i += size
			if size%2 != 0 {
				i++
			}
		}
	}

	return newError(KindTruncatedData, "run-length data ended without end-of-bitmap")
}

// nibbleAt picks the index for the k-th pixel of a run. RLE4 alternates
// between the high and low nibble of b.
func nibbleAt(b byte, k int, nibbles bool) byte {
	if !nibbles {
		return b
	}
	if k%2 == 0 {
		return b >> 4
	}
	return b & 0x0f
}
