package codec

import (
	"encoding/binary"
	"testing"
)

// bmpFixture describes a synthetic BMP file for tests.
type bmpFixture struct {
	width, height int32
	bpp           uint16
	compression   Compression
	infoSize      uint32 // 40 when zero
	masks         []uint32
	palette       [][3]byte // R,G,B
	colorsUsed    uint32
	pixels        []byte // stored pixel data, already padded
}

func buildBMP(t testing.TB, s bmpFixture) []byte {
	t.Helper()

	infoSize := s.infoSize
	if infoSize == 0 {
		infoSize = infoHeaderSize
	}

	var masks []byte
	for _, m := range s.masks {
		masks = binary.LittleEndian.AppendUint32(masks, m)
	}

	info := make([]byte, infoSize)
	binary.LittleEndian.PutUint32(info[0:], infoSize)
	binary.LittleEndian.PutUint32(info[4:], uint32(s.width))
	binary.LittleEndian.PutUint32(info[8:], uint32(s.height))
	binary.LittleEndian.PutUint16(info[12:], 1)
	binary.LittleEndian.PutUint16(info[14:], s.bpp)
	binary.LittleEndian.PutUint32(info[16:], uint32(s.compression))
	binary.LittleEndian.PutUint32(info[20:], uint32(len(s.pixels)))
	binary.LittleEndian.PutUint32(info[32:], s.colorsUsed)

	var trailing []byte
	if infoSize == infoHeaderSize {
		trailing = masks
	} else {
		copy(info[infoHeaderSize:], masks)
	}

	var pal []byte
	for _, c := range s.palette {
		pal = append(pal, c[2], c[1], c[0], 0)
	}

	offset := fileHeaderSize + len(info) + len(trailing) + len(pal)
	out := make([]byte, fileHeaderSize, offset+len(s.pixels))
	out[0], out[1] = 'B', 'M'
	binary.LittleEndian.PutUint32(out[2:], uint32(offset+len(s.pixels)))
	binary.LittleEndian.PutUint32(out[10:], uint32(offset))

	out = append(out, info...)
	out = append(out, trailing...)
	out = append(out, pal...)
	out = append(out, s.pixels...)
	return out
}

// testPalette returns n distinct colors.
func testPalette(n int) [][3]byte {
	pal := make([][3]byte, n)
	for i := range pal {
		pal[i] = [3]byte{byte(i * 10), byte(i*20 + 1), byte(i*30 + 2)}
	}
	return pal
}

func rgb(c [3]byte) []byte {
	return []byte{c[0], c[1], c[2]}
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// validCorpus returns one well-formed file per supported encoding.
func validCorpus(t testing.TB) map[string][]byte {
	t.Helper()

	bw := [][3]byte{{0, 0, 0}, {255, 255, 255}}
	return map[string][]byte{
		"24bpp": buildBMP(t, bmpFixture{
			width: 3, height: 2, bpp: 24,
			pixels: []byte{
				1, 2, 3, 4, 5, 6, 7, 8, 9, 0, 0, 0,
				10, 11, 12, 13, 14, 15, 16, 17, 18, 0, 0, 0,
			},
		}),
		"32bpp": buildBMP(t, bmpFixture{
			width: 2, height: 2, bpp: 32, compression: CompressionBitFields,
			masks:  []uint32{0x00FF0000, 0x0000FF00, 0x000000FF},
			pixels: []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
		}),
		"8bpp": buildBMP(t, bmpFixture{
			width: 3, height: 2, bpp: 8, palette: testPalette(4),
			pixels: []byte{0, 1, 2, 0, 3, 2, 1, 0},
		}),
		"4bpp": buildBMP(t, bmpFixture{
			width: 3, height: 2, bpp: 4, palette: testPalette(16),
			pixels: []byte{0x12, 0x30, 0, 0, 0xFE, 0xD0, 0, 0},
		}),
		"1bpp": buildBMP(t, bmpFixture{
			width: 2, height: 2, bpp: 1, palette: bw,
			pixels: []byte{0x40, 0, 0, 0, 0xC0, 0, 0, 0},
		}),
		"rle8": buildBMP(t, bmpFixture{
			width: 3, height: 2, bpp: 8, compression: CompressionRLE8, palette: testPalette(8),
			pixels: []byte{0x03, 0x05, 0x00, 0x00, 0x02, 0x07, 0x00, 0x01},
		}),
		"rle4": buildBMP(t, bmpFixture{
			width: 4, height: 2, bpp: 4, compression: CompressionRLE4, palette: testPalette(16),
			pixels: []byte{0x04, 0x12, 0x00, 0x00, 0x00, 0x03, 0x34, 0x50, 0x00, 0x01},
		}),
	}
}
