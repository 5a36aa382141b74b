package codec

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBitmapImage(t *testing.T) {
	t.Run("three channels", func(t *testing.T) {
		bm := &Bitmap{Pix: []byte{1, 2, 3, 4, 5, 6}, Width: 2, Height: 1, Channels: 3}
		img, ok := bm.Image().(*image.RGBA)
		require.True(t, ok)
		assert.Equal(t, []byte{1, 2, 3, 0xFF, 4, 5, 6, 0xFF}, img.Pix)
		assert.True(t, img.Opaque())
	})

	t.Run("four channels", func(t *testing.T) {
		bm := &Bitmap{Pix: []byte{1, 2, 3, 4}, Width: 1, Height: 1, Channels: 4}
		img, ok := bm.Image().(*image.NRGBA)
		require.True(t, ok)
		assert.Equal(t, color.NRGBA{R: 1, G: 2, B: 3, A: 4}, img.NRGBAAt(0, 0))

		img.Pix[0] = 9
		assert.Equal(t, byte(1), bm.Pix[0])
	})
}

func TestFromImage(t *testing.T) {
	t.Run("opaque image gives three channels", func(t *testing.T) {
		img := image.NewRGBA(image.Rect(2, 3, 4, 4))
		img.SetRGBA(2, 3, color.RGBA{R: 10, G: 20, B: 30, A: 0xFF})
		img.SetRGBA(3, 3, color.RGBA{R: 40, G: 50, B: 60, A: 0xFF})

		bm := FromImage(img)
		assert.Equal(t, 2, bm.Width)
		assert.Equal(t, 1, bm.Height)
		assert.Equal(t, 3, bm.Channels)
		assert.Equal(t, []byte{10, 20, 30, 40, 50, 60}, bm.Pix)
	})

	t.Run("translucent image keeps alpha", func(t *testing.T) {
		img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
		img.SetNRGBA(0, 0, color.NRGBA{R: 10, G: 20, B: 30, A: 40})

		bm := FromImage(img)
		assert.Equal(t, 4, bm.Channels)
		assert.Equal(t, []byte{10, 20, 30, 40}, bm.Pix)
	})

	t.Run("round trip through image adapters", func(t *testing.T) {
		bm, err := Read(validCorpus(t)["32bpp"])
		require.NoError(t, err)

		again := FromImage(bm.Image())
		assert.Equal(t, bm.Pix, again.Pix)
	})
}
