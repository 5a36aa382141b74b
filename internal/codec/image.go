package codec

import (
	"image"
	"image/color"
)

// Image wraps the canonical buffer as an image.Image. Three channel bitmaps
// become an opaque *image.RGBA, four channel ones an *image.NRGBA since BMP
// alpha is not premultiplied. The pixels are copied.
func (b *Bitmap) Image() image.Image {
	rect := image.Rect(0, 0, b.Width, b.Height)
	if b.Channels == 4 {
		img := image.NewNRGBA(rect)
		copy(img.Pix, b.Pix)
		return img
	}

	img := image.NewRGBA(rect)
	for i, j := 0, 0; i+2 < len(b.Pix) && j+3 < len(img.Pix); i, j = i+3, j+4 {
		img.Pix[j] = b.Pix[i]
		img.Pix[j+1] = b.Pix[i+1]
		img.Pix[j+2] = b.Pix[i+2]
		img.Pix[j+3] = 0xFF
	}
	return img
}

// FromImage converts any image into a canonical bitmap. Fully opaque images
// produce three channels, anything with transparency four.
func FromImage(img image.Image) *Bitmap {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	rgba := make([]byte, w*h*4)
	opaque := true
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBAModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			o := (y*w + x) * 4
			rgba[o], rgba[o+1], rgba[o+2], rgba[o+3] = c.R, c.G, c.B, c.A
			if c.A != 0xFF {
				opaque = false
			}
		}
	}

	if !opaque {
		return &Bitmap{Pix: rgba, Width: w, Height: h, Channels: 4}
	}

	rgb := make([]byte, w*h*3)
	for i, j := 0, 0; j < len(rgb); i, j = i+4, j+3 {
		rgb[j], rgb[j+1], rgb[j+2] = rgba[i], rgba[i+1], rgba[i+2]
	}
	return &Bitmap{Pix: rgb, Width: w, Height: h, Channels: 3}
}
