package codec

// Bitmap is a decoded image in canonical form: Width*Height*Channels bytes,
// row-major, R,G,B[,A], first row at the top.
type Bitmap struct {
	Pix      []byte
	Width    int
	Height   int
	Channels int
}

// Stride returns the byte length of one row of Pix.
func (b *Bitmap) Stride() int {
	return b.Width * b.Channels
}

// Release drops the pixel buffer. Further calls are no-ops.
func (b *Bitmap) Release() {
	if b == nil {
		return
	}
	b.Pix = nil
	b.Width, b.Height, b.Channels = 0, 0, 0
}
