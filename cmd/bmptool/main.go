// Command bmptool reads, writes, compares and inspects BMP files.
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"

	"golang.org/x/image/bmp"

	"github.com/rcarmo/go-bmp/internal/codec"
	"github.com/rcarmo/go-bmp/internal/handler"
	"github.com/rcarmo/go-bmp/internal/logging"
)

const usage = `USAGE: bmptool [-log-level level] [-max-pixel-bytes n] <command> [args]
COMMANDS:
  read  IN.bmp OUT.png    decode a BMP and save it as PNG
  write IN.bmp OUT.bmp    decode a BMP and write it back as 24/32 bpp
  cmp   A.bmp B.bmp       decode both, check each against golang.org/x/image/bmp, compare pixels
  info  IN.bmp            print header metadata as JSON
`

// errUsage marks a command line that could not be understood.
var errUsage = errors.New("invalid usage")

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
		}
		logging.Error("%v", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("bmptool", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	logLevel := fs.String("log-level", "info", "log level (debug, info, warn, error)")
	maxPixelBytes := fs.Int64("max-pixel-bytes", codec.DefaultMaxPixelBytes, "largest decoded pixel buffer in bytes")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	logging.SetLevelFromString(*logLevel)
	opts := codec.ReadOptions{MaxPixelBytes: *maxPixelBytes}

	rest := fs.Args()
	if len(rest) == 0 {
		return fmt.Errorf("%w: missing command", errUsage)
	}

	cmd, params := rest[0], rest[1:]
	switch cmd {
	case "read":
		if len(params) != 2 {
			return fmt.Errorf("%w: read needs IN.bmp OUT.png", errUsage)
		}
		return readCommand(params[0], params[1], opts, stdout)
	case "write":
		if len(params) != 2 {
			return fmt.Errorf("%w: write needs IN.bmp OUT.bmp", errUsage)
		}
		return writeCommand(params[0], params[1], opts, stdout)
	case "cmp":
		if len(params) != 2 {
			return fmt.Errorf("%w: cmp needs A.bmp B.bmp", errUsage)
		}
		return cmpCommand(params[0], params[1], opts, stdout)
	case "info":
		if len(params) != 1 {
			return fmt.Errorf("%w: info needs IN.bmp", errUsage)
		}
		return infoCommand(params[0], stdout)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func loadBitmap(path string, opts codec.ReadOptions) (*codec.Bitmap, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}
	bm, err := codec.ReadWithOptions(data, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return bm, data, nil
}

func readCommand(in, out string, opts codec.ReadOptions, stdout io.Writer) error {
	bm, _, err := loadBitmap(in, opts)
	if err != nil {
		return err
	}
	defer bm.Release()
	fmt.Fprintf(stdout, "loaded %s: %dx%d, %d channels\n", in, bm.Width, bm.Height, bm.Channels)

	var buf bytes.Buffer
	if err := png.Encode(&buf, bm.Image()); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	fmt.Fprintf(stdout, "wrote %s\n", out)
	return nil
}

func writeCommand(in, out string, opts codec.ReadOptions, stdout io.Writer) error {
	bm, _, err := loadBitmap(in, opts)
	if err != nil {
		return err
	}
	defer bm.Release()

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create %s: %w", out, err)
	}
	if err := codec.Write(f, bm.Pix, bm.Width, bm.Height, bm.Channels); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode %s: %w", out, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", out, err)
	}
	fmt.Fprintf(stdout, "wrote %s: %dx%d, %d bpp\n", out, bm.Width, bm.Height, bm.Channels*8)
	return nil
}

// cmpCommand decodes both files, checks each against the reference decoder
// where it can read the file, then compares the two pixel buffers.
func cmpCommand(a, b string, opts codec.ReadOptions, stdout io.Writer) error {
	fmt.Fprintf(stdout, "loading and comparing a=%s b=%s\n", a, b)

	bmA, dataA, err := loadBitmap(a, opts)
	if err != nil {
		return err
	}
	bmB, dataB, err := loadBitmap(b, opts)
	if err != nil {
		return err
	}

	for _, c := range []struct {
		name string
		bm   *codec.Bitmap
		data []byte
	}{{a, bmA, dataA}, {b, bmB, dataB}} {
		checked, err := checkReference(c.bm, c.data)
		if err != nil {
			return fmt.Errorf("%s: %w", c.name, err)
		}
		if !checked {
			logging.Warn("%s: reference decoder cannot read this variant, skipped", c.name)
		}
	}

	if bmA.Width != bmB.Width || bmA.Height != bmB.Height || bmA.Channels != bmB.Channels {
		return fmt.Errorf("dims/chans do not match: %dx%d@%d vs %dx%d@%d",
			bmA.Width, bmA.Height, bmA.Channels, bmB.Width, bmB.Height, bmB.Channels)
	}
	if !bytes.Equal(bmA.Pix, bmB.Pix) {
		return fmt.Errorf("pixel data differs at byte %d", firstDifference(bmA.Pix, bmB.Pix))
	}

	fmt.Fprintln(stdout, "images match")
	return nil
}

// checkReference decodes data with golang.org/x/image/bmp and compares the
// result with bm. It reports false when the reference decoder rejects the
// variant.
func checkReference(bm *codec.Bitmap, data []byte) (bool, error) {
	img, err := bmp.Decode(bytes.NewReader(data))
	if errors.Is(err, bmp.ErrUnsupported) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reference decode: %w", err)
	}

	ref := flatten(img, bm.Channels)
	if img.Bounds().Dx() != bm.Width || img.Bounds().Dy() != bm.Height {
		return true, fmt.Errorf("dims %dx%d do not match reference %dx%d",
			bm.Width, bm.Height, img.Bounds().Dx(), img.Bounds().Dy())
	}
	if !bytes.Equal(ref, bm.Pix) {
		return true, fmt.Errorf("pixels differ from reference at byte %d", firstDifference(ref, bm.Pix))
	}
	return true, nil
}

func flatten(img image.Image, channels int) []byte {
	bounds := img.Bounds()
	out := make([]byte, 0, bounds.Dx()*bounds.Dy()*channels)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			out = append(out, c.R, c.G, c.B)
			if channels == 4 {
				out = append(out, c.A)
			}
		}
	}
	return out
}

func firstDifference(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}

func infoCommand(in string, stdout io.Writer) error {
	data, err := os.ReadFile(in)
	if err != nil {
		return fmt.Errorf("read %s: %w", in, err)
	}
	info, err := handler.Describe(data)
	if err != nil {
		return fmt.Errorf("parse %s: %w", in, err)
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}
