// Package imagenorm re-encodes captured exam sheets into the JPEG form the
// grading service expects.
package imagenorm

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var (
	ErrUnsupported = errors.New("unsupported image format")
	ErrTooLarge    = errors.New("image dimensions too large")
)

// DefaultMaxPixels is about seven times an A4 page at 300 dpi, enough for
// any phone camera.
const DefaultMaxPixels = 64_000_000

type Options struct {
	// MaxWidth and MaxHeight bound the output; zero leaves that side unbounded.
	MaxWidth  int
	MaxHeight int
	// Quality is the JPEG quality, 1-100. Zero means 100, matching the
	// uncompressed export of the camera app.
	Quality int
	// MaxPixels rejects images whose header declares more pixels, before
	// they are decoded. Zero means DefaultMaxPixels.
	MaxPixels int
}

// DefaultOptions caps output at A4 size scanned at 300 dpi.
var DefaultOptions = Options{MaxWidth: 2480, MaxHeight: 3508, Quality: 95}

// NormalizeJPEG decodes any supported image, applies EXIF orientation, fits it
// into the bounds and encodes it as baseline JPEG.
func NormalizeJPEG(r io.Reader, opts Options) ([]byte, error) {
	var head bytes.Buffer
	cfg, _, err := image.DecodeConfig(io.TeeReader(r, &head))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, ErrUnsupported
		}
		return nil, fmt.Errorf("decode image header: %w", err)
	}
	limit := opts.MaxPixels
	if limit <= 0 {
		limit = DefaultMaxPixels
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > int64(limit) {
		return nil, fmt.Errorf("%w: %dx%d", ErrTooLarge, cfg.Width, cfg.Height)
	}

	img, err := imaging.Decode(io.MultiReader(&head, r), imaging.AutoOrientation(true))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, ErrUnsupported
		}
		return nil, fmt.Errorf("decode image: %w", err)
	}
	b := img.Bounds()
	w, h := opts.MaxWidth, opts.MaxHeight
	if w <= 0 {
		w = b.Dx()
	}
	if h <= 0 {
		h = b.Dy()
	}
	if b.Dx() > w || b.Dy() > h {
		img = imaging.Fit(img, w, h, imaging.Lanczos)
	}
	q := opts.Quality
	if q <= 0 || q > 100 {
		q = 100
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: q}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
