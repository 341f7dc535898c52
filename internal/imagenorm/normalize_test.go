package imagenorm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func pngImage(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.Black)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestNormalizeJPEG_ConvertsAndFits(t *testing.T) {
	out, err := NormalizeJPEG(bytes.NewReader(pngImage(t, 400, 200)), Options{MaxWidth: 100, MaxHeight: 100})
	if err != nil {
		t.Fatalf("NormalizeJPEG: %v", err)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatal(err)
	}
	if format != "jpeg" {
		t.Fatalf("format = %s", format)
	}
	if cfg.Width != 100 || cfg.Height != 50 {
		t.Fatalf("size = %dx%d, want 100x50", cfg.Width, cfg.Height)
	}
}

func TestNormalizeJPEG_KeepsSmallImages(t *testing.T) {
	out, err := NormalizeJPEG(bytes.NewReader(pngImage(t, 40, 30)), DefaultOptions)
	if err != nil {
		t.Fatal(err)
	}
	img, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 40 || img.Bounds().Dy() != 30 {
		t.Fatalf("unexpected size %v", img.Bounds())
	}
}

func TestNormalizeJPEG_Unsupported(t *testing.T) {
	_, err := NormalizeJPEG(bytes.NewReader([]byte("definitely not an image")), DefaultOptions)
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

// withDimensions rewrites the IHDR chunk of a PNG so its header claims w x h.
func withDimensions(t *testing.T, src []byte, w, h uint32) []byte {
	t.Helper()
	out := append([]byte(nil), src...)
	// signature(8) length(4) "IHDR"(4) data(13) crc(4)
	if string(out[12:16]) != "IHDR" {
		t.Fatal("unexpected png layout")
	}
	binary.BigEndian.PutUint32(out[16:20], w)
	binary.BigEndian.PutUint32(out[20:24], h)
	binary.BigEndian.PutUint32(out[29:33], crc32.ChecksumIEEE(out[12:29]))
	return out
}

func TestNormalizeJPEG_RejectsHugeDimensions(t *testing.T) {
	huge := withDimensions(t, pngImage(t, 4, 4), 100000, 100000)
	if _, err := NormalizeJPEG(bytes.NewReader(huge), DefaultOptions); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if _, err := NormalizeJPEG(bytes.NewReader(pngImage(t, 40, 30)), Options{MaxPixels: 1000}); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge with a custom limit, got %v", err)
	}
	if _, err := NormalizeJPEG(bytes.NewReader(pngImage(t, 40, 25)), Options{MaxPixels: 1000}); err != nil {
		t.Fatalf("image at the limit rejected: %v", err)
	}
}
