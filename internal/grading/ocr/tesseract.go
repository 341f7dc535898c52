package ocr

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"
)

var ErrNotInstalled = errors.New("tesseract not found in PATH")

// TesseractOCR shells out to the tesseract binary. It is the fallback name
// reader when a sheet carries no QR code.
type TesseractOCR struct {
	Lang    string
	Timeout time.Duration
	// Bin defaults to "tesseract".
	Bin string
}

func NewTesseractOCR() *TesseractOCR {
	return &TesseractOCR{Lang: "por", Timeout: 20 * time.Second}
}

func (t *TesseractOCR) Extract(ctx context.Context, r io.Reader) (string, error) {
	f, err := os.CreateTemp("", "sheet-*.jpg")
	if err != nil {
		return "", err
	}
	defer func() { f.Close(); os.Remove(f.Name()) }()
	if _, err := io.Copy(f, r); err != nil {
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return t.exec(ctx, f.Name())
}

// ReadName runs OCR on the sheet and picks the student name from it.
func (t *TesseractOCR) ReadName(ctx context.Context, image []byte) (string, error) {
	text, err := t.Extract(ctx, bytes.NewReader(image))
	if err != nil {
		return "", err
	}
	return NameFromText(text), nil
}

var namePrefixes = []string{"nome do aluno:", "nome:", "aluno:", "aluna:"}

// NameFromText returns the value of the first "Nome:"/"Aluno:" line, or ""
// when the text has none.
func NameFromText(text string) string {
	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		lower := strings.ToLower(line)
		for _, p := range namePrefixes {
			if strings.HasPrefix(lower, p) {
				if name := strings.TrimSpace(line[len(p):]); name != "" {
					return strings.Join(strings.Fields(name), " ")
				}
			}
		}
	}
	return ""
}

func (t *TesseractOCR) exec(ctx context.Context, inPath string) (string, error) {
	bin := t.Bin
	if bin == "" {
		bin = "tesseract"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return "", ErrNotInstalled
	}
	args := []string{inPath, "stdout"}
	if t.Lang != "" {
		args = append(args, "-l", t.Lang)
	}
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", errors.New(msg)
		}
		return "", err
	}
	return out.String(), nil
}
