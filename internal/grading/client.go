package grading

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"golang.org/x/oauth2/clientcredentials"
)

const (
	sheetFileName = "PROVA-OCR.jpg"
	qrFileName    = "prova.jpg"
)

// StatusError is a non-2xx reply from the grading or QR service.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d - %s", e.Op, e.Code, e.Body)
}

type Config struct {
	GradeURL string
	QRURL    string
	// Optional client-credentials auth in front of the services.
	TokenURL     string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

type Client struct {
	http     *http.Client
	gradeURL string
	qrURL    string
	log      *slog.Logger
}

func New(cfg Config, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	var h *http.Client
	if cfg.TokenURL != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		h = cc.Client(context.Background())
	} else {
		h = &http.Client{}
	}
	if cfg.Timeout > 0 {
		h.Timeout = cfg.Timeout
	}
	return &Client{http: h, gradeURL: cfg.GradeURL, qrURL: cfg.QRURL, log: log}
}

// Grade posts a normalised JPEG and the joined answer key to /corrigir.
func (c *Client) Grade(ctx context.Context, image []byte, answerKey string) (Result, error) {
	body, ctype, err := multipartBody(sheetFileName, image, map[string]string{"gabarito": answerKey})
	if err != nil {
		return Result{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.gradeURL, body)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", ctype)
	res, err := c.http.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		return Result{}, statusError("corrigir", res)
	}
	var out Result
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return Result{}, fmt.Errorf("corrigir: decode: %w", err)
	}
	return out, nil
}

// ReadQRCode asks the QR reader for the student name. When the multipart
// upload is refused (any failure other than 404) it retries once with the
// image as base64 JSON. An empty name with a nil error means no code was found.
func (c *Client) ReadQRCode(ctx context.Context, image []byte) (string, error) {
	body, ctype, err := multipartBody(qrFileName, image, nil)
	if err != nil {
		return "", err
	}
	res, err := c.post(ctx, c.qrURL, ctype, body)
	if err != nil {
		return "", err
	}
	if res.StatusCode/100 != 2 && res.StatusCode != http.StatusNotFound {
		_, _ = io.Copy(io.Discard, res.Body)
		res.Body.Close()
		c.log.Debug("qr multipart upload refused, retrying as base64", "status", res.StatusCode)
		payload, _ := json.Marshal(map[string]string{
			"imagem_base64": base64.StdEncoding.EncodeToString(image),
			"filename":      qrFileName,
		})
		res, err = c.post(ctx, c.qrURL, "application/json", bytes.NewReader(payload))
		if err != nil {
			return "", err
		}
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		return "", statusError("ler-qrcode", res)
	}
	var out struct {
		StudentName string `json:"nomeAluno"`
		Name        string `json:"nome"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("ler-qrcode: decode: %w", err)
	}
	if out.StudentName != "" {
		return out.StudentName, nil
	}
	return out.Name, nil
}

// ReadName makes the QR reader usable as a NameReader.
func (c *Client) ReadName(ctx context.Context, image []byte) (string, error) {
	return c.ReadQRCode(ctx, image)
}

func (c *Client) post(ctx context.Context, url, ctype string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", ctype)
	return c.http.Do(req)
}

func multipartBody(filename string, image []byte, fields map[string]string) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="imagem"; filename="%s"`, filename))
	h.Set("Content-Type", "image/jpeg")
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(image); err != nil {
		return nil, "", err
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

func statusError(op string, res *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
	return &StatusError{Op: op, Code: res.StatusCode, Body: string(bytes.TrimSpace(b))}
}
