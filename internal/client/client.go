package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gabicam/gabicam/internal/exam"
	"github.com/gabicam/gabicam/internal/user"
)

// Credentials supplies the registration number and, when known, the access
// token of the signed-in user. Either may be empty.
type Credentials func(ctx context.Context) (registration, token string, err error)

// APIError is a non-2xx reply of the GabiCam API.
type APIError struct {
	Status  int    `json:"-"`
	Message string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

type Client struct {
	base  string
	http  *http.Client
	creds Credentials
}

type Config struct {
	BaseURL     string
	Timeout     time.Duration
	Credentials Credentials
}

func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		base:  strings.TrimRight(cfg.BaseURL, "/"),
		http:  &http.Client{Timeout: timeout},
		creds: cfg.Credentials,
	}
}

// LoginResponse is the user record (no password hash) plus an access token.
type LoginResponse struct {
	user.User
	AccessToken string `json:"access_token"`
}

func (c *Client) Login(ctx context.Context, registration, password string) (LoginResponse, error) {
	var out LoginResponse
	err := c.do(ctx, http.MethodPost, "/api/login", map[string]string{"matricula": registration, "senha": password}, &out)
	return out, err
}

func (c *Client) Register(ctx context.Context, registration, name, password string) error {
	return c.do(ctx, http.MethodPost, "/api/cadastro",
		map[string]string{"matricula": registration, "nome": name, "senha": password}, nil)
}

func (c *Client) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	return c.do(ctx, http.MethodPost, "/api/usuarios/alterar-senha",
		map[string]string{"senha_atual": oldPassword, "nova_senha": newPassword}, nil)
}

type examBody struct {
	Name              string   `json:"nome"`
	AnswerKey         []string `json:"gabarito"`
	PointsPerQuestion *float64 `json:"nota_por_questao"`
}

type examReply struct {
	Message string    `json:"message"`
	Exam    exam.Exam `json:"prova"`
}

func (c *Client) CreateExam(ctx context.Context, name string, key []string, points *float64) (exam.Exam, error) {
	var out examReply
	err := c.do(ctx, http.MethodPost, "/api/provas/criar-prova", examBody{name, key, points}, &out)
	return out.Exam, err
}

func (c *Client) UpdateAnswerKey(ctx context.Context, examID int64, name string, key []string, points *float64) (exam.Exam, error) {
	var out examReply
	err := c.do(ctx, http.MethodPut, "/api/provas/atualizar-gabarito/"+itoa(examID), examBody{name, key, points}, &out)
	return out.Exam, err
}

func (c *Client) DeleteExam(ctx context.Context, examID int64) error {
	return c.do(ctx, http.MethodDelete, "/api/provas/deletar-prova/"+itoa(examID), nil, nil)
}

func (c *Client) ListExams(ctx context.Context) ([]exam.Exam, error) {
	var out struct {
		Exams []exam.Exam `json:"provas"`
	}
	err := c.do(ctx, http.MethodGet, "/api/provas", nil, &out)
	return out.Exams, err
}

func (c *Client) GetExam(ctx context.Context, examID int64) (exam.Exam, error) {
	var out struct {
		Exam exam.Exam `json:"prova"`
	}
	err := c.do(ctx, http.MethodGet, "/api/provas/"+itoa(examID), nil, &out)
	return out.Exam, err
}

func (c *Client) SaveResults(ctx context.Context, examID int64, rs []exam.ResultInput) (int, error) {
	var out struct {
		Saved int `json:"quantidadeSalvos"`
	}
	body := map[string]any{"provaId": examID, "resultados": rs}
	err := c.do(ctx, http.MethodPost, "/api/provas/salvar-resultados", body, &out)
	return out.Saved, err
}

func (c *Client) Results(ctx context.Context) ([]exam.Result, error) {
	var out struct {
		Results []exam.Result `json:"resultados"`
	}
	err := c.do(ctx, http.MethodGet, "/api/provas/resultados", nil, &out)
	return out.Results, err
}

// LastSave returns nil when the exam has no saved results.
func (c *Client) LastSave(ctx context.Context, examID int64) (*time.Time, error) {
	var out struct {
		At *time.Time `json:"ultimoSalvamento"`
	}
	err := c.do(ctx, http.MethodGet, "/api/provas/ultimo-salvamento/"+itoa(examID), nil, &out)
	return out.At, err
}

func (c *Client) Stats(ctx context.Context, examID int64) (exam.Stats, error) {
	var out exam.Stats
	err := c.do(ctx, http.MethodGet, "/api/provas/estatisticas/"+itoa(examID), nil, &out)
	return out, err
}

// ExportResults downloads the results spreadsheet of one exam.
func (c *Client) ExportResults(ctx context.Context, examID int64) ([]byte, error) {
	res, err := c.send(ctx, http.MethodGet, "/api/provas/resultados/"+itoa(examID)+"/export", nil)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	return io.ReadAll(res.Body)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	res, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode: %w", method, path, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	u, err := url.JoinPath(c.base, path)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.creds != nil {
		reg, token, err := c.creds(ctx)
		if err != nil {
			return nil, err
		}
		if reg != "" {
			req.Header.Set("matricula", reg)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if res.StatusCode/100 != 2 {
		defer res.Body.Close()
		apiErr := &APIError{Status: res.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(res.Body, 1<<16))
		if json.Unmarshal(raw, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return nil, apiErr
	}
	return res, nil
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }
