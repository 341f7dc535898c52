package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gabicam/gabicam/internal/client"
	"github.com/gabicam/gabicam/internal/exam"
)

func creds(reg, token string) client.Credentials {
	return func(context.Context) (string, string, error) { return reg, token, nil }
}

func TestClient_SendsRegistrationHeader(t *testing.T) {
	var gotReg, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReg = r.Header.Get("matricula")
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/api/provas/criar-prova" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["nome"] != "P1" {
			t.Errorf("unexpected body: %v", body)
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": "Prova criada com sucesso",
			"prova":   map[string]any{"id": 5, "nome": "P1", "nota_por_questao": 1},
		})
	}))
	defer srv.Close()

	c := client.New(client.Config{BaseURL: srv.URL, Credentials: creds("2024", "tok")})
	e, err := c.CreateExam(context.Background(), "P1", nil, nil)
	if err != nil {
		t.Fatalf("CreateExam: %v", err)
	}
	if e.ID != 5 || e.Name != "P1" {
		t.Fatalf("unexpected exam: %+v", e)
	}
	if gotReg != "2024" || gotAuth != "Bearer tok" {
		t.Fatalf("headers: matricula=%q auth=%q", gotReg, gotAuth)
	}
}

func TestClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"Prova não encontrada"}`))
	}))
	defer srv.Close()

	c := client.New(client.Config{BaseURL: srv.URL})
	err := c.DeleteExam(context.Background(), 9)
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusNotFound || apiErr.Message != "Prova não encontrada" {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
}

func TestClient_LastSaveNull(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/provas/ultimo-salvamento/3" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"ultimoSalvamento":null}`))
	}))
	defer srv.Close()

	at, err := client.New(client.Config{BaseURL: srv.URL}).LastSave(context.Background(), 3)
	if err != nil || at != nil {
		t.Fatalf("LastSave = %v, %v", at, err)
	}
}

func TestClient_SaveResultsAndLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/provas/salvar-resultados":
			var body struct {
				ExamID  int64              `json:"provaId"`
				Results []exam.ResultInput `json:"resultados"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decode: %v", err)
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"message": "ok", "quantidadeSalvos": len(body.Results)})
		case "/api/login":
			_, _ = w.Write([]byte(`{"id":1,"matricula":"77","nome":"Ana","access_token":"jwt"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := client.New(client.Config{BaseURL: srv.URL})
	n, err := c.SaveResults(context.Background(), 4, []exam.ResultInput{{StudentName: "A", Correct: 1, Total: 2, Score: 1}})
	if err != nil || n != 1 {
		t.Fatalf("SaveResults = %d, %v", n, err)
	}
	lr, err := c.Login(context.Background(), "77", "x")
	if err != nil {
		t.Fatal(err)
	}
	if lr.ID != 1 || lr.Name != "Ana" || lr.AccessToken != "jwt" {
		t.Fatalf("unexpected login: %+v", lr)
	}
}
