package http

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gabicam/gabicam/internal/exam"
	"github.com/gabicam/gabicam/internal/grading"
	"github.com/gabicam/gabicam/internal/imagenorm"
	"github.com/gabicam/gabicam/internal/storage"
)

const maxUploadBytes = 25 << 20

// Grader is implemented by grading.Client.
type Grader interface {
	Grade(ctx context.Context, image []byte, answerKey string) (grading.Result, error)
}

type GradingDeps struct {
	Exams  ExamService
	Grader Grader
	Names  grading.NameReader
	Blobs  storage.BlobStore // optional; keeps a copy of every graded sheet
	// ExpectedQuestions overrides the answer key length when > 0.
	ExpectedQuestions int
	Log               *slog.Logger
}

type gradeResp struct {
	grading.Outcome
	Detected grading.Detected `json:"respostas_detectadas"`
	Image    string           `json:"imagem,omitempty"`
}

// readSheet pulls the "imagem" part out of a multipart request and normalises it.
func readSheet(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Envie a imagem em multipart/form-data", Details: err.Error()})
		return nil, false
	}
	f, _, err := r.FormFile("imagem")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Imagem é obrigatória")
		return nil, false
	}
	defer f.Close()
	img, err := imagenorm.NormalizeJPEG(io.LimitReader(f, maxUploadBytes), imagenorm.DefaultOptions)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Imagem inválida", Details: err.Error()})
		return nil, false
	}
	return img, true
}

// POST /api/correcao/corrigir  multipart: imagem, provaId
func GradeSheetHandler(d GradingDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u := currentUser(r)
		img, ok := readSheet(w, r)
		if !ok {
			return
		}
		examID, err := strconv.ParseInt(strings.TrimSpace(r.FormValue("provaId")), 10, 64)
		if err != nil {
			writeError(w, http.StatusNotFound, msgExamNotFound)
			return
		}
		e, err := d.Exams.Get(r.Context(), u.ID, examID)
		if errors.Is(err, exam.ErrNotFound) {
			writeError(w, http.StatusNotFound, msgExamNotFound)
			return
		} else if err != nil {
			internalError(w, d.Log, "grade: load exam", err, "exam_id", examID)
			return
		}
		key, err := grading.AnswerKeyString(e.AnswerKey)
		if err != nil {
			writeError(w, http.StatusBadRequest, "A prova não possui gabarito cadastrado")
			return
		}

		res, err := d.Grader.Grade(r.Context(), img, key)
		if err != nil {
			d.Log.Warn("grading service failed", "exam_id", examID, "err", err)
			writeJSON(w, http.StatusBadGateway, errorBody{Error: "Erro ao corrigir a prova", Details: err.Error()})
			return
		}
		expected := d.ExpectedQuestions
		if expected <= 0 {
			expected = len(e.AnswerKey)
		}
		if err := grading.CheckDetection(res, expected); err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, errorBody{
				Error:   "Não foi possível detectar todas as respostas. Tente fotografar novamente.",
				Details: err.Error(),
			})
			return
		}
		out, err := grading.Tally(res, e.PointsPerQuestion)
		if err != nil {
			writeJSON(w, http.StatusBadGateway, errorBody{Error: "Resposta inválida do serviço de correção", Details: err.Error()})
			return
		}

		resp := gradeResp{Outcome: out, Detected: res.Detected}
		if d.Blobs != nil {
			k, err := d.Blobs.Put(storage.CaptureKey(strconv.FormatInt(examID, 10)), bytes.NewReader(img))
			if err != nil {
				d.Log.Warn("keep graded sheet", "exam_id", examID, "err", err)
			} else {
				resp.Image = k
			}
		}
		d.Log.Info("sheet graded", "exam_id", examID, "user_id", u.ID, "acertos", out.Correct, "nota", out.Score)
		writeJSON(w, http.StatusOK, resp)
	}
}

// POST /api/correcao/ler-qrcode  multipart: imagem -> {nomeAluno}
func ReadNameHandler(d GradingDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		img, ok := readSheet(w, r)
		if !ok {
			return
		}
		if d.Names == nil {
			writeJSON(w, http.StatusOK, map[string]string{"nomeAluno": ""})
			return
		}
		name, err := d.Names.ReadName(r.Context(), img)
		if err != nil {
			d.Log.Warn("name read failed", "err", err)
			writeJSON(w, http.StatusBadGateway, errorBody{Error: "Erro ao ler o QR code", Details: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"nomeAluno": name})
	}
}
