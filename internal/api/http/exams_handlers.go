package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gabicam/gabicam/internal/exam"
)

// ExamService is implemented by exam.Service.
type ExamService interface {
	Create(ctx context.Context, userID int64, name string, key []string, points *float64) (exam.Exam, error)
	UpdateAnswerKey(ctx context.Context, userID, examID int64, name string, key []string, points *float64) (exam.Exam, error)
	Delete(ctx context.Context, userID, examID int64) error
	Get(ctx context.Context, userID, examID int64) (exam.Exam, error)
	List(ctx context.Context, userID int64) ([]exam.Exam, error)
	SaveResults(ctx context.Context, userID, examID int64, rs []exam.ResultInput) (int, error)
	ListResults(ctx context.Context, userID int64) ([]exam.Result, error)
	ExamResults(ctx context.Context, userID, examID int64) ([]exam.Result, error)
	LastSave(ctx context.Context, userID, examID int64) (*time.Time, error)
	Stats(ctx context.Context, userID, examID int64) (exam.Stats, error)
}

type examReq struct {
	Name              string        `json:"nome"`
	AnswerKey         []string      `json:"gabarito"`
	PointsPerQuestion optionalFloat `json:"nota_por_questao"`
}

// examError maps validation and lookup errors; ok is false for unexpected ones.
func examError(w http.ResponseWriter, err error) bool {
	switch {
	case errors.Is(err, exam.ErrNotFound):
		writeError(w, http.StatusNotFound, msgExamNotFound)
	case errors.Is(err, exam.ErrNameRequired):
		writeError(w, http.StatusBadRequest, "Nome da prova é obrigatório")
	case errors.Is(err, exam.ErrKeyRequired):
		writeError(w, http.StatusBadRequest, "Gabarito é obrigatório e deve ser um array")
	case errors.Is(err, exam.ErrInvalidPoints):
		writeError(w, http.StatusBadRequest, "A nota por questão deve ser um número maior que zero")
	case errors.Is(err, exam.ErrInvalidAnswerKey):
		writeError(w, http.StatusBadRequest, "Gabarito inválido: use apenas letras de A a E")
	default:
		return false
	}
	return true
}

// POST /api/provas/criar-prova {nome, gabarito|null, nota_por_questao}
func CreateExamHandler(svc ExamService, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u := currentUser(r)
		var req examReq
		if err := decodeJSON(r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "Dados inválidos", Details: err.Error()})
			return
		}
		e, err := svc.Create(r.Context(), u.ID, req.Name, req.AnswerKey, req.PointsPerQuestion.Value)
		if err != nil {
			if !examError(w, err) {
				internalError(w, log, "create exam", err, "user_id", u.ID)
			}
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"message": "Prova criada com sucesso", "prova": e})
	}
}

// PUT /api/provas/atualizar-gabarito/{provaId} {nome, gabarito, nota_por_questao}
func UpdateAnswerKeyHandler(svc ExamService, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u := currentUser(r)
		id, ok := pathID(r, "provaId")
		if !ok {
			writeError(w, http.StatusNotFound, msgExamNotFound)
			return
		}
		var req examReq
		if err := decodeJSON(r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "Dados inválidos", Details: err.Error()})
			return
		}
		e, err := svc.UpdateAnswerKey(r.Context(), u.ID, id, req.Name, req.AnswerKey, req.PointsPerQuestion.Value)
		if err != nil {
			if !examError(w, err) {
				internalError(w, log, "update answer key", err, "exam_id", id, "user_id", u.ID)
			}
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "Gabarito atualizado com sucesso", "prova": e})
	}
}

// DELETE /api/provas/deletar-prova/{provaId}
func DeleteExamHandler(svc ExamService, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u := currentUser(r)
		id, ok := pathID(r, "provaId")
		if !ok {
			writeError(w, http.StatusNotFound, msgExamNotFound)
			return
		}
		if err := svc.Delete(r.Context(), u.ID, id); err != nil {
			if !examError(w, err) {
				internalError(w, log, "delete exam", err, "exam_id", id, "user_id", u.ID)
			}
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "Prova deletada com sucesso", "provaId": strconv.FormatInt(id, 10)})
	}
}

// GET /api/provas
func ListExamsHandler(svc ExamService, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u := currentUser(r)
		exams, err := svc.List(r.Context(), u.ID)
		if err != nil {
			internalError(w, log, "list exams", err, "user_id", u.ID)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"provas": exams})
	}
}

// GET /api/provas/{provaId}
func GetExamHandler(svc ExamService, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u := currentUser(r)
		id, ok := pathID(r, "provaId")
		if !ok {
			writeError(w, http.StatusNotFound, msgExamNotFound)
			return
		}
		e, err := svc.Get(r.Context(), u.ID, id)
		if err != nil {
			if !examError(w, err) {
				internalError(w, log, "get exam", err, "exam_id", id, "user_id", u.ID)
			}
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"prova": e})
	}
}
