package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gabicam/gabicam/internal/exam"
	"github.com/gabicam/gabicam/internal/report"
)

type saveResultsReq struct {
	ExamID  flexID             `json:"provaId" validate:"required"`
	Results []exam.ResultInput `json:"resultados" validate:"required,dive"`
}

// POST /api/provas/salvar-resultados {provaId, resultados:[{nomeAluno, acertos, total, nota}]}
// Replaces whatever was saved before for the exam.
func SaveResultsHandler(svc ExamService, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u := currentUser(r)
		var req saveResultsReq
		if err := decodeJSON(r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "Dados inválidos", Details: err.Error()})
			return
		}
		if err := validate.Struct(req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "provaId e resultados são obrigatórios", Details: validationDetails(err)})
			return
		}
		n, err := svc.SaveResults(r.Context(), u.ID, int64(req.ExamID), req.Results)
		if err != nil {
			if !examError(w, err) {
				internalError(w, log, "save results", err, "exam_id", int64(req.ExamID), "user_id", u.ID)
			}
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"message": "Resultados salvos com sucesso", "quantidadeSalvos": n})
	}
}

// GET /api/provas/resultados
func ListResultsHandler(svc ExamService, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u := currentUser(r)
		rs, err := svc.ListResults(r.Context(), u.ID)
		if err != nil {
			internalError(w, log, "list results", err, "user_id", u.ID)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"resultados": rs})
	}
}

// GET /api/provas/ultimo-salvamento/{provaId} -> {ultimoSalvamento: time|null}
func LastSaveHandler(svc ExamService, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u := currentUser(r)
		id, ok := pathID(r, "provaId")
		if !ok {
			writeError(w, http.StatusNotFound, msgExamNotFound)
			return
		}
		t, err := svc.LastSave(r.Context(), u.ID, id)
		if err != nil {
			if !examError(w, err) {
				internalError(w, log, "last save", err, "exam_id", id, "user_id", u.ID)
			}
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ultimoSalvamento": t})
	}
}

// GET /api/provas/estatisticas/{provaId}
func StatsHandler(svc ExamService, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u := currentUser(r)
		id, ok := pathID(r, "provaId")
		if !ok {
			writeError(w, http.StatusNotFound, msgExamNotFound)
			return
		}
		st, err := svc.Stats(r.Context(), u.ID, id)
		if err != nil {
			if !examError(w, err) {
				internalError(w, log, "exam stats", err, "exam_id", id, "user_id", u.ID)
			}
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// GET /api/provas/resultados/{provaId}/export -> .xlsx
func ExportResultsHandler(svc ExamService, log *slog.Logger) http.HandlerFunc {
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
				internalError(w, log, "export results", err, "exam_id", id)
			}
			return
		}
		rs, err := svc.ExamResults(r.Context(), u.ID, id)
		if err != nil {
			internalError(w, log, "export results", err, "exam_id", id)
			return
		}
		b, err := report.ResultsXLSX(e.Name, rs)
		if err != nil {
			internalError(w, log, "render xlsx", err, "exam_id", id)
			return
		}
		w.Header().Set("Content-Type", xlsxContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.xlsx"`, exportName(e.Name, id)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(b)
	}
}

func exportName(name string, id int64) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case r == '"' || r == '/' || r == '\\' || r < 0x20:
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	if name == "" {
		return fmt.Sprintf("prova-%d", id)
	}
	return "resultados-" + name
}
