package http

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gabicam/gabicam/internal/exam"
	"github.com/gabicam/gabicam/internal/imagenorm"
	"github.com/gabicam/gabicam/internal/rbac"
	"github.com/gabicam/gabicam/internal/storage"
	"github.com/go-chi/chi/v5"
)

// MountAssets serves sheet images. Keys look like captures/<examID>/<uuid>.jpg
// and are only reachable by the owner of the exam.
func MountAssets(r chi.Router, bs storage.BlobStore, exams ExamService, log *slog.Logger) {
	// POST /assets/captures/{provaId}  multipart: file (or imagem)
	r.With(rbac.Require("assets:upload")).Post("/captures/{provaId}", func(w http.ResponseWriter, r *http.Request) {
		u := currentUser(r)
		id, ok := pathID(r, "provaId")
		if !ok {
			writeError(w, http.StatusNotFound, msgExamNotFound)
			return
		}
		if _, err := exams.Get(r.Context(), u.ID, id); err != nil {
			if !examError(w, err) {
				internalError(w, log, "asset upload: load exam", err, "exam_id", id)
			}
			return
		}
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			writeError(w, http.StatusBadRequest, "Arquivo é obrigatório")
			return
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			f, _, err = r.FormFile("imagem")
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, "Arquivo é obrigatório")
			return
		}
		defer f.Close()
		img, err := imagenorm.NormalizeJPEG(io.LimitReader(f, maxUploadBytes), imagenorm.DefaultOptions)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "Imagem inválida", Details: err.Error()})
			return
		}
		key, err := bs.Put(storage.CaptureKey(strconv.FormatInt(id, 10)), bytes.NewReader(img))
		if err != nil {
			internalError(w, log, "asset upload", err, "exam_id", id)
			return
		}
		url, _ := bs.SignedURL(key)
		writeJSON(w, http.StatusCreated, map[string]string{"key": key, "url": url})
	})

	// GET /assets/*
	r.With(rbac.Require("assets:view")).Get("/*", func(w http.ResponseWriter, r *http.Request) {
		u := currentUser(r)
		key, err := storage.CleanKey(chi.URLParam(r, "*"))
		if err != nil {
			writeError(w, http.StatusNotFound, "Arquivo não encontrado")
			return
		}
		examID, ok := keyExamID(key)
		if !ok {
			writeError(w, http.StatusNotFound, "Arquivo não encontrado")
			return
		}
		if _, err := exams.Get(r.Context(), u.ID, examID); err != nil {
			if errors.Is(err, exam.ErrNotFound) {
				writeError(w, http.StatusNotFound, "Arquivo não encontrado")
				return
			}
			internalError(w, log, "asset get: load exam", err, "key", key)
			return
		}
		rc, err := bs.Get(key)
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Arquivo não encontrado")
			return
		} else if err != nil {
			internalError(w, log, "asset get", err, "key", key)
			return
		}
		defer rc.Close()
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = io.Copy(w, rc)
	})
}

func keyExamID(key string) (int64, bool) {
	parts := strings.Split(key, "/")
	if len(parts) != 3 || parts[0] != "captures" {
		return 0, false
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	return id, err == nil && id > 0
}
