package http

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gabicam/gabicam/internal/user"
)

// POST /api/usuarios/lote
// Accepts a JSON array body, or a multipart "file" holding JSON or CSV with a
// header row (matricula,nome,role,senha). Existing registrations are updated;
// a blank senha keeps the stored password and a blank role the stored role.
// Rows are applied in order and a failing row stops the batch.
func BulkUpsertUsersHandler(users UserStore, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rows []user.NewUser
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			f, _, err := r.FormFile("file")
			if err != nil {
				writeError(w, http.StatusBadRequest, "Arquivo é obrigatório")
				return
			}
			defer f.Close()
			rows, err = parseUserFile(f)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, errorBody{Error: "Arquivo inválido", Details: err.Error()})
				return
			}
		} else if err := decodeJSON(r, &rows); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "Esperado um array JSON ou arquivo multipart", Details: err.Error()})
			return
		}

		inserted, updated := 0, 0
		for i, row := range rows {
			row.Registration = strings.TrimSpace(row.Registration)
			row.Name = strings.TrimSpace(row.Name)
			row.Role = strings.ToLower(strings.TrimSpace(row.Role))
			if err := validate.StructExcept(row, "Password"); err != nil {
				writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("Linha %d inválida", i+1), Details: validationDetails(err)})
				return
			}
			ins, err := users.Upsert(r.Context(), row)
			if err != nil {
				line := fmt.Sprintf("Linha %d", i+1)
				switch {
				case errors.Is(err, user.ErrLastAdmin):
					writeJSON(w, http.StatusConflict, errorBody{Error: "Não é possível remover o último administrador", Details: line})
					return
				case errors.Is(err, user.ErrPasswordRequired):
					writeJSON(w, http.StatusBadRequest, errorBody{Error: "Senha é obrigatória para novos usuários", Details: line})
					return
				case errors.Is(err, user.ErrInvalidRole):
					writeJSON(w, http.StatusBadRequest, errorBody{Error: "Perfil inválido", Details: line})
					return
				case errors.Is(err, user.ErrDuplicate):
					writeJSON(w, http.StatusConflict, errorBody{Error: "Matrícula já cadastrada", Details: line})
					return
				}
				internalError(w, log, "bulk upsert", err, "row", i+1, "matricula", row.Registration)
				return
			}
			if ins {
				inserted++
			} else {
				updated++
			}
		}
		log.Info("users upserted", "inserted", inserted, "updated", updated)
		writeJSON(w, http.StatusOK, map[string]int{"inserted": inserted, "updated": updated})
	}
}

// GET /api/usuarios?role=teacher|admin
func ListUsersHandler(users UserStore, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := users.List(r.Context(), strings.TrimSpace(r.URL.Query().Get("role")))
		if err != nil {
			internalError(w, log, "list users", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"usuarios": list})
	}
}

// parseUserFile sniffs the first non-space byte: '[' means JSON, anything else CSV.
func parseUserFile(r io.Reader) ([]user.NewUser, error) {
	br := bufio.NewReader(r)
	for {
		b, err := br.Peek(1)
		if err != nil {
			return nil, errors.New("empty file")
		}
		if b[0] == ' ' || b[0] == '\n' || b[0] == '\r' || b[0] == '\t' {
			_, _ = br.ReadByte()
			continue
		}
		if b[0] == '[' {
			var rows []user.NewUser
			if err := json.NewDecoder(br).Decode(&rows); err != nil {
				return nil, err
			}
			return rows, nil
		}
		return parseUserCSV(br)
	}
}

func parseUserCSV(r io.Reader) ([]user.NewUser, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	head, err := cr.Read()
	if err != nil {
		return nil, err
	}
	idx := map[string]int{}
	for i, h := range head {
		idx[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	if _, ok := idx["matricula"]; !ok {
		return nil, errors.New("csv header must include matricula")
	}
	col := func(rec []string, name string) string {
		if i, ok := idx[name]; ok && i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}
	var out []user.NewUser
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, user.NewUser{
			Registration: col(rec, "matricula"),
			Name:         col(rec, "nome"),
			Role:         col(rec, "role"),
			Password:     col(rec, "senha"),
		})
	}
	return out, nil
}
