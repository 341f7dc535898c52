package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gabicam/gabicam/internal/user"
	"github.com/go-chi/chi/v5"
)

type updateUserRoleReq struct {
	Role string `json:"role" validate:"required"`
}

// PUT /api/usuarios/{matricula}/role {role: teacher|admin}
func AdminUpdateUserRoleHandler(users UserStore, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target := chi.URLParam(r, "matricula")
		var req updateUserRoleReq
		if err := decodeJSON(r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "Dados inválidos", Details: err.Error()})
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "Perfil é obrigatório")
			return
		}
		u, err := users.SetRole(r.Context(), target, req.Role)
		switch {
		case errors.Is(err, user.ErrNotFound):
			writeError(w, http.StatusNotFound, "Usuário não encontrado")
			return
		case errors.Is(err, user.ErrInvalidRole):
			writeError(w, http.StatusBadRequest, "Perfil inválido")
			return
		case errors.Is(err, user.ErrLastAdmin):
			writeError(w, http.StatusConflict, "Não é possível remover o último administrador")
			return
		case err != nil:
			internalError(w, log, "update user role", err, "matricula", target)
			return
		}
		log.Info("user role changed", "matricula", u.Registration, "role", u.Role, "by", currentUser(r).ID)
		writeJSON(w, http.StatusOK, u)
	}
}
