package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gabicam/gabicam/internal/user"
)

type changePasswordReq struct {
	Current string `json:"senha_atual" validate:"required"`
	New     string `json:"nova_senha" validate:"required,min=4"`
}

// POST /api/usuarios/alterar-senha {senha_atual, nova_senha}
func ChangePasswordHandler(users UserStore, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u := currentUser(r)
		var req changePasswordReq
		if err := decodeJSON(r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "Dados inválidos", Details: err.Error()})
			return
		}
		if err := validate.Struct(req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "Senha atual e nova senha (mínimo 4 caracteres) são obrigatórias", Details: validationDetails(err)})
			return
		}
		err := users.ChangePassword(r.Context(), u.ID, req.Current, req.New)
		switch {
		case errors.Is(err, user.ErrInvalidPassword):
			writeError(w, http.StatusForbidden, "Senha atual incorreta")
			return
		case errors.Is(err, user.ErrNotFound):
			writeError(w, http.StatusUnauthorized, "Usuário não encontrado")
			return
		case err != nil:
			internalError(w, log, "change password", err, "user_id", u.ID)
			return
		}
		log.Info("password changed", "user_id", u.ID)
		writeJSON(w, http.StatusOK, map[string]string{"message": "Senha alterada com sucesso"})
	}
}
