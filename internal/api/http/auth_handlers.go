package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	authmw "github.com/gabicam/gabicam/internal/auth/middleware"
	"github.com/gabicam/gabicam/internal/user"
)

// UserStore is what the account endpoints need; user.SQLStore implements it.
type UserStore interface {
	authmw.UserLookup
	Register(ctx context.Context, in user.NewUser) (user.User, error)
	Authenticate(ctx context.Context, registration, password string) (user.User, error)
	ChangePassword(ctx context.Context, id int64, oldPassword, newPassword string) error
	List(ctx context.Context, role string) ([]user.User, error)
	Upsert(ctx context.Context, in user.NewUser) (bool, error)
	SetRole(ctx context.Context, registration, role string) (user.User, error)
}

// POST /api/cadastro {matricula, nome, senha}
func RegisterHandler(users UserStore, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in user.NewUser
		if err := decodeJSON(r, &in); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "Dados inválidos", Details: err.Error()})
			return
		}
		in.Role = user.RoleTeacher // self-registration never grants admin
		in.Registration = strings.TrimSpace(in.Registration)
		in.Name = strings.TrimSpace(in.Name)
		if err := validate.Struct(in); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "Matrícula, nome e senha são obrigatórios", Details: validationDetails(err)})
			return
		}
		u, err := users.Register(r.Context(), in)
		switch {
		case errors.Is(err, user.ErrDuplicate):
			writeError(w, http.StatusBadRequest, "Matrícula já cadastrada")
			return
		case err != nil:
			internalError(w, log, "register", err, "matricula", in.Registration)
			return
		}
		log.Info("user registered", "user_id", u.ID, "matricula", u.Registration)
		writeJSON(w, http.StatusCreated, map[string]string{"message": "Usuário cadastrado com sucesso"})
	}
}

type loginReq struct {
	Registration string `json:"matricula" validate:"required"`
	Password     string `json:"senha" validate:"required"`
}

type loginResp struct {
	user.User
	AccessToken string `json:"access_token"`
}

// POST /api/login {matricula, senha} -> user without password + access_token
func LoginHandler(users UserStore, a *authmw.AuthService, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginReq
		if err := decodeJSON(r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "Dados inválidos", Details: err.Error()})
			return
		}
		req.Registration = strings.TrimSpace(req.Registration)
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "Matrícula e senha são obrigatórias")
			return
		}
		u, err := users.Authenticate(r.Context(), req.Registration, req.Password)
		switch {
		case errors.Is(err, user.ErrNotFound):
			writeError(w, http.StatusUnauthorized, "Usuário não encontrado")
			return
		case errors.Is(err, user.ErrInvalidPassword):
			writeError(w, http.StatusUnauthorized, "Senha inválida")
			return
		case err != nil:
			internalError(w, log, "login", err, "matricula", req.Registration)
			return
		}
		tok, err := a.IssueJWT(u)
		if err != nil {
			internalError(w, log, "issue token", err, "user_id", u.ID)
			return
		}
		writeJSON(w, http.StatusOK, loginResp{User: u, AccessToken: tok})
	}
}
