package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gabicam/gabicam/internal/user"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// RegistrationHeader carries the teacher's registration number on every
// request from the mobile app.
const RegistrationHeader = "matricula"

type AuthService struct {
	hmac []byte
	ttl  time.Duration
}

func NewAuthService(secret string) *AuthService {
	return &AuthService{hmac: []byte(secret), ttl: 12 * time.Hour}
}

type Claims struct {
	Sub          string `json:"sub"`
	Registration string `json:"matricula"`
	Role         string `json:"role"`
	jwt.RegisteredClaims
}

func (a *AuthService) IssueJWT(u user.User) (string, error) {
	now := time.Now()
	claims := &Claims{
		Sub:          strconv.FormatInt(u.ID, 10),
		Registration: u.Registration,
		Role:         u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    "gabicam",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(a.hmac)
}

func (a *AuthService) Parse(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return a.hmac, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	c, _ := token.Claims.(*Claims)
	return c, nil
}

// UserLookup resolves the authenticated user; user.SQLStore implements it.
type UserLookup interface {
	ByRegistration(ctx context.Context, registration string) (user.User, error)
	ByID(ctx context.Context, id int64) (user.User, error)
}

// Middleware authenticates a request by bearer token or, as the mobile app
// does, by the matricula header alone. The resolved user, its id as subject
// and its role are stored in the request context.
func Middleware(a *AuthService, users UserLookup, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			var (
				u   user.User
				err error
			)
			if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
				claims, perr := a.Parse(strings.TrimPrefix(h, "Bearer "))
				if perr != nil {
					unauthorized(w, "Token inválido")
					return
				}
				id, _ := strconv.ParseInt(claims.Sub, 10, 64)
				u, err = users.ByID(ctx, id)
			} else {
				reg := strings.TrimSpace(r.Header.Get(RegistrationHeader))
				if reg == "" {
					log.Debug("registration header missing", "path", r.URL.Path)
					unauthorized(w, "Matrícula não fornecida")
					return
				}
				u, err = users.ByRegistration(ctx, reg)
			}
			switch {
			case errors.Is(err, user.ErrNotFound):
				unauthorized(w, "Usuário não encontrado")
				return
			case err != nil:
				log.Error("authenticate", "err", err)
				writeErr(w, http.StatusInternalServerError, "Erro interno do servidor")
				return
			}
			next.ServeHTTP(w, r.WithContext(attach(ctx, u)))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	writeErr(w, http.StatusUnauthorized, msg)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
