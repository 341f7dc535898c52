package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gabicam/gabicam/internal/rbac"
	"github.com/gabicam/gabicam/internal/user"
)

type fakeUsers struct {
	byReg map[string]user.User
	err   error
}

func (f fakeUsers) ByRegistration(_ context.Context, reg string) (user.User, error) {
	if f.err != nil {
		return user.User{}, f.err
	}
	u, ok := f.byReg[reg]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

func (f fakeUsers) ByID(_ context.Context, id int64) (user.User, error) {
	for _, u := range f.byReg {
		if u.ID == id {
			return u, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func newHandler(t *testing.T, users UserLookup, a *AuthService) (http.Handler, *user.User) {
	t.Helper()
	var seen user.User
	h := Middleware(a, users, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := UserFromContext(r.Context())
		if !ok {
			t.Error("user missing from context")
		}
		seen = u
		if rbac.RoleFromContext(r.Context()) == "" || SubjectFromContext(r.Context()) == "" {
			t.Error("role or subject missing from context")
		}
		w.WriteHeader(http.StatusOK)
	}))
	return h, &seen
}

func TestMiddleware_RegistrationHeader(t *testing.T) {
	users := fakeUsers{byReg: map[string]user.User{"2024": {ID: 1, Registration: "2024", Name: "Ana", Role: user.RoleTeacher}}}
	h, seen := newHandler(t, users, NewAuthService("s"))

	cases := []struct {
		name, reg string
		status    int
		msg       string
	}{
		{"missing", "", http.StatusUnauthorized, "Matrícula não fornecida"},
		{"unknown", "9999", http.StatusUnauthorized, "Usuário não encontrado"},
		{"ok", "2024", http.StatusOK, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/provas", nil)
			if tc.reg != "" {
				req.Header.Set(RegistrationHeader, tc.reg)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			if tc.msg != "" && !strings.Contains(rec.Body.String(), tc.msg) {
				t.Fatalf("body %q does not contain %q", rec.Body.String(), tc.msg)
			}
		})
	}
	if seen.ID != 1 {
		t.Fatalf("unexpected user in context: %+v", *seen)
	}
}

func TestMiddleware_BearerToken(t *testing.T) {
	a := NewAuthService("secret")
	admin := user.User{ID: 5, Registration: "1", Name: "Root", Role: user.RoleAdmin}
	users := fakeUsers{byReg: map[string]user.User{"1": admin}}
	var role string
	h := Middleware(a, users, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role = rbac.RoleFromContext(r.Context())
	}))

	tok, err := a.IssueJWT(admin)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || role != rbac.RoleAdmin {
		t.Fatalf("status=%d role=%q", rec.Code, role)
	}

	other, _ := NewAuthService("other").IssueJWT(admin)
	req.Header.Set("Authorization", "Bearer "+other)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("foreign token: status %d", rec.Code)
	}
}

func TestMiddleware_StoreError(t *testing.T) {
	h, _ := newHandler(t, fakeUsers{err: errors.New("db down")}, NewAuthService("s"))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RegistrationHeader, "1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestParse_RoundTrip(t *testing.T) {
	a := NewAuthService("k")
	tok, err := a.IssueJWT(user.User{ID: 42, Registration: "r42", Role: user.RoleTeacher})
	if err != nil {
		t.Fatal(err)
	}
	c, err := a.Parse(tok)
	if err != nil {
		t.Fatal(err)
	}
	if c.Sub != "42" || c.Registration != "r42" || c.Role != user.RoleTeacher || c.ID == "" {
		t.Fatalf("unexpected claims: %+v", c)
	}
	if _, err := a.Parse("garbage"); err == nil {
		t.Fatal("expected error for garbage token")
	}
}
