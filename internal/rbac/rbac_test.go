package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestChecker_Has(t *testing.T) {
	c := NewChecker(nil)
	cases := []struct {
		role, perm string
		want       bool
	}{
		{RoleTeacher, "exam:create", true},
		{RoleTeacher, "results:export", true},
		{RoleTeacher, "users:list", false},
		{RoleAdmin, "users:list", true},
		{"", "exam:create", false},
		{"student", "exam:create", false},
	}
	for _, tc := range cases {
		if got := c.Has(tc.role, tc.perm); got != tc.want {
			t.Errorf("Has(%q,%q) = %v, want %v", tc.role, tc.perm, got, tc.want)
		}
	}
}

func TestChecker_Wildcard(t *testing.T) {
	c := NewChecker(map[string][]string{"auditor": {"results:*"}})
	if !c.Has("auditor", "results:export") || c.Has("auditor", "exam:create") {
		t.Fatal("prefix wildcard not applied")
	}
	if !c.Any("auditor", "exam:create", "results:view_own") {
		t.Fatal("Any should match second permission")
	}
}

func TestRequire(t *testing.T) {
	h := Require("users:list")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req.WithContext(WithRole(req.Context(), RoleTeacher)))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("teacher: status %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req.WithContext(WithRole(req.Context(), RoleAdmin)))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("admin: status %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("no role: status %d", rec.Code)
	}
}
