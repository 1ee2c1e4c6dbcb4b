package main

import (
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cloverBack/internal/auth"
)

func newTestApp(t *testing.T) *application {
	t.Helper()
	m, err := auth.NewManager("test-secret")
	if err != nil {
		t.Fatal(err)
	}
	return &application{
		tokens:   m,
		infoLog:  log.New(io.Discard, "", 0),
		errorLog: log.New(io.Discard, "", 0),
	}
}

func TestRequireOperator(t *testing.T) {
	app := newTestApp(t)
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Context().Value(operatorKey) != "7" {
			t.Errorf("operator not in context")
		}
		w.WriteHeader(http.StatusNoContent)
	})
	h := app.requireOperator(ok)

	operator, _ := app.tokens.NewJWT("7", auth.RoleOperator, time.Hour)
	viewer, _ := app.tokens.NewJWT("8", "viewer", time.Hour)

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"garbage", "Bearer abc", http.StatusUnauthorized},
		{"wrong role", "Bearer " + viewer, http.StatusForbidden},
		{"operator", "Bearer " + operator, http.StatusNoContent},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/jobs/recurring", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Errorf("%s: expected %d, got %d", tc.name, tc.want, rec.Code)
		}
	}
}

func TestRecoverPanic(t *testing.T) {
	app := newTestApp(t)
	h := app.recoverPanic(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}
