package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestValidateToken(t *testing.T) {
	svc := NewService(" s3cret ")
	if !svc.Enabled() {
		t.Fatalf("expected service to be enabled")
	}
	if err := svc.ValidateToken("s3cret"); err != nil {
		t.Fatalf("valid token rejected: %v", err)
	}
	if err := svc.ValidateToken("s3cre"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if err := svc.ValidateToken(""); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}

	disabled := NewService("")
	if disabled.Enabled() {
		t.Fatalf("empty token must disable the admin api")
	}
	if err := disabled.ValidateToken(""); err == nil {
		t.Fatalf("disabled service accepted an empty token")
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := NewService("s3cret")
	router := gin.New()
	router.GET("/admin", svc.Middleware(), func(c *gin.Context) {
		if !IsAdmin(c) {
			t.Errorf("admin flag not set")
		}
		c.Status(http.StatusNoContent)
	})

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic s3cret", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusForbidden},
		{"valid", "Bearer s3cret", http.StatusNoContent},
		{"case-insensitive scheme", "bearer s3cret", http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("want %d got %d", tc.status, rec.Code)
			}
		})
	}
}
