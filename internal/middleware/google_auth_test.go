package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeTokenVerifier struct {
	claims *IDClaims
	err    error
}

func (f *fakeTokenVerifier) VerifyClaims(_ context.Context, _ string) (*IDClaims, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.claims, nil
}

func adminHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email := GetAdminEmail(r.Context())
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"email":%q}`, email)
	})
}

func TestGoogleAuthValidTokenAllowedEmail(t *testing.T) {
	verifier := &fakeTokenVerifier{
		claims: &IDClaims{Email: "ops@company.com", EmailVerified: true, HD: "company.com"},
	}

	ga := NewGoogleAuthWithVerifier(verifier, "company.com", []string{"ops@company.com"})
	handler := ga.Middleware(nil)(adminHandler())

	req := httptest.NewRequest(http.MethodGet, "/admin/orders", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Email string `json:"email"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Email != "ops@company.com" {
		t.Fatalf("expected operator email in context, got %q", body.Email)
	}
}

func TestGoogleAuthRejections(t *testing.T) {
	for _, tc := range []struct {
		name       string
		verifier   *fakeTokenVerifier
		withToken  bool
		wantStatus int
	}{
		{
			name:       "missing token",
			verifier:   &fakeTokenVerifier{},
			withToken:  false,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "invalid token",
			verifier:   &fakeTokenVerifier{err: fmt.Errorf("invalid token signature")},
			withToken:  true,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "unverified email",
			verifier: &fakeTokenVerifier{
				claims: &IDClaims{Email: "ops@company.com", EmailVerified: false, HD: "company.com"},
			},
			withToken:  true,
			wantStatus: http.StatusForbidden,
		},
		{
			name: "wrong domain",
			verifier: &fakeTokenVerifier{
				claims: &IDClaims{Email: "ops@evil.com", EmailVerified: true, HD: "evil.com"},
			},
			withToken:  true,
			wantStatus: http.StatusForbidden,
		},
		{
			name: "email not allow-listed",
			verifier: &fakeTokenVerifier{
				claims: &IDClaims{Email: "intern@company.com", EmailVerified: true, HD: "company.com"},
			},
			withToken:  true,
			wantStatus: http.StatusForbidden,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ga := NewGoogleAuthWithVerifier(tc.verifier, "company.com", []string{"ops@company.com"})
			handler := ga.Middleware(nil)(adminHandler())

			req := httptest.NewRequest(http.MethodGet, "/admin/orders", nil)
			if tc.withToken {
				req.Header.Set("Authorization", "Bearer some-token")
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, rec.Code)
			}
		})
	}
}

func TestGoogleAuthFailureLockout(t *testing.T) {
	verifier := &fakeTokenVerifier{err: fmt.Errorf("invalid token")}
	ga := NewGoogleAuthWithVerifier(verifier, "company.com", []string{"ops@company.com"})
	limiter := NewAuthAttemptLimiter(2, time.Minute, time.Minute)
	handler := ga.Middleware(limiter)(adminHandler())

	var last int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/admin/orders", nil)
		req.Header.Set("Authorization", "Bearer bad-token")
		req.RemoteAddr = "203.0.113.7:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		last = rec.Code
	}

	if last != http.StatusTooManyRequests {
		t.Fatalf("expected lockout after repeated failures, got %d", last)
	}
}
