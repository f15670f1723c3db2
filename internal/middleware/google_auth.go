package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
)

type adminEmailKey struct{}

// GetAdminEmail extracts the authenticated operator email from the request
// context.
func GetAdminEmail(ctx context.Context) string {
	email, _ := ctx.Value(adminEmailKey{}).(string)
	return email
}

// IDClaims holds the verified claims from a Google ID token.
type IDClaims struct {
	Email         string
	EmailVerified bool
	HD            string
}

// TokenVerifier verifies an ID token and returns its claims.
type TokenVerifier interface {
	VerifyClaims(ctx context.Context, rawToken string) (*IDClaims, error)
}

type googleTokenVerifier struct {
	verifier *oidc.IDTokenVerifier
}

func (v *googleTokenVerifier) VerifyClaims(ctx context.Context, rawToken string) (*IDClaims, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}

	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		HD            string `json:"hd"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("parse claims: %w", err)
	}

	return &IDClaims{
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		HD:            claims.HD,
	}, nil
}

// GoogleAuth authenticates operator requests on the admin surface with Google
// ID tokens, restricted to a workspace domain and an email allow-list.
type GoogleAuth struct {
	verifier      TokenVerifier
	allowedDomain string
	allowedEmails map[string]struct{}
}

// NewGoogleAuth builds a GoogleAuth that verifies tokens against Google's
// JWKS. Call it at startup; it fetches the OIDC discovery document.
func NewGoogleAuth(clientID, allowedDomain string, allowedEmails []string) (*GoogleAuth, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	provider, err := oidc.NewProvider(ctx, "https://accounts.google.com")
	if err != nil {
		return nil, fmt.Errorf("create Google OIDC provider: %w", err)
	}

	verifier := provider.Verifier(&oidc.Config{ClientID: clientID})
	return NewGoogleAuthWithVerifier(&googleTokenVerifier{verifier: verifier}, allowedDomain, allowedEmails), nil
}

// NewGoogleAuthWithVerifier builds a GoogleAuth with a custom TokenVerifier.
func NewGoogleAuthWithVerifier(verifier TokenVerifier, allowedDomain string, allowedEmails []string) *GoogleAuth {
	emailSet := make(map[string]struct{}, len(allowedEmails))
	for _, e := range allowedEmails {
		emailSet[e] = struct{}{}
	}

	return &GoogleAuth{
		verifier:      verifier,
		allowedDomain: allowedDomain,
		allowedEmails: emailSet,
	}
}

// Middleware authenticates admin requests via Google ID tokens.
func (g *GoogleAuth) Middleware(limiter *AuthAttemptLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attemptKey := clientIPKey(r, "google_admin")
			if limiter != nil && !limiter.allow(attemptKey) {
				respondError(w, http.StatusTooManyRequests, "rate_limited", "Too many authentication failures")
				return
			}

			fail := func(status int, code, message string) {
				if limiter != nil {
					limiter.registerFailure(attemptKey)
				}
				respondError(w, status, code, message)
			}

			token := extractBearerToken(r)
			if token == "" {
				fail(http.StatusUnauthorized, "unauthorized", "Missing authorization token")
				return
			}

			claims, err := g.verifier.VerifyClaims(r.Context(), token)
			if err != nil {
				fail(http.StatusUnauthorized, "unauthorized", "Invalid ID token")
				return
			}

			if !claims.EmailVerified {
				fail(http.StatusForbidden, "forbidden", "Email not verified")
				return
			}
			if claims.HD != g.allowedDomain {
				fail(http.StatusForbidden, "forbidden", "Domain not allowed")
				return
			}
			if _, ok := g.allowedEmails[claims.Email]; !ok {
				fail(http.StatusForbidden, "forbidden", "User not authorized")
				return
			}

			if limiter != nil {
				limiter.registerSuccess(attemptKey)
			}
			ctx := context.WithValue(r.Context(), adminEmailKey{}, claims.Email)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
