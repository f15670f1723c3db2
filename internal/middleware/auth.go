package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/netip"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/lovemage/3c-morty-sub000/internal/model"
	"github.com/lovemage/3c-morty-sub000/internal/store"
)

// APIKeyHeader carries the client system's key on gateway requests.
const APIKeyHeader = "X-API-Key"

type contextKey string

const apiKeyContextKey contextKey = "api_key"

// GetAPIKey extracts the authenticated API key from the request context.
func GetAPIKey(ctx context.Context) *model.APIKey {
	key, _ := ctx.Value(apiKeyContextKey).(*model.APIKey)
	return key
}

// APIKeyAuth returns middleware that authenticates gateway requests via the
// X-API-Key header. Keys are matched by SHA-256 hash; raw keys are never
// stored or logged. The attempt limiter slows brute-force guessing per
// client IP.
func APIKeyAuth(s store.APIKeyStore, limiter *AuthAttemptLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attemptKey := clientIPKey(r, "api_key")
			if limiter != nil && !limiter.allow(attemptKey) {
				AnnotateError(r.Context(), "rate_limited")
				respondError(w, http.StatusTooManyRequests, "rate_limited", "Too many authentication failures")
				return
			}

			rawKey := strings.TrimSpace(r.Header.Get(APIKeyHeader))
			if rawKey == "" {
				if limiter != nil {
					limiter.registerFailure(attemptKey)
				}
				AnnotateError(r.Context(), "missing_api_key")
				respondError(w, http.StatusUnauthorized, "missing_api_key", "Missing X-API-Key header")
				return
			}

			apiKey, err := s.GetAPIKeyByHash(r.Context(), SHA256Hex(rawKey))
			if err != nil {
				if limiter != nil {
					limiter.registerFailure(attemptKey)
				}
				AnnotateError(r.Context(), "invalid_api_key")
				respondError(w, http.StatusUnauthorized, "invalid_api_key", "Invalid API key")
				return
			}

			if !apiKey.Active {
				if limiter != nil {
					limiter.registerFailure(attemptKey)
				}
				AnnotateError(r.Context(), "key_disabled")
				respondError(w, http.StatusUnauthorized, "key_disabled", "API key is deactivated")
				return
			}

			if !ipAllowed(clientIP(r), apiKey.AllowedIPs) {
				// Valid credentials from a wrong network: annotate with the
				// key so the operator can see who is misconfigured.
				AnnotateAPIKey(r.Context(), apiKey)
				AnnotateError(r.Context(), "ip_not_allowed")
				log.Warn().Str("client_system", apiKey.ClientSystem).Str("client_ip", clientIP(r)).
					Msg("request from IP outside key allow-list")
				respondError(w, http.StatusForbidden, "ip_not_allowed", "Client IP is not on the key's allow-list")
				return
			}

			if limiter != nil {
				limiter.registerSuccess(attemptKey)
			}
			AnnotateAPIKey(r.Context(), apiKey)
			ctx := context.WithValue(r.Context(), apiKeyContextKey, apiKey)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ipAllowed checks the client IP against the key's allow-list. An empty list
// allows any source. Entries are single addresses or CIDR prefixes.
func ipAllowed(ip string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}

	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()

	for _, entry := range allowed {
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err == nil && prefix.Contains(addr) {
				return true
			}
			continue
		}
		if other, err := netip.ParseAddr(entry); err == nil && other.Unmap() == addr {
			return true
		}
	}
	return false
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(auth, "Bearer ")
}

// SHA256Hex returns the hex-encoded SHA-256 hash of the input.
func SHA256Hex(input string) string {
	h := sha256.Sum256([]byte(input))
	return hex.EncodeToString(h[:])
}
