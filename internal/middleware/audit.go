package middleware

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/lovemage/3c-morty-sub000/internal/model"
	"github.com/lovemage/3c-morty-sub000/internal/store"
)

type auditRecordKey struct{}

// AuditRecord accumulates per-request audit fields as the request moves
// through the middleware chain. Inner middlewares annotate it through the
// context; the outer AuditLog middleware writes it once the response is done.
type AuditRecord struct {
	APIKeyID     *uuid.UUID
	ClientSystem string
	ErrorCode    string
}

// AnnotateAPIKey records the authenticated key on the request's audit record.
func AnnotateAPIKey(ctx context.Context, apiKey *model.APIKey) {
	if rec, ok := ctx.Value(auditRecordKey{}).(*AuditRecord); ok {
		id := apiKey.ID
		rec.APIKeyID = &id
		rec.ClientSystem = apiKey.ClientSystem
	}
}

// AnnotateError records the rejection code on the request's audit record.
func AnnotateError(ctx context.Context, code string) {
	if rec, ok := ctx.Value(auditRecordKey{}).(*AuditRecord); ok {
		rec.ErrorCode = code
	}
}

// statusRecorder captures the status code written by the handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// AuditLog returns middleware that writes one audit row per gateway request,
// including requests rejected by the auth and rate-limit layers. It sits
// outermost on the gateway chain so rejections are still recorded.
func AuditLog(logs store.CallLogStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &AuditRecord{}
			ctx := context.WithValue(r.Context(), auditRecordKey{}, rec)

			sw := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(sw, r.WithContext(ctx))

			status := sw.status
			if status == 0 {
				status = http.StatusOK
			}

			entry := &model.APICallLog{
				APIKeyID:     rec.APIKeyID,
				ClientSystem: rec.ClientSystem,
				Endpoint:     r.URL.Path,
				Method:       r.Method,
				StatusCode:   status,
				DurationMS:   time.Since(start).Milliseconds(),
				ClientIP:     clientIP(r),
				ErrorCode:    rec.ErrorCode,
			}

			// The write must survive the client disconnecting mid-response.
			logCtx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 5*time.Second)
			defer cancel()
			if err := logs.CreateCallLog(logCtx, entry); err != nil {
				log.Error().Err(err).Str("endpoint", entry.Endpoint).Msg("failed to write audit log entry")
			}
		})
	}
}

func clientIP(r *http.Request) string {
	host := r.RemoteAddr
	if parsedHost, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		host = parsedHost
	}
	return host
}
