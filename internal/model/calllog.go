package model

import (
	"time"

	"github.com/google/uuid"
)

// APICallLog is one append-only audit row per gateway-mediated request,
// including rejected ones.
type APICallLog struct {
	ID           uuid.UUID  `json:"id"`
	APIKeyID     *uuid.UUID `json:"api_key_id,omitempty"`
	ClientSystem string     `json:"client_system,omitempty"`
	Endpoint     string     `json:"endpoint"`
	Method       string     `json:"method"`
	StatusCode   int        `json:"status_code"`
	DurationMS   int64      `json:"duration_ms"`
	ClientIP     string     `json:"client_ip"`
	ErrorCode    string     `json:"error_code,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
