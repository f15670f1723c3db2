package model

import (
	"time"

	"github.com/google/uuid"
)

// APIKey authenticates one external client system on the gateway. Only the
// SHA-256 hash of the raw key is stored; the raw key is shown once at
// creation and regeneration.
type APIKey struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	KeyHash         string    `json:"-"`
	KeyPrefix       string    `json:"key_prefix"`
	ClientSystem    string    `json:"client_system"`
	Active          bool      `json:"active"`
	RateLimitMax    int       `json:"rate_limit_max"`
	RateLimitWindow int       `json:"rate_limit_window"`
	AllowedIPs      []string  `json:"allowed_ips,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
