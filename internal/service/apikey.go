package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/lovemage/3c-morty-sub000/internal/middleware"
	"github.com/lovemage/3c-morty-sub000/internal/model"
	"github.com/lovemage/3c-morty-sub000/internal/store"
	"github.com/lovemage/3c-morty-sub000/internal/validation"
)

const (
	defaultRateLimitMax    = 100
	defaultRateLimitWindow = 60
	maxRateLimitMax        = 10000
	maxRateLimitWindow     = 86400
)

// APIKeyService handles API key business logic for the operator surface.
type APIKeyService struct {
	store       store.APIKeyStore
	environment string
}

func NewAPIKeyService(store store.APIKeyStore, environment string) *APIKeyService {
	return &APIKeyService{store: store, environment: environment}
}

// CreateAPIKeyInput contains the parameters for creating a new API key.
type CreateAPIKeyInput struct {
	Name            string
	ClientSystem    string
	AllowedIPs      []string
	RateLimitMax    *int
	RateLimitWindow *int
}

// CreateAPIKeyResult contains the output of a successful key creation.
// RawKey is shown exactly once.
type CreateAPIKeyResult struct {
	APIKey *model.APIKey
	RawKey string
}

// Create validates input, generates a new API key, and persists it.
func (s *APIKeyService) Create(ctx context.Context, input CreateAPIKeyInput) (*CreateAPIKeyResult, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, NewBadRequest("invalid_request", "name is required")
	}
	if err := validation.ClientSystem(input.ClientSystem); err != nil {
		return nil, NewBadRequest("invalid_request", err.Error())
	}
	if err := validation.AllowedIPs(input.AllowedIPs); err != nil {
		return nil, NewBadRequest("invalid_request", err.Error())
	}

	rateLimitMax, rateLimitWindow, err := normalizeRateLimit(input.RateLimitMax, input.RateLimitWindow)
	if err != nil {
		return nil, NewBadRequest("invalid_request", err.Error())
	}

	rawKey, err := generateAPIKey(s.environment)
	if err != nil {
		log.Error().Err(err).Msg("failed to generate API key")
		return nil, NewInternal("internal_error", "Failed to create API key")
	}

	apiKey := &model.APIKey{
		Name:            input.Name,
		KeyHash:         middleware.SHA256Hex(rawKey),
		KeyPrefix:       rawKey[:16] + "...",
		ClientSystem:    input.ClientSystem,
		Active:          true,
		RateLimitMax:    rateLimitMax,
		RateLimitWindow: rateLimitWindow,
		AllowedIPs:      input.AllowedIPs,
	}

	if err := s.store.CreateAPIKey(ctx, apiKey); err != nil {
		log.Error().Err(err).Msg("failed to create API key")
		return nil, NewInternal("internal_error", "Failed to create API key")
	}

	return &CreateAPIKeyResult{APIKey: apiKey, RawKey: rawKey}, nil
}

// Update validates and applies partial updates to an existing API key.
func (s *APIKeyService) Update(ctx context.Context, id uuid.UUID, updates store.APIKeyUpdates) (*model.APIKey, error) {
	if updates.Name != nil && strings.TrimSpace(*updates.Name) == "" {
		return nil, NewBadRequest("invalid_request", "name cannot be empty")
	}
	if updates.AllowedIPs != nil {
		if err := validation.AllowedIPs(updates.AllowedIPs); err != nil {
			return nil, NewBadRequest("invalid_request", err.Error())
		}
	}
	if updates.RateLimitMax != nil {
		if *updates.RateLimitMax < 1 || *updates.RateLimitMax > maxRateLimitMax {
			return nil, NewBadRequest("invalid_request", "rate_limit_max must be between 1 and 10000")
		}
	}
	if updates.RateLimitWindow != nil {
		if *updates.RateLimitWindow < 1 || *updates.RateLimitWindow > maxRateLimitWindow {
			return nil, NewBadRequest("invalid_request", "rate_limit_window must be between 1 and 86400")
		}
	}

	if err := s.store.UpdateAPIKey(ctx, id, updates); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, NewNotFound("not_found", "API key not found")
		}
		log.Error().Err(err).Str("id", id.String()).Msg("failed to update API key")
		return nil, NewInternal("internal_error", "Failed to update API key")
	}

	apiKey, err := s.store.GetAPIKeyByID(ctx, id)
	if err != nil {
		return nil, NewNotFound("not_found", "API key not found")
	}

	return apiKey, nil
}

// SetActive soft-enables or soft-disables a key.
func (s *APIKeyService) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	if err := s.store.SetAPIKeyActive(ctx, id, active); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return NewNotFound("not_found", "API key not found")
		}
		log.Error().Err(err).Str("id", id.String()).Msg("failed to set API key active flag")
		return NewInternal("internal_error", "Failed to update API key")
	}
	return nil
}

// Delete permanently removes a key with no dependent orders.
func (s *APIKeyService) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.store.DeleteAPIKey(ctx, id)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return NewNotFound("not_found", "API key not found")
	case errors.Is(err, store.ErrHasOrders):
		return NewConflict("has_orders", "API key has dependent orders; deactivate it instead")
	default:
		log.Error().Err(err).Str("id", id.String()).Msg("failed to delete API key")
		return NewInternal("internal_error", "Failed to delete API key")
	}
}

// RegenerateResult contains the output of a successful key regeneration.
type RegenerateResult struct {
	RawKey    string
	KeyPrefix string
}

// Regenerate replaces the secret of an existing key.
func (s *APIKeyService) Regenerate(ctx context.Context, id uuid.UUID) (*RegenerateResult, error) {
	apiKey, err := s.store.GetAPIKeyByID(ctx, id)
	if err != nil {
		return nil, NewNotFound("not_found", "API key not found")
	}
	if !apiKey.Active {
		return nil, NewBadRequest("invalid_status", "Cannot regenerate an inactive API key")
	}

	rawKey, err := generateAPIKey(s.environment)
	if err != nil {
		log.Error().Err(err).Msg("failed to generate API key")
		return nil, NewInternal("internal_error", "Failed to regenerate API key")
	}
	keyPrefix := rawKey[:16] + "..."

	if err := s.store.RegenerateAPIKey(ctx, id, middleware.SHA256Hex(rawKey), keyPrefix); err != nil {
		log.Error().Err(err).Str("id", id.String()).Msg("failed to regenerate API key")
		return nil, NewInternal("internal_error", "Failed to regenerate API key")
	}

	return &RegenerateResult{RawKey: rawKey, KeyPrefix: keyPrefix}, nil
}

func generateAPIKey(environment string) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("crypto/rand failed: %w", err)
	}
	prefix := "sk_live_"
	if environment != "production" {
		prefix = "sk_test_"
	}
	return prefix + hex.EncodeToString(b), nil
}

func normalizeRateLimit(maxRequests, windowSeconds *int) (int, int, error) {
	rlMax := defaultRateLimitMax
	rlWindow := defaultRateLimitWindow

	if maxRequests != nil {
		if *maxRequests < 1 || *maxRequests > maxRateLimitMax {
			return 0, 0, fmt.Errorf("rate_limit.max_requests must be between 1 and 10000")
		}
		rlMax = *maxRequests
	}

	if windowSeconds != nil {
		if *windowSeconds < 1 || *windowSeconds > maxRateLimitWindow {
			return 0, 0, fmt.Errorf("rate_limit.window_seconds must be between 1 and 86400")
		}
		rlWindow = *windowSeconds
	}

	return rlMax, rlWindow, nil
}
