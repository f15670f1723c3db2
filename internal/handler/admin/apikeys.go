package admin

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/lovemage/3c-morty-sub000/internal/handler"
	"github.com/lovemage/3c-morty-sub000/internal/httputil"
	"github.com/lovemage/3c-morty-sub000/internal/model"
	"github.com/lovemage/3c-morty-sub000/internal/service"
	"github.com/lovemage/3c-morty-sub000/internal/store"
)

// --- List API Keys ---

type ListAPIKeysHandler struct {
	store store.APIKeyStore
}

func NewListAPIKeysHandler(s store.APIKeyStore) *ListAPIKeysHandler {
	return &ListAPIKeysHandler{store: s}
}

type listAPIKeysResponse struct {
	APIKeys []apiKeyListItem `json:"api_keys"`
	Total   int              `json:"total"`
	Page    int              `json:"page"`
	PerPage int              `json:"per_page"`
}

type apiKeyListItem struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	KeyPrefix       string    `json:"key_prefix"`
	ClientSystem    string    `json:"client_system"`
	Active          bool      `json:"active"`
	RateLimitMax    int       `json:"rate_limit_max"`
	RateLimitWindow int       `json:"rate_limit_window"`
	AllowedIPs      []string  `json:"allowed_ips,omitempty"`
	CreatedAt       string    `json:"created_at"`
	UpdatedAt       string    `json:"updated_at"`
}

func toAPIKeyListItem(key *model.APIKey) apiKeyListItem {
	return apiKeyListItem{
		ID:              key.ID,
		Name:            key.Name,
		KeyPrefix:       key.KeyPrefix,
		ClientSystem:    key.ClientSystem,
		Active:          key.Active,
		RateLimitMax:    key.RateLimitMax,
		RateLimitWindow: key.RateLimitWindow,
		AllowedIPs:      key.AllowedIPs,
		CreatedAt:       key.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       key.UpdatedAt.Format(time.RFC3339),
	}
}

func (h *ListAPIKeysHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	page, perPage, err := httputil.ParsePagination(r.URL.Query().Get("page"), r.URL.Query().Get("per_page"))
	if err != nil {
		handler.RespondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	keys, total, err := h.store.ListAPIKeys(r.Context(), page, perPage)
	if err != nil {
		log.Error().Err(err).Msg("failed to list API keys")
		handler.RespondError(w, http.StatusInternalServerError, "internal_error", "Failed to list API keys")
		return
	}

	items := make([]apiKeyListItem, 0, len(keys))
	for _, key := range keys {
		items = append(items, toAPIKeyListItem(key))
	}

	handler.RespondJSON(w, http.StatusOK, listAPIKeysResponse{
		APIKeys: items,
		Total:   total,
		Page:    page,
		PerPage: perPage,
	})
}

// --- Get API Key ---

type GetAPIKeyHandler struct {
	store store.APIKeyStore
}

func NewGetAPIKeyHandler(s store.APIKeyStore) *GetAPIKeyHandler {
	return &GetAPIKeyHandler{store: s}
}

func (h *GetAPIKeyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		handler.RespondError(w, http.StatusBadRequest, "invalid_request", "Invalid API key ID")
		return
	}

	key, err := h.store.GetAPIKeyByID(r.Context(), id)
	if err != nil {
		handler.RespondError(w, http.StatusNotFound, "not_found", "API key not found")
		return
	}

	handler.RespondJSON(w, http.StatusOK, toAPIKeyListItem(key))
}

// --- Create API Key ---

type CreateAPIKeyHandler struct {
	svc *service.APIKeyService
}

func NewCreateAPIKeyHandler(svc *service.APIKeyService) *CreateAPIKeyHandler {
	return &CreateAPIKeyHandler{svc: svc}
}

type createAPIKeyRequest struct {
	Name         string         `json:"name"`
	ClientSystem string         `json:"client_system"`
	AllowedIPs   []string       `json:"allowed_ips,omitempty"`
	RateLimit    *rateLimitJSON `json:"rate_limit,omitempty"`
}

type rateLimitJSON struct {
	MaxRequests   int `json:"max_requests"`
	WindowSeconds int `json:"window_seconds"`
}

type createAPIKeyResponse struct {
	apiKeyListItem
	APIKey string `json:"api_key"`
}

func (h *CreateAPIKeyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req createAPIKeyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		handler.RespondError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	input := service.CreateAPIKeyInput{
		Name:         req.Name,
		ClientSystem: req.ClientSystem,
		AllowedIPs:   req.AllowedIPs,
	}
	if req.RateLimit != nil {
		input.RateLimitMax = &req.RateLimit.MaxRequests
		input.RateLimitWindow = &req.RateLimit.WindowSeconds
	}

	result, err := h.svc.Create(r.Context(), input)
	if err != nil {
		service.RespondError(w, err)
		return
	}

	// The raw key appears in this response and nowhere else.
	handler.RespondJSON(w, http.StatusCreated, createAPIKeyResponse{
		apiKeyListItem: toAPIKeyListItem(result.APIKey),
		APIKey:         result.RawKey,
	})
}

// --- Update API Key ---

type UpdateAPIKeyHandler struct {
	svc *service.APIKeyService
}

func NewUpdateAPIKeyHandler(svc *service.APIKeyService) *UpdateAPIKeyHandler {
	return &UpdateAPIKeyHandler{svc: svc}
}

func (h *UpdateAPIKeyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		handler.RespondError(w, http.StatusBadRequest, "invalid_request", "Invalid API key ID")
		return
	}

	var updates store.APIKeyUpdates
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&updates); err != nil {
		handler.RespondError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	key, err := h.svc.Update(r.Context(), id, updates)
	if err != nil {
		service.RespondError(w, err)
		return
	}

	handler.RespondJSON(w, http.StatusOK, toAPIKeyListItem(key))
}

// --- Activate / Deactivate ---

type SetAPIKeyActiveHandler struct {
	svc    *service.APIKeyService
	active bool
}

func NewActivateAPIKeyHandler(svc *service.APIKeyService) *SetAPIKeyActiveHandler {
	return &SetAPIKeyActiveHandler{svc: svc, active: true}
}

func NewDeactivateAPIKeyHandler(svc *service.APIKeyService) *SetAPIKeyActiveHandler {
	return &SetAPIKeyActiveHandler{svc: svc, active: false}
}

func (h *SetAPIKeyActiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		handler.RespondError(w, http.StatusBadRequest, "invalid_request", "Invalid API key ID")
		return
	}

	if err := h.svc.SetActive(r.Context(), id, h.active); err != nil {
		service.RespondError(w, err)
		return
	}

	handler.RespondJSON(w, http.StatusOK, map[string]bool{"active": h.active})
}

// --- Delete API Key ---

type DeleteAPIKeyHandler struct {
	svc *service.APIKeyService
}

func NewDeleteAPIKeyHandler(svc *service.APIKeyService) *DeleteAPIKeyHandler {
	return &DeleteAPIKeyHandler{svc: svc}
}

func (h *DeleteAPIKeyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		handler.RespondError(w, http.StatusBadRequest, "invalid_request", "Invalid API key ID")
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		service.RespondError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- Regenerate API Key ---

type RegenerateAPIKeyHandler struct {
	svc *service.APIKeyService
}

func NewRegenerateAPIKeyHandler(svc *service.APIKeyService) *RegenerateAPIKeyHandler {
	return &RegenerateAPIKeyHandler{svc: svc}
}

type regenerateAPIKeyResponse struct {
	APIKey    string `json:"api_key"`
	KeyPrefix string `json:"key_prefix"`
}

func (h *RegenerateAPIKeyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		handler.RespondError(w, http.StatusBadRequest, "invalid_request", "Invalid API key ID")
		return
	}

	result, err := h.svc.Regenerate(r.Context(), id)
	if err != nil {
		service.RespondError(w, err)
		return
	}

	handler.RespondJSON(w, http.StatusOK, regenerateAPIKeyResponse{
		APIKey:    result.RawKey,
		KeyPrefix: result.KeyPrefix,
	})
}
