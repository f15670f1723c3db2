package admin

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/lovemage/3c-morty-sub000/internal/handler"
	"github.com/lovemage/3c-morty-sub000/internal/httputil"
	"github.com/lovemage/3c-morty-sub000/internal/model"
	"github.com/lovemage/3c-morty-sub000/internal/store"
)

// ListCallLogsHandler exposes the gateway audit log to operators.
type ListCallLogsHandler struct {
	store store.CallLogStore
}

func NewListCallLogsHandler(s store.CallLogStore) *ListCallLogsHandler {
	return &ListCallLogsHandler{store: s}
}

type listCallLogsResponse struct {
	Logs    []*model.APICallLog `json:"logs"`
	Total   int                 `json:"total"`
	Page    int                 `json:"page"`
	PerPage int                 `json:"per_page"`
}

func (h *ListCallLogsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	page, perPage, err := httputil.ParsePagination(r.URL.Query().Get("page"), r.URL.Query().Get("per_page"))
	if err != nil {
		handler.RespondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	filters := store.CallLogFilters{Page: page, PerPage: perPage}
	if raw := r.URL.Query().Get("api_key_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			handler.RespondError(w, http.StatusBadRequest, "invalid_request", "Invalid api_key_id filter")
			return
		}
		filters.APIKeyID = &id
	}
	if cs := r.URL.Query().Get("client_system"); cs != "" {
		filters.ClientSystem = &cs
	}
	if raw := r.URL.Query().Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			handler.RespondError(w, http.StatusBadRequest, "invalid_request", "from must be RFC3339")
			return
		}
		filters.From = &t
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			handler.RespondError(w, http.StatusBadRequest, "invalid_request", "to must be RFC3339")
			return
		}
		filters.To = &t
	}

	logs, total, err := h.store.ListCallLogs(r.Context(), filters)
	if err != nil {
		log.Error().Err(err).Msg("failed to list call logs")
		handler.RespondError(w, http.StatusInternalServerError, "internal_error", "Failed to list call logs")
		return
	}

	handler.RespondJSON(w, http.StatusOK, listCallLogsResponse{
		Logs:    logs,
		Total:   total,
		Page:    page,
		PerPage: perPage,
	})
}
