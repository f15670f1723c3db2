package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lovemage/3c-morty-sub000/internal/model"
	"github.com/lovemage/3c-morty-sub000/internal/store"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	store     store.OrderStore
	db        pinger
	version   string
	startTime time.Time
}

func NewHealthHandler(s store.OrderStore, db pinger, version string) *HealthHandler {
	return &HealthHandler{
		store:     s,
		db:        db,
		version:   version,
		startTime: time.Now(),
	}
}

type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Database      string `json:"database"`
	PendingOrders int64  `json:"pending_orders"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	dbStatus := "ok"
	httpStatus := http.StatusOK

	if err := h.db.Ping(r.Context()); err != nil {
		log.Error().Err(err).Msg("health check database ping failed")
		status = "degraded"
		dbStatus = "unreachable"
		httpStatus = http.StatusServiceUnavailable
	}

	var pending int64
	if dbStatus == "ok" {
		n, err := h.store.CountOrdersByStatus(r.Context(), model.OrderPending)
		if err != nil {
			log.Error().Err(err).Msg("failed to count pending orders")
		} else {
			pending = n
		}
	}

	RespondJSON(w, httpStatus, HealthResponse{
		Status:        status,
		Version:       h.version,
		Database:      dbStatus,
		PendingOrders: pending,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
	})
}
