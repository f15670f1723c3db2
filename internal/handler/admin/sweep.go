package admin

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lovemage/3c-morty-sub000/internal/handler"
	"github.com/lovemage/3c-morty-sub000/internal/middleware"
	"github.com/lovemage/3c-morty-sub000/internal/service"
)

func adminEmail(r *http.Request) string {
	return middleware.GetAdminEmail(r.Context())
}

// SweepHandler triggers an immediate expiration sweep, outside the regular
// interval.
type SweepHandler struct {
	sweeper *service.Sweeper
}

func NewSweepHandler(sweeper *service.Sweeper) *SweepHandler {
	return &SweepHandler{sweeper: sweeper}
}

type sweepResponse struct {
	ExpiredOrders int64 `json:"expired_orders"`
}

func (h *SweepHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	expired, err := h.sweeper.RunOnce(r.Context(), time.Now().UTC())
	if err != nil {
		log.Error().Err(err).Msg("manual expiration sweep failed")
		handler.RespondError(w, http.StatusInternalServerError, "internal_error", "Sweep failed")
		return
	}

	log.Info().Int64("expired", expired).Str("admin", adminEmail(r)).Msg("manual expiration sweep")
	handler.RespondJSON(w, http.StatusOK, sweepResponse{ExpiredOrders: expired})
}
