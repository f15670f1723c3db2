package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lovemage/3c-morty-sub000/internal/store"
)

// Sweeper expires orders whose store-payment window passed without a paid
// callback. A callback that races the sweep loses cleanly: the conditional
// update only touches orders still pending.
type Sweeper struct {
	store    store.OrderStore
	interval time.Duration
}

func NewSweeper(st store.OrderStore, interval time.Duration) *Sweeper {
	return &Sweeper{store: st, interval: interval}
}

// Run sweeps on a fixed interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", s.interval).Msg("expiration sweeper started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("expiration sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx, time.Now().UTC()); err != nil {
				log.Error().Err(err).Msg("expiration sweep failed")
			}
		}
	}
}

// RunOnce performs a single sweep and returns the number of orders expired.
func (s *Sweeper) RunOnce(ctx context.Context, now time.Time) (int64, error) {
	expired, err := s.store.ExpireStaleOrders(ctx, now)
	if err != nil {
		return 0, err
	}
	if expired > 0 {
		log.Info().Int64("expired", expired).Msg("expired stale orders")
	}
	return expired, nil
}
