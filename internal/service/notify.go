package service

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lovemage/3c-morty-sub000/internal/model"
)

// Notifier pushes order state changes to the client system's callback URL.
// Delivery is best effort with a single attempt; clients that miss a push
// fall back to polling the status endpoint.
type Notifier struct {
	client  *http.Client
	timeout time.Duration
}

func NewNotifier(timeout time.Duration) *Notifier {
	return &Notifier{
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

type notifyPayload struct {
	Event           string     `json:"event"`
	ExternalOrderID string     `json:"external_order_id"`
	Status          string     `json:"status"`
	Amount          int64      `json:"amount"`
	PaidAt          *time.Time `json:"paid_at,omitempty"`
	Barcode         *string    `json:"barcode,omitempty"`
	BarcodeImageURL *string    `json:"barcode_image_url,omitempty"`
}

// NotifyPaid tells the client system its order was paid.
func (n *Notifier) NotifyPaid(order *model.ThirdPartyOrder) {
	n.post(order, notifyPayload{
		Event:           "order.paid",
		ExternalOrderID: order.ExternalOrderID,
		Status:          string(order.Status),
		Amount:          order.Amount,
		PaidAt:          order.PaidAt,
	})
}

// NotifyBarcode tells the client system a barcode was issued for its order.
func (n *Notifier) NotifyBarcode(order *model.ThirdPartyOrder) {
	payload := notifyPayload{
		Event:           "order.barcode_issued",
		ExternalOrderID: order.ExternalOrderID,
		Status:          string(order.Status),
		Amount:          order.Amount,
	}
	if order.Barcode != nil {
		payload.Barcode = &order.Barcode.FullCode
		if order.Barcode.ImageURL != "" {
			payload.BarcodeImageURL = &order.Barcode.ImageURL
		}
	}
	n.post(order, payload)
}

// post runs detached from the callback request; the processor's ack must not
// wait on the client system.
func (n *Notifier) post(order *model.ThirdPartyOrder, payload notifyPayload) {
	if order.CallbackURL == "" {
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("order_id", order.ID.String()).Msg("failed to marshal client notification")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, order.CallbackURL, bytes.NewReader(body))
	if err != nil {
		log.Error().Err(err).Str("order_id", order.ID.String()).Msg("failed to build client notification")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("order_id", order.ID.String()).Str("event", payload.Event).
			Msg("client notification failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		log.Warn().Int("status", resp.StatusCode).Str("order_id", order.ID.String()).Str("event", payload.Event).
			Msg("client notification rejected")
		return
	}
	log.Debug().Str("order_id", order.ID.String()).Str("event", payload.Event).Msg("client notification delivered")
}
