package handler

import (
	"context"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"

	"github.com/lovemage/3c-morty-sub000/internal/ecpay"
)

// CallbackProcessor applies verified processor callbacks to order state.
type CallbackProcessor interface {
	HandleReturn(ctx context.Context, values url.Values) error
	HandlePaymentInfo(ctx context.Context, values url.Values) error
}

// WebhookHandler receives the processor's form-encoded callbacks. The
// response body is the processor's plain-text ack contract: "1|OK" stops
// redelivery, "0|<reason>" requests it. The HTTP status is always 200; the
// processor only reads the body.
type WebhookHandler struct {
	svc CallbackProcessor
}

func NewWebhookHandler(svc CallbackProcessor) *WebhookHandler {
	return &WebhookHandler{svc: svc}
}

// Return handles the trade-result callback.
func (h *WebhookHandler) Return(w http.ResponseWriter, r *http.Request) {
	values, ok := h.parseForm(w, r)
	if !ok {
		return
	}
	h.ack(w, h.svc.HandleReturn(r.Context(), values))
}

// PaymentInfo handles the barcode-info callback.
func (h *WebhookHandler) PaymentInfo(w http.ResponseWriter, r *http.Request) {
	values, ok := h.parseForm(w, r)
	if !ok {
		return
	}
	h.ack(w, h.svc.HandlePaymentInfo(r.Context(), values))
}

func (h *WebhookHandler) parseForm(w http.ResponseWriter, r *http.Request) (url.Values, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := r.ParseForm(); err != nil {
		log.Warn().Err(err).Str("path", r.URL.Path).Msg("unparseable callback body")
		h.writeAck(w, ecpay.Ack(false, "malformed body"))
		return nil, false
	}
	return r.PostForm, true
}

func (h *WebhookHandler) ack(w http.ResponseWriter, err error) {
	if err != nil {
		h.writeAck(w, ecpay.Ack(false, err.Error()))
		return
	}
	h.writeAck(w, ecpay.Ack(true, ""))
}

func (h *WebhookHandler) writeAck(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(body))
}
