package handler

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/payment"
)

// InitiatePayment asks the gateway for a payment page for the order.
func (h *Handler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	var req initiatePaymentRequest
	// The body is optional; configured redirect URLs apply without one.
	if err := decodeBody(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeError(w, r, err)
		return
	}

	res, err := h.payments.InitiatePayment(r.Context(), identity(r), payment.InitiateRequest{
		OrderID:   chi.URLParam(r, "id"),
		ReturnURL: req.ReturnURL,
		CancelURL: req.CancelURL,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, paymentDTO{PaymentURL: res.PaymentURL, TransactionID: res.TransactionID})
}

// PaymentWebhook receives gateway callbacks. Any 2xx tells the gateway to
// stop redelivering, so only applied, duplicate and stale events get 200.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, r, &requestError{reason: "read body"})
		return
	}
	ev, err := payment.ParseEvent(body)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ctx := zctx.Base(r.Context(), zctx.From(r.Context()).With(
		zap.String("order", ev.OrderNumber),
		zap.String("transaction_id", ev.TransactionID),
	))
	out, err := h.webhooks.HandleWebhook(ctx, ev)
	if err != nil {
		writeError(w, r.WithContext(ctx), err)
		return
	}
	writeJSON(w, http.StatusOK, webhookAck{Success: true, Duplicate: out.Duplicate})
}
