// Package handler exposes the checkout API over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/kart-checkout/internal/domain/auth"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/domain/payment"
)

// Orders is the order service as seen by the HTTP layer.
type Orders interface {
	CreateOrder(ctx context.Context, req order.CreateOrderRequest) (*order.Order, error)
	GetOrder(ctx context.Context, actor auth.Identity, id string) (*order.Order, error)
	ListOrders(ctx context.Context, actor auth.Identity) ([]order.Order, error)
	TrackOrder(ctx context.Context, number string) (*order.Tracking, error)
	UpdateStatus(ctx context.Context, actor auth.Identity, req order.UpdateStatusRequest) (*order.Order, error)
}

// Payments starts hosted payments.
type Payments interface {
	InitiatePayment(ctx context.Context, actor auth.Identity, req payment.InitiateRequest) (*payment.Initiation, error)
}

// Webhooks applies gateway callbacks.
type Webhooks interface {
	HandleWebhook(ctx context.Context, ev payment.Event) (payment.Outcome, error)
}

// Handler serves the /api routes.
type Handler struct {
	orders   Orders
	payments Payments
	webhooks Webhooks
	authn    *Authenticator
}

// NewHandler wires the HTTP layer to the domain services.
func NewHandler(orders Orders, payments Payments, webhooks Webhooks, authn *Authenticator) *Handler {
	return &Handler{orders: orders, payments: payments, webhooks: webhooks, authn: authn}
}

// Mount registers the API on r under /api.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		// Gateway callbacks and tracking are public.
		r.Post("/payments/webhook", h.PaymentWebhook)
		r.Get("/orders/track/{number}", h.TrackOrder)

		r.Group(func(r chi.Router) {
			r.Use(h.authn.Middleware)

			r.Post("/orders", h.CreateOrder)
			r.Get("/orders", h.ListOrders)
			r.Get("/orders/{id}", h.GetOrder)
			r.Post("/orders/{id}/payment", h.InitiatePayment)
			r.Patch("/admin/orders/{id}/status", h.UpdateOrderStatus)
		})
	})
}

// Router returns a chi router with the API mounted and the given middlewares
// applied inside routing.
func (h *Handler) Router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middlewares...)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Code: http.StatusNotFound, Message: "not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Code: http.StatusMethodNotAllowed, Message: "method not allowed"})
	})
	h.Mount(r)
	return r
}

// identity returns the caller set by Authenticator.
func identity(r *http.Request) auth.Identity {
	id, _ := auth.FromContext(r.Context())
	return id
}
