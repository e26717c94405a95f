package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-checkout/internal/domain/money"
	"github.com/xenking/kart-checkout/internal/domain/order"
)

const maxBodyBytes = 64 << 10

var errEmptyBody = &requestError{reason: "empty body"}

// decodeBody reads a JSON object into v, rejecting unknown fields.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return &requestError{reason: err.Error()}
	}
	return nil
}

type createOrderRequest struct {
	ShippingAddress order.Address `json:"shippingAddress"`
	PaymentMethod   string        `json:"paymentMethod"`
	Currency        string        `json:"currency"`
	PromoCode       string        `json:"promoCode"`
	Notes           string        `json:"notes"`
}

type initiatePaymentRequest struct {
	ReturnURL string `json:"returnUrl"`
	CancelURL string `json:"cancelUrl"`
}

type updateStatusRequest struct {
	Status         string `json:"status"`
	TrackingNumber string `json:"trackingNumber"`
	Notes          string `json:"notes"`
}

// amountDTO renders both currencies at their minor unit precision.
type amountDTO struct {
	USD string `json:"usd"`
	KHR string `json:"khr"`
}

func toAmount(m money.Money) amountDTO {
	return amountDTO{
		USD: m.USD.StringFixed(money.USD.Exponent()),
		KHR: m.KHR.StringFixed(money.KHR.Exponent()),
	}
}

type itemDTO struct {
	ProductID  string    `json:"productId"`
	Name       string    `json:"name"`
	Image      string    `json:"image,omitempty"`
	Quantity   int       `json:"quantity"`
	Size       string    `json:"size,omitempty"`
	Color      string    `json:"color,omitempty"`
	UnitPrice  amountDTO `json:"unitPrice"`
	TotalPrice amountDTO `json:"totalPrice"`
}

type totalsDTO struct {
	Subtotal amountDTO `json:"subtotal"`
	Shipping amountDTO `json:"shipping"`
	Tax      amountDTO `json:"tax"`
	Discount amountDTO `json:"discount"`
	Total    amountDTO `json:"total"`
}

type promoDTO struct {
	Code  string `json:"code"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

type orderDTO struct {
	ID                string        `json:"id"`
	OrderNumber       string        `json:"orderNumber"`
	UserID            string        `json:"userId"`
	Items             []itemDTO     `json:"items"`
	Currency          string        `json:"currency"`
	Totals            totalsDTO     `json:"totals"`
	Status            string        `json:"status"`
	PaymentMethod     string        `json:"paymentMethod"`
	PaymentStatus     string        `json:"paymentStatus"`
	TransactionID     string        `json:"transactionId,omitempty"`
	PaidAt            *time.Time    `json:"paidAt,omitempty"`
	ShippingAddress   order.Address `json:"shippingAddress"`
	EstimatedDelivery time.Time     `json:"estimatedDelivery"`
	ActualDelivery    *time.Time    `json:"actualDelivery,omitempty"`
	TrackingNumber    string        `json:"trackingNumber,omitempty"`
	Notes             string        `json:"notes,omitempty"`
	Promo             *promoDTO     `json:"promo,omitempty"`
	CreatedAt         time.Time     `json:"createdAt"`
	UpdatedAt         time.Time     `json:"updatedAt"`
}

func toOrderDTO(o *order.Order) orderDTO {
	items := make([]itemDTO, len(o.Items))
	for i, it := range o.Items {
		items[i] = itemDTO{
			ProductID:  it.ProductID,
			Name:       it.Snapshot.Name,
			Image:      it.Snapshot.Image,
			Quantity:   it.Quantity,
			Size:       it.Size,
			Color:      it.Color,
			UnitPrice:  toAmount(it.UnitPrice),
			TotalPrice: toAmount(it.TotalPrice),
		}
	}
	dto := orderDTO{
		ID:          o.ID,
		OrderNumber: o.Number,
		UserID:      o.UserID,
		Items:       items,
		Currency:    string(o.Currency),
		Totals: totalsDTO{
			Subtotal: toAmount(o.Totals.Subtotal),
			Shipping: toAmount(o.Totals.Shipping),
			Tax:      toAmount(o.Totals.Tax),
			Discount: toAmount(o.Totals.Discount),
			Total:    toAmount(o.Totals.Total),
		},
		Status:            string(o.Status),
		PaymentMethod:     string(o.PaymentMethod),
		PaymentStatus:     string(o.PaymentStatus),
		TransactionID:     o.Payment.TransactionID,
		PaidAt:            o.Payment.PaidAt,
		ShippingAddress:   o.ShippingAddress,
		EstimatedDelivery: o.EstimatedDelivery,
		ActualDelivery:    o.ActualDelivery,
		TrackingNumber:    o.TrackingNumber,
		Notes:             o.Notes,
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}
	if p := o.Promo; p != nil {
		dto.Promo = &promoDTO{Code: p.Code, Type: string(p.DiscountType), Value: p.Discount.String()}
	}
	return dto
}

type trackingDTO struct {
	OrderNumber       string     `json:"orderNumber"`
	Status            string     `json:"status"`
	PaymentStatus     string     `json:"paymentStatus"`
	EstimatedDelivery time.Time  `json:"estimatedDelivery"`
	ActualDelivery    *time.Time `json:"actualDelivery,omitempty"`
	TrackingNumber    string     `json:"trackingNumber,omitempty"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

type paymentDTO struct {
	PaymentURL    string `json:"paymentUrl"`
	TransactionID string `json:"transactionId"`
}

type webhookAck struct {
	Success   bool `json:"success"`
	Duplicate bool `json:"duplicate,omitempty"`
}
