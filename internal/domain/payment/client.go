package payment

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/apperr"
	"github.com/xenking/kart-checkout/internal/domain/auth"
	"github.com/xenking/kart-checkout/internal/domain/order"
)

// ReqTimeLayout is the gateway timestamp format (UTC).
const ReqTimeLayout = "20060102150405"

const maxResponseBody = 1 << 20

// Initiation is the gateway's answer to a payment request.
type Initiation struct {
	PaymentURL    string
	TransactionID string
}

// InitiateRequest selects the order to pay and where to send the shopper
// afterwards. Empty URLs fall back to the configured defaults.
type InitiateRequest struct {
	OrderID   string
	ReturnURL string
	CancelURL string
}

// Client initiates payments against the gateway. It never retries: a failed
// call leaves the order without a transaction id so the shopper can try again.
type Client struct {
	cfg       Config
	http      *http.Client
	orders    order.Repository
	initiated metric.Int64Counter
	now       func() time.Time
}

// NewClient creates a Client. A nil httpClient gets an instrumented client
// with the configured timeout.
func NewClient(cfg Config, orders order.Repository, httpClient *http.Client, meter metric.Meter) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "payment config")
	}
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   cfg.timeout(),
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("")
	}
	initiated, err := meter.Int64Counter("kart.payments.initiated",
		metric.WithDescription("Payment initiation attempts by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "payments counter")
	}
	return &Client{
		cfg:       cfg,
		http:      httpClient,
		orders:    orders,
		initiated: initiated,
		now:       time.Now,
	}, nil
}

// InitiatePayment asks the gateway for a hosted payment page for the order
// and records the returned transaction id on it.
func (c *Client) InitiatePayment(ctx context.Context, actor auth.Identity, req InitiateRequest) (*Initiation, error) {
	o, err := c.orders.GetByID(ctx, req.OrderID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return nil, apperr.NotFound("order", req.OrderID)
		}
		return nil, errors.Wrap(err, "get order")
	}
	if !actor.CanAccess(o.UserID) {
		return nil, apperr.Forbidden("order belongs to another user")
	}
	switch {
	case o.Status == order.StatusCancelled:
		return nil, apperr.Conflict("order", o.Number, "order is cancelled")
	case o.PaymentStatus.Settled():
		return nil, apperr.Conflict("order", o.Number, "order is already paid")
	case o.Payment.TransactionID != "":
		return nil, apperr.Conflict("order", o.Number, "payment already initiated")
	}

	returnURL, err := c.redirectURL("returnUrl", req.ReturnURL, c.cfg.DefaultReturnURL)
	if err != nil {
		return nil, err
	}
	cancelURL, err := c.redirectURL("cancelUrl", req.CancelURL, c.cfg.DefaultCancelURL)
	if err != nil {
		return nil, err
	}

	params := c.params(o, returnURL, cancelURL)
	res, err := c.call(ctx, params)
	c.initiated.Add(ctx, 1, metric.WithAttributes(attribute.Bool("ok", err == nil)))
	if err != nil {
		zctx.From(ctx).Warn("Payment initiation failed",
			zap.String("order", o.Number),
			zap.Error(err),
		)
		return nil, err
	}

	if err := c.orders.SetTransactionID(ctx, o.ID, res.TransactionID); err != nil {
		if errors.Is(err, order.ErrTransactionIDSet) {
			return nil, apperr.Conflict("order", o.Number, "payment already initiated")
		}
		return nil, errors.Wrap(err, "store transaction id")
	}

	zctx.From(ctx).Info("Payment initiated",
		zap.String("order", o.Number),
		zap.String("transaction_id", res.TransactionID),
	)
	return res, nil
}

// params builds the signed field set for o.
func (c *Client) params(o *order.Order, returnURL, cancelURL string) Params {
	a := o.ShippingAddress
	return Params{
		"merchant_id":    c.cfg.MerchantID,
		"req_time":       c.now().UTC().Format(ReqTimeLayout),
		"order_number":   o.Number,
		"amount":         strconv.FormatInt(o.Currency.MinorUnits(o.Totals.Total.In(o.Currency)), 10),
		"currency":       string(o.Currency),
		"description":    fmt.Sprintf("Order %s", o.Number),
		"return_url":     returnURL,
		"cancel_url":     cancelURL,
		"customer_name":  a.FullName,
		"customer_email": a.Email,
		"customer_phone": a.Phone,
	}
}

func (c *Client) call(ctx context.Context, params Params) (*Initiation, error) {
	form := make(url.Values, len(params)+1)
	for k, v := range params {
		form.Set(k, v)
	}
	form.Set("hash", Sign(params, c.cfg.SecretKey))

	ctx, cancel := context.WithTimeout(ctx, c.cfg.timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.Wrap(err, "build gateway request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &apperr.UpstreamGatewayError{Reason: "request failed", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, &apperr.UpstreamGatewayError{StatusCode: resp.StatusCode, Reason: "read response", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &apperr.UpstreamGatewayError{StatusCode: resp.StatusCode, Reason: "unexpected status"}
	}

	res, err := decodeInitiation(body)
	if err != nil {
		return nil, &apperr.UpstreamGatewayError{StatusCode: resp.StatusCode, Reason: "malformed response", Err: err}
	}
	return res, nil
}

func decodeInitiation(data []byte) (*Initiation, error) {
	var res Initiation
	if err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "transaction_id":
			res.TransactionID, err = readString(d)
		case "payment_url":
			res.PaymentURL, err = readString(d)
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	if res.TransactionID == "" {
		return nil, errors.New("transaction_id missing")
	}
	if res.PaymentURL == "" {
		return nil, errors.New("payment_url missing")
	}
	return &res, nil
}

// readString reads a JSON string or number as text. Null reads as empty.
func readString(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return "", err
		}
		return n.String(), nil
	case jx.Null:
		return "", d.Null()
	default:
		return "", errors.Errorf("unexpected %v", d.Next())
	}
}

// redirectURL validates a shopper redirect target.
func (c *Client) redirectURL(field, raw, fallback string) (string, error) {
	if raw == "" {
		raw = fallback
	}
	if raw == "" {
		return "", apperr.Validation(field, "required")
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return "", apperr.Validation(field, "must be an absolute URL")
	}
	host := u.Hostname()
	switch u.Scheme {
	case "https":
	case "http":
		if !isLoopback(host) {
			return "", apperr.Validation(field, "must use https")
		}
	default:
		return "", apperr.Validation(field, "must use https")
	}
	if !c.cfg.allowsHost(host) {
		return "", apperr.Validation(field, "host "+host+" is not allowed")
	}
	return u.String(), nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
