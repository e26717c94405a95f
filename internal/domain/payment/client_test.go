package payment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-checkout/internal/domain/apperr"
	"github.com/xenking/kart-checkout/internal/domain/auth"
	"github.com/xenking/kart-checkout/internal/domain/money"
	"github.com/xenking/kart-checkout/internal/domain/order"
)

var (
	fixedNow = time.Date(2025, 6, 15, 12, 30, 45, 0, time.UTC)
	owner    = auth.Identity{UserID: "u1", Role: auth.RoleCustomer}
)

func pendingOrder(currency money.Currency) order.Order {
	return order.Order{
		ID:       "11111111-1111-1111-1111-111111111111",
		Number:   "FF000001",
		UserID:   "u1",
		Currency: currency,
		Totals: order.Totals{
			Total: money.New(decimal.RequireFromString("25.5"), decimal.RequireFromString("104550")),
		},
		Status:        order.StatusPending,
		PaymentStatus: order.PaymentPending,
		ShippingAddress: order.Address{
			FullName: "Sok Dara",
			Phone:    "+85512345678",
			Email:    "dara@example.com",
			Street:   "St. 271",
		},
	}
}

func testConfig(endpoint string) Config {
	return Config{
		Endpoint:             endpoint,
		MerchantID:           "merchant-1",
		SecretKey:            "s3cret",
		APIKey:               "api-key",
		Timeout:              time.Second,
		AllowedRedirectHosts: []string{"shop.example.com", "localhost"},
		DefaultReturnURL:     "https://shop.example.com/checkout/return",
		DefaultCancelURL:     "https://shop.example.com/checkout/cancel",
	}
}

func newTestClient(t *testing.T, endpoint string, orders *memOrders) *Client {
	t.Helper()
	c, err := NewClient(testConfig(endpoint), orders, &http.Client{Timeout: time.Second}, nil)
	require.NoError(t, err)
	c.now = func() time.Time { return fixedNow }
	return c
}

func TestInitiatePayment(t *testing.T) {
	var got url.Values
	var authz string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		got = r.PostForm
		authz = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"transaction_id":"tx-1","payment_url":"https://pay.example.com/p/tx-1","status":"created"}`))
	}))
	defer srv.Close()

	orders := newMemOrders(pendingOrder(money.USD))
	c := newTestClient(t, srv.URL, orders)

	res, err := c.InitiatePayment(context.Background(), owner, InitiateRequest{OrderID: pendingOrder(money.USD).ID})
	require.NoError(t, err)
	assert.Equal(t, "tx-1", res.TransactionID)
	assert.Equal(t, "https://pay.example.com/p/tx-1", res.PaymentURL)

	assert.Equal(t, "Bearer api-key", authz)
	assert.Equal(t, "merchant-1", got.Get("merchant_id"))
	assert.Equal(t, "20250615123045", got.Get("req_time"))
	assert.Equal(t, "FF000001", got.Get("order_number"))
	assert.Equal(t, "2550", got.Get("amount"))
	assert.Equal(t, "USD", got.Get("currency"))
	assert.Equal(t, "https://shop.example.com/checkout/return", got.Get("return_url"))
	assert.Equal(t, "dara@example.com", got.Get("customer_email"))

	params := Params{}
	for k := range got {
		if k != "hash" {
			params[k] = got.Get(k)
		}
	}
	assert.Len(t, params, 11)
	assert.Equal(t, Sign(params, "s3cret"), got.Get("hash"))

	assert.Equal(t, "tx-1", orders.get(pendingOrder(money.USD).ID).Payment.TransactionID)
}

func TestInitiatePayment_RielAmount(t *testing.T) {
	var amount string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		amount = r.FormValue("amount")
		_, _ = w.Write([]byte(`{"transaction_id":12345,"payment_url":"https://pay.example.com/p/12345"}`))
	}))
	defer srv.Close()

	o := pendingOrder(money.KHR)
	c := newTestClient(t, srv.URL, newMemOrders(o))

	res, err := c.InitiatePayment(context.Background(), owner, InitiateRequest{OrderID: o.ID})
	require.NoError(t, err)
	assert.Equal(t, "104550", amount)
	assert.Equal(t, "12345", res.TransactionID)
}

func TestInitiatePayment_GatewayFailures(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `{"error":"boom"}`, wantStatus: 500},
		{name: "bad request", status: http.StatusBadRequest, body: `{"error":"bad hash"}`, wantStatus: 400},
		{name: "not json", status: http.StatusOK, body: `<html>oops</html>`, wantStatus: 200},
		{name: "missing transaction id", status: http.StatusOK, body: `{"payment_url":"https://pay.example.com"}`, wantStatus: 200},
		{name: "missing payment url", status: http.StatusOK, body: `{"transaction_id":"tx-1"}`, wantStatus: 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			o := pendingOrder(money.USD)
			orders := newMemOrders(o)
			c := newTestClient(t, srv.URL, orders)

			_, err := c.InitiatePayment(context.Background(), owner, InitiateRequest{OrderID: o.ID})

			var gwErr *apperr.UpstreamGatewayError
			require.True(t, errors.As(err, &gwErr), "got %v", err)
			assert.Equal(t, tt.wantStatus, gwErr.StatusCode)
			assert.Equal(t, int32(1), calls.Load(), "must not retry")
			assert.Empty(t, orders.get(o.ID).Payment.TransactionID)
		})
	}
}

func TestInitiatePayment_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	o := pendingOrder(money.USD)
	orders := newMemOrders(o)
	cfg := testConfig(srv.URL)
	cfg.Timeout = 50 * time.Millisecond
	c, err := NewClient(cfg, orders, &http.Client{}, nil)
	require.NoError(t, err)

	_, err = c.InitiatePayment(context.Background(), owner, InitiateRequest{OrderID: o.ID})

	var gwErr *apperr.UpstreamGatewayError
	require.True(t, errors.As(err, &gwErr), "got %v", err)
	assert.Zero(t, gwErr.StatusCode)
	assert.Equal(t, order.PaymentPending, orders.get(o.ID).PaymentStatus)
	assert.Empty(t, orders.get(o.ID).Payment.TransactionID)
}

func TestInitiatePayment_Preconditions(t *testing.T) {
	paid := pendingOrder(money.USD)
	paid.PaymentStatus = order.PaymentCompleted

	cancelled := pendingOrder(money.USD)
	cancelled.Status = order.StatusCancelled

	started := pendingOrder(money.USD)
	started.Payment.TransactionID = "tx-0"

	tests := []struct {
		name  string
		order order.Order
		actor auth.Identity
		req   InitiateRequest
		check func(t *testing.T, err error)
	}{
		{
			name:  "unknown order",
			order: pendingOrder(money.USD),
			actor: owner,
			req:   InitiateRequest{OrderID: "nope"},
			check: func(t *testing.T, err error) {
				var e *apperr.NotFoundError
				require.True(t, errors.As(err, &e))
			},
		},
		{
			name:  "other user",
			order: pendingOrder(money.USD),
			actor: auth.Identity{UserID: "u2", Role: auth.RoleCustomer},
			check: func(t *testing.T, err error) {
				var e *apperr.AuthorizationError
				require.True(t, errors.As(err, &e))
			},
		},
		{name: "already paid", order: paid, actor: owner, check: isConflict},
		{name: "cancelled", order: cancelled, actor: owner, check: isConflict},
		{name: "already initiated", order: started, actor: owner, check: isConflict},
		{
			name:  "redirect host not allowed",
			order: pendingOrder(money.USD),
			actor: owner,
			req:   InitiateRequest{ReturnURL: "https://evil.example.net/r"},
			check: isValidation("returnUrl"),
		},
		{
			name:  "plain http to public host",
			order: pendingOrder(money.USD),
			actor: owner,
			req:   InitiateRequest{CancelURL: "http://shop.example.com/c"},
			check: isValidation("cancelUrl"),
		},
		{
			name:  "relative url",
			order: pendingOrder(money.USD),
			actor: owner,
			req:   InitiateRequest{ReturnURL: "/checkout/return"},
			check: isValidation("returnUrl"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				calls.Add(1)
			}))
			defer srv.Close()

			c := newTestClient(t, srv.URL, newMemOrders(tt.order))
			req := tt.req
			if req.OrderID == "" {
				req.OrderID = tt.order.ID
			}
			_, err := c.InitiatePayment(context.Background(), tt.actor, req)
			tt.check(t, err)
			assert.Zero(t, calls.Load(), "gateway must not be called")
		})
	}
}

func TestInitiatePayment_LocalhostRedirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"transaction_id":"tx-9","payment_url":"https://pay.example.com/p/tx-9"}`))
	}))
	defer srv.Close()

	o := pendingOrder(money.USD)
	c := newTestClient(t, srv.URL, newMemOrders(o))
	_, err := c.InitiatePayment(context.Background(), owner, InitiateRequest{
		OrderID:   o.ID,
		ReturnURL: "http://localhost:3000/return",
	})
	require.NoError(t, err)
}

func TestConfigValidate(t *testing.T) {
	for _, tt := range []struct {
		name   string
		mutate func(c *Config)
		err    string
	}{
		{name: "Valid", mutate: func(*Config) {}},
		{name: "LoopbackHTTP", mutate: func(c *Config) { c.Endpoint = "http://127.0.0.1:8080/pay" }},
		{name: "LocalhostHTTP", mutate: func(c *Config) { c.Endpoint = "http://localhost/pay" }},
		{name: "Empty", mutate: func(c *Config) { *c = Config{} }, err: "endpoint is required"},
		{name: "NoSecret", mutate: func(c *Config) { c.SecretKey = "" }, err: "secret key"},
		{name: "NotURL", mutate: func(c *Config) { c.Endpoint = "not a url" }, err: "gateway endpoint"},
		{name: "PlainHTTP", mutate: func(c *Config) { c.Endpoint = "http://gateway.example.com/pay" }, err: "https"},
		{name: "OtherScheme", mutate: func(c *Config) { c.Endpoint = "ftp://gateway.example.com/pay" }, err: "https"},
		{name: "NoHost", mutate: func(c *Config) { c.Endpoint = "/pay" }, err: "absolute"},
		{name: "NoAllowedHosts", mutate: func(c *Config) { c.AllowedRedirectHosts = nil }, err: "allowed redirect hosts"},
		{
			name:   "DefaultReturnNotAllowed",
			mutate: func(c *Config) { c.DefaultReturnURL = "https://evil.example.net/return" },
			err:    "default return URL",
		},
		{
			name:   "DefaultCancelNotAllowed",
			mutate: func(c *Config) { c.DefaultCancelURL = "https://evil.example.net/cancel" },
			err:    "default cancel URL",
		},
		{
			name: "NoDefaults",
			mutate: func(c *Config) {
				c.DefaultReturnURL = ""
				c.DefaultCancelURL = ""
			},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig("https://gateway.example.com/pay")
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.err == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.err)
		})
	}
}

func isConflict(t *testing.T, err error) {
	t.Helper()
	var e *apperr.ConflictError
	require.True(t, errors.As(err, &e), "got %v", err)
}

func isValidation(field string) func(t *testing.T, err error) {
	return func(t *testing.T, err error) {
		t.Helper()
		var e *apperr.ValidationError
		require.True(t, errors.As(err, &e), "got %v", err)
		assert.Equal(t, field, e.Field)
	}
}
