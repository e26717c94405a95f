// Package payment talks to the hosted payment gateway: it initiates signed
// payment requests and applies the gateway's asynchronous callbacks.
package payment

import (
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

// DefaultTimeout bounds a gateway call when Config.Timeout is zero.
const DefaultTimeout = 15 * time.Second

// Config holds gateway credentials and redirect policy. It is fixed at
// construction time.
type Config struct {
	Endpoint             string
	MerchantID           string
	SecretKey            string
	APIKey               string
	Timeout              time.Duration
	AllowedRedirectHosts []string
	DefaultReturnURL     string
	DefaultCancelURL     string
}

// Validate checks that the gateway can be called with c.
func (c Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("gateway endpoint is required")
	}
	u, err := url.ParseRequestURI(c.Endpoint)
	if err != nil {
		return errors.Wrap(err, "gateway endpoint")
	}
	switch {
	case u.Host == "":
		return errors.New("gateway endpoint must be absolute")
	case u.Scheme == "https":
	case u.Scheme == "http" && isLoopback(u.Hostname()):
	default:
		// Requests carry the merchant secret's signature and customer data.
		return errors.Errorf("gateway endpoint must use https, got %q", u.Scheme)
	}
	if c.MerchantID == "" {
		return errors.New("gateway merchant id is required")
	}
	if c.SecretKey == "" {
		return errors.New("gateway secret key is required")
	}
	if len(c.AllowedRedirectHosts) == 0 {
		return errors.New("gateway allowed redirect hosts are required")
	}
	for name, raw := range map[string]string{
		"default return URL": c.DefaultReturnURL,
		"default cancel URL": c.DefaultCancelURL,
	} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil {
			return errors.Wrap(err, name)
		}
		if !c.allowsHost(u.Hostname()) {
			return errors.Errorf("%s host %q is not in allowed redirect hosts", name, u.Hostname())
		}
	}
	return nil
}

func (c Config) allowsHost(host string) bool {
	return slices.ContainsFunc(c.AllowedRedirectHosts, func(h string) bool {
		return strings.EqualFold(h, host)
	})
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}
