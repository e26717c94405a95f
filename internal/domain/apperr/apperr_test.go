package apperr

import (
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorsSurviveWrapping(t *testing.T) {
	err := errors.Wrap(Conflict("product", "p1", "insufficient stock"), "create order")

	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "p1", conflict.ID)
	assert.Equal(t, "create order: product p1 conflict: insufficient stock", err.Error())
}

func TestUpstreamGatewayError(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := &UpstreamGatewayError{StatusCode: 502, Reason: "bad status", Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "payment gateway: bad status (status 502): dial tcp: timeout", err.Error())

	noResp := &UpstreamGatewayError{Reason: "request failed"}
	assert.Equal(t, "payment gateway: request failed", noResp.Error())
}

func TestMessages(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{Validation("currency", "must be USD or KHR"), "validation: currency: must be USD or KHR"},
		{Validation("", "empty cart"), "validation: empty cart"},
		{NotFound("order", "FF000001"), "order FF000001 not found"},
		{Forbidden("admin role required"), "forbidden: admin role required"},
		{Conflict("cart", "", "already checked out"), "cart conflict: already checked out"},
		{&WebhookError{Code: WebhookUnknownStatus, Reason: `"refunding"`}, `webhook unknown_payment_status: "refunding"`},
		{&UnavailableError{Reason: "transaction id not recorded yet"}, "unavailable: transaction id not recorded yet"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.err.Error())
	}
}
