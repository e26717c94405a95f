package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/apperr"
)

type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// statusOf maps domain errors to HTTP status codes.
func statusOf(err error) int {
	var (
		validation   *apperr.ValidationError
		notFound     *apperr.NotFoundError
		forbidden    *apperr.AuthorizationError
		conflict     *apperr.ConflictError
		upstream     *apperr.UpstreamGatewayError
		webhook      *apperr.WebhookError
		unavailable  *apperr.UnavailableError
		badRequest   *requestError
		unauthorized *authError
	)
	switch {
	case errors.As(err, &badRequest):
		return http.StatusBadRequest
	case errors.As(err, &unauthorized):
		return http.StatusUnauthorized
	case errors.As(err, &validation):
		return http.StatusUnprocessableEntity
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &forbidden):
		return http.StatusForbidden
	case errors.As(err, &conflict):
		return http.StatusConflict
	case errors.As(err, &upstream):
		return http.StatusBadGateway
	case errors.As(err, &webhook):
		return http.StatusBadRequest
	case errors.As(err, &unavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {"code","message"}. Internal errors are logged
// and their text is not exposed.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	msg := err.Error()

	lg := zctx.From(r.Context())
	switch {
	case status >= http.StatusInternalServerError && status != http.StatusBadGateway && status != http.StatusServiceUnavailable:
		lg.Error("Request failed", zap.Error(err))
		msg = "internal error"
	case status >= http.StatusInternalServerError:
		lg.Warn("Request failed", zap.Int("status", status), zap.Error(err))
	default:
		lg.Debug("Request rejected", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, errorBody{Code: status, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// requestError reports a body or parameter that could not be decoded.
type requestError struct {
	reason string
}

func (e *requestError) Error() string { return "bad request: " + e.reason }

// authError reports a missing or unknown API key.
type authError struct {
	reason string
}

func (e *authError) Error() string { return "unauthorized: " + e.reason }
