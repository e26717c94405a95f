// Package apperr defines the error kinds surfaced by the checkout domain.
// Transport layers match them with errors.As to pick a status code.
package apperr

import "fmt"

// ValidationError reports malformed or unacceptable input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// Validation is a shorthand for &ValidationError{...}.
func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFoundError reports a missing resource.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func NotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// AuthorizationError reports a caller acting outside its permissions.
type AuthorizationError struct {
	Reason string
}

func (e *AuthorizationError) Error() string {
	return "forbidden: " + e.Reason
}

func Forbidden(reason string) error {
	return &AuthorizationError{Reason: reason}
}

// ConflictError reports a state conflict: stock, double submission or an
// operation the resource's current state does not allow.
type ConflictError struct {
	Resource string
	ID       string
	Reason   string
}

func (e *ConflictError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s conflict: %s", e.Resource, e.Reason)
	}
	return fmt.Sprintf("%s %s conflict: %s", e.Resource, e.ID, e.Reason)
}

func Conflict(resource, id, reason string) error {
	return &ConflictError{Resource: resource, ID: id, Reason: reason}
}

// UpstreamGatewayError reports a failed call to the payment gateway.
// StatusCode is zero when no response was received.
type UpstreamGatewayError struct {
	StatusCode int
	Reason     string
	Err        error
}

func (e *UpstreamGatewayError) Error() string {
	msg := "payment gateway: " + e.Reason
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UpstreamGatewayError) Unwrap() error { return e.Err }

// WebhookCode classifies rejected webhook deliveries.
type WebhookCode string

const (
	WebhookMalformed           WebhookCode = "malformed_payload"
	WebhookBadSignature        WebhookCode = "bad_signature"
	WebhookUnknownStatus       WebhookCode = "unknown_payment_status"
	WebhookTransactionMismatch WebhookCode = "transaction_mismatch"
)

// WebhookError reports a webhook that can never be applied. Redelivery will
// not help.
type WebhookError struct {
	Code   WebhookCode
	Reason string
}

func (e *WebhookError) Error() string {
	return fmt.Sprintf("webhook %s: %s", e.Code, e.Reason)
}

// UnavailableError reports a transient condition; the caller should retry.
type UnavailableError struct {
	Reason string
}

func (e *UnavailableError) Error() string {
	return "unavailable: " + e.Reason
}
