package auth

import (
	"context"
	"slices"

	"github.com/go-faster/errors"
)

// ErrKeyNotFound is returned by Repository.FindByHash for unknown or revoked keys.
var ErrKeyNotFound = errors.New("api key not found")

// ScopeAdmin grants back-office operations such as order status changes.
const ScopeAdmin = "admin"

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	UserID  string
	Scopes  []string
}

// Identity derives the caller identity carried by this key.
func (k *APIKeyInfo) Identity() Identity {
	role := RoleCustomer
	if slices.Contains(k.Scopes, ScopeAdmin) {
		role = RoleAdmin
	}
	return Identity{UserID: k.UserID, KeyID: k.ID, Role: role}
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}
