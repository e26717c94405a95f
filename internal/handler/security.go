package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/auth"
)

// APIKeyHeader carries the caller's API key.
const APIKeyHeader = "X-API-Key"

// Authenticator resolves X-API-Key to an auth.Identity. Keys are stored as
// HMAC-SHA256 digests under a server-side pepper.
type Authenticator struct {
	keys   auth.Repository
	pepper []byte
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(keys auth.Repository, pepper []byte) *Authenticator {
	return &Authenticator{keys: keys, pepper: pepper}
}

// HashKey returns the hex digest stored for key.
func HashKey(key string, pepper []byte) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

// Middleware rejects requests without a valid key and stores the caller
// identity in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(APIKeyHeader)
		if key == "" {
			writeError(w, r, &authError{reason: "missing " + APIKeyHeader})
			return
		}

		hash := HashKey(key, a.pepper)
		info, err := a.keys.FindByHash(r.Context(), hash)
		if err != nil {
			if errors.Is(err, auth.ErrKeyNotFound) {
				writeError(w, r, &authError{reason: "invalid API key"})
				return
			}
			writeError(w, r, errors.Wrap(err, "authenticate"))
			return
		}
		// The lookup matched on the digest; compare again in constant time
		// in case the store matched loosely.
		if subtle.ConstantTimeCompare([]byte(hash), []byte(info.KeyHash)) != 1 {
			writeError(w, r, &authError{reason: "invalid API key"})
			return
		}

		id := info.Identity()
		ctx := auth.WithIdentity(r.Context(), id)
		ctx = zctx.Base(ctx, zctx.From(ctx).With(zap.String("user", id.UserID), zap.String("key_id", id.KeyID)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
