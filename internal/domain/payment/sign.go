package payment

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"maps"
	"slices"
	"strings"
)

// Params are the fields of a gateway request that are covered by the hash.
type Params map[string]string

// Canonical renders p as key=value pairs sorted by key and joined with '&'.
// Values are not escaped.
func (p Params) Canonical() string {
	var b strings.Builder
	for i, k := range slices.Sorted(maps.Keys(p)) {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(p[k])
	}
	return b.String()
}

// Sign returns the hex SHA-512 of the canonical form of params followed by
// secret.
func Sign(params Params, secret string) string {
	sum := sha512.Sum512([]byte(params.Canonical() + secret))
	return hex.EncodeToString(sum[:])
}

// Verify reports whether hash is the signature of params under secret.
func Verify(params Params, secret, hash string) bool {
	want := Sign(params, secret)
	return subtle.ConstantTimeCompare([]byte(want), []byte(strings.ToLower(hash))) == 1
}
