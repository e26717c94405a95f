package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAPIKeyIdentity(t *testing.T) {
	customer := (&APIKeyInfo{ID: "k1", UserID: "u1", Scopes: []string{"orders"}}).Identity()
	assert.Equal(t, Identity{UserID: "u1", KeyID: "k1", Role: RoleCustomer}, customer)
	assert.False(t, customer.IsAdmin())

	admin := (&APIKeyInfo{ID: "k2", UserID: "ops", Scopes: []string{"orders", ScopeAdmin}}).Identity()
	assert.True(t, admin.IsAdmin())
}

func TestCanAccess(t *testing.T) {
	assert.True(t, Identity{UserID: "u1", Role: RoleCustomer}.CanAccess("u1"))
	assert.False(t, Identity{UserID: "u1", Role: RoleCustomer}.CanAccess("u2"))
	assert.False(t, Identity{Role: RoleCustomer}.CanAccess(""))
	assert.True(t, Identity{UserID: "ops", Role: RoleAdmin}.CanAccess("u2"))
}

func TestContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	ctx := WithIdentity(context.Background(), Identity{UserID: "u1", Role: RoleCustomer})
	id, ok := FromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "u1", id.UserID)
}
