package guard_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/shopcore/internal/apperr"
	"github.com/ariefcatur/shopcore/internal/auth"
	"github.com/ariefcatur/shopcore/internal/guard"
)

func newGuard() (*guard.Guard, *auth.Tokens) {
	tokens := auth.NewTokens("test-secret", time.Hour)
	return &guard.Guard{Tokens: tokens}, tokens
}

func bearer(t *testing.T, tokens *auth.Tokens, role auth.Role) string {
	t.Helper()
	tok, err := tokens.Issue("u-"+string(role), role)
	require.NoError(t, err)
	return "Bearer " + tok
}

func TestCheckPolicyTable(t *testing.T) {
	g, tokens := newGuard()

	cases := []struct {
		op   guard.Op
		role auth.Role
		ok   bool
	}{
		{guard.OpProductCreate, auth.RoleSeller, true},
		{guard.OpProductCreate, auth.RoleCustomer, false},
		{guard.OpOrderCreate, auth.RoleCustomer, true},
		{guard.OpOrderCreate, auth.RoleSeller, false},
		{guard.OpOrderList, auth.RoleCustomer, true},
		{guard.OpOrderList, auth.RoleSeller, true},
		{guard.OpOrderList, auth.RoleAdmin, false},
		{guard.OpAdminUsers, auth.RoleAdmin, true},
		{guard.OpAdminUsers, auth.RoleSeller, false},
	}
	for _, c := range cases {
		id, err := g.Check(bearer(t, tokens, c.role), c.op)
		if c.ok {
			assert.NoError(t, err, "%s as %s", c.op, c.role)
			assert.Equal(t, c.role, id.Role)
		} else {
			assert.True(t, errors.Is(err, apperr.Forbidden), "%s as %s", c.op, c.role)
		}
	}
}

func TestCheckUnknownOperationDenied(t *testing.T) {
	g, tokens := newGuard()
	_, err := g.Check(bearer(t, tokens, auth.RoleAdmin), guard.Op("nope"))
	assert.True(t, errors.Is(err, apperr.Forbidden))
}

func TestCheckMissingOrInvalidToken(t *testing.T) {
	g, _ := newGuard()
	other := auth.NewTokens("other-secret", time.Hour)
	forged, err := other.Issue("u1", auth.RoleSeller)
	require.NoError(t, err)

	for _, header := range []string{"", "Bearer ", "Token abc", "Bearer garbage", "Bearer " + forged} {
		_, err := g.Check(header, guard.OpProductCreate)
		assert.True(t, errors.Is(err, apperr.Unauthenticated), "header %q", header)
	}
}

func TestRequireMiddleware(t *testing.T) {
	g, tokens := newGuard()

	var seen auth.Identity
	h := g.Require(guard.OpOrderCreate)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = guard.IdentityFrom(r.Context())
		w.WriteHeader(http.StatusCreated)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"unauthenticated"}`, rec.Body.String())

	req := httptest.NewRequest(http.MethodPost, "/orders", nil)
	req.Header.Set("Authorization", bearer(t, tokens, auth.RoleSeller))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/orders", nil)
	req.Header.Set("Authorization", bearer(t, tokens, auth.RoleCustomer))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "u-customer", seen.UserID)
}

func TestScopeOrderFilter(t *testing.T) {
	customer := auth.Identity{UserID: "c1", Role: auth.RoleCustomer}
	seller := auth.Identity{UserID: "s1", Role: auth.RoleSeller}

	c, s, err := guard.ScopeOrderFilter(customer, "", "")
	require.NoError(t, err)
	assert.Equal(t, "c1", c)
	assert.Empty(t, s)

	_, _, err = guard.ScopeOrderFilter(customer, "c2", "")
	assert.True(t, errors.Is(err, apperr.Forbidden))

	_, _, err = guard.ScopeOrderFilter(customer, "", "s1")
	assert.True(t, errors.Is(err, apperr.Forbidden))

	c, s, err = guard.ScopeOrderFilter(seller, "", "s1")
	require.NoError(t, err)
	assert.Empty(t, c)
	assert.Equal(t, "s1", s)

	_, _, err = guard.ScopeOrderFilter(seller, "", "s2")
	assert.True(t, errors.Is(err, apperr.Forbidden))
}
