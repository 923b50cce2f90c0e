package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/shopcore/internal/apperr"
	"github.com/ariefcatur/shopcore/internal/auth"
	"github.com/ariefcatur/shopcore/internal/logx"
	"github.com/ariefcatur/shopcore/internal/memstore"
)

func newService() *auth.Service {
	return &auth.Service{
		Store:  memstore.New(),
		Tokens: auth.NewTokens("secret", time.Hour),
		Log:    logx.Discard(),
	}
}

func register(t *testing.T, s *auth.Service, email string, role auth.Role) auth.User {
	t.Helper()
	u, err := s.Register(context.Background(), auth.RegisterInput{
		Name: "Test", Email: email, Password: "password1", Role: role,
	})
	require.NoError(t, err)
	return u
}

func TestRegisterAndLogin(t *testing.T) {
	s := newService()
	ctx := context.Background()
	u := register(t, s, "Seller@Example.com", auth.RoleSeller)
	assert.Equal(t, "seller@example.com", u.Email)
	assert.True(t, u.Active)

	tok, got, err := s.Login(ctx, "seller@example.com", "password1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	id, err := s.Tokens.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, auth.Identity{UserID: u.ID, Role: auth.RoleSeller}, id)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	s := newService()
	register(t, s, "a@example.com", auth.RoleCustomer)

	_, err := s.Register(context.Background(), auth.RegisterInput{
		Name: "Again", Email: "A@example.com", Password: "password1", Role: auth.RoleSeller,
	})
	assert.True(t, errors.Is(err, apperr.DuplicateEmail))
}

func TestRegisterValidation(t *testing.T) {
	s := newService()
	cases := map[string]auth.RegisterInput{
		"bad email":  {Email: "nope", Password: "password1", Role: auth.RoleCustomer},
		"short pass": {Email: "a@example.com", Password: "short", Role: auth.RoleCustomer},
		"admin role": {Email: "a@example.com", Password: "password1", Role: auth.RoleAdmin},
		"no role":    {Email: "a@example.com", Password: "password1"},
	}
	for name, in := range cases {
		_, err := s.Register(context.Background(), in)
		assert.True(t, errors.Is(err, apperr.Validation), name)
	}
}

func TestLoginFailuresLookTheSame(t *testing.T) {
	s := newService()
	ctx := context.Background()
	u := register(t, s, "c@example.com", auth.RoleCustomer)
	require.NoError(t, s.Store.SetUserActive(ctx, u.ID, false))
	register(t, s, "d@example.com", auth.RoleCustomer)

	_, _, errUnknown := s.Login(ctx, "ghost@example.com", "password1")
	_, _, errWrong := s.Login(ctx, "d@example.com", "password2")
	_, _, errSuspended := s.Login(ctx, "c@example.com", "password1")

	for _, err := range []error{errUnknown, errWrong, errSuspended} {
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperr.Unauthenticated))
		assert.Equal(t, errUnknown.Error(), err.Error())
	}
}

func TestEnsureAdminIsIdempotent(t *testing.T) {
	s := newService()
	ctx := context.Background()

	require.NoError(t, s.EnsureAdmin(ctx, "root@example.com", "supersecret"))
	require.NoError(t, s.EnsureAdmin(ctx, "root@example.com", "supersecret"))

	admins, err := s.ListUsers(ctx, auth.RoleAdmin)
	require.NoError(t, err)
	require.Len(t, admins, 1)

	_, u, err := s.Login(ctx, "root@example.com", "supersecret")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, u.Role)
}

func TestSetActive(t *testing.T) {
	s := newService()
	ctx := context.Background()
	require.NoError(t, s.EnsureAdmin(ctx, "root@example.com", "supersecret"))
	_, admin, err := s.Login(ctx, "root@example.com", "supersecret")
	require.NoError(t, err)
	actor := auth.Identity{UserID: admin.ID, Role: auth.RoleAdmin}
	seller := register(t, s, "s@example.com", auth.RoleSeller)

	u, err := s.SetActive(ctx, actor, seller.ID, false)
	require.NoError(t, err)
	assert.False(t, u.Active)
	assert.Equal(t, auth.RoleSeller, u.Role)

	u, err = s.SetActive(ctx, actor, seller.ID, true)
	require.NoError(t, err)
	assert.True(t, u.Active)

	_, err = s.SetActive(ctx, actor, admin.ID, false)
	assert.True(t, errors.Is(err, apperr.Validation))

	_, err = s.SetActive(ctx, actor, "missing", false)
	assert.True(t, errors.Is(err, apperr.NotFound))
}

func TestListUsersRejectsUnknownRole(t *testing.T) {
	_, err := newService().ListUsers(context.Background(), auth.Role("root"))
	assert.True(t, errors.Is(err, apperr.Validation))
}
