// Package guard is the single place role checks happen. Routes name an
// operation; Policy maps operations to the roles allowed to call them.
package guard

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ariefcatur/shopcore/internal/apperr"
	"github.com/ariefcatur/shopcore/internal/auth"
)

type Op string

const (
	OpProductCreate        Op = "product.create"
	OpOrderCreate          Op = "order.create"
	OpOrderList            Op = "order.list"
	OpOrderRead            Op = "order.read"
	OpOrderCancel          Op = "order.cancel"
	OpOrderFulfill         Op = "order.fulfill"
	OpCart                 Op = "cart"
	OpPaymentSessionCreate Op = "payment.session.create"
	OpAdminUsers           Op = "admin.users"
	OpProfile              Op = "profile"
)

var Policy = map[Op][]auth.Role{
	OpProductCreate:        {auth.RoleSeller},
	OpOrderCreate:          {auth.RoleCustomer},
	OpOrderList:            {auth.RoleCustomer, auth.RoleSeller},
	OpOrderRead:            {auth.RoleCustomer, auth.RoleSeller},
	OpOrderCancel:          {auth.RoleCustomer, auth.RoleSeller},
	OpOrderFulfill:         {auth.RoleSeller},
	OpCart:                 {auth.RoleCustomer},
	OpPaymentSessionCreate: {auth.RoleCustomer},
	OpAdminUsers:           {auth.RoleAdmin},
	OpProfile:              {auth.RoleCustomer, auth.RoleSeller, auth.RoleAdmin},
}

var (
	ErrUnauthenticated = apperr.New(apperr.KindUnauthenticated, "authentication required")
	ErrForbidden       = apperr.New(apperr.KindForbidden, "not allowed for this role")
)

type Verifier interface {
	Verify(token string) (auth.Identity, error)
}

type Guard struct {
	Tokens Verifier
	// Fail writes the error response; defaults to a bare JSON body.
	Fail func(w http.ResponseWriter, r *http.Request, err error)
}

// Check is the pure contract: bearer header + operation → identity or error.
// Unknown operations are denied.
func (g *Guard) Check(authorization string, op Op) (auth.Identity, error) {
	token, ok := strings.CutPrefix(authorization, "Bearer ")
	token = strings.TrimSpace(token)
	if !ok || token == "" {
		return auth.Identity{}, ErrUnauthenticated
	}
	id, err := g.Tokens.Verify(token)
	if err != nil {
		return auth.Identity{}, ErrUnauthenticated
	}
	for _, r := range Policy[op] {
		if r == id.Role {
			return id, nil
		}
	}
	return auth.Identity{}, ErrForbidden
}

// Require is chi-compatible middleware for one operation.
func (g *Guard) Require(op Op) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := g.Check(r.Header.Get("Authorization"), op)
			if err != nil {
				g.fail(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func (g *Guard) fail(w http.ResponseWriter, r *http.Request, err error) {
	if g.Fail != nil {
		g.Fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apperr.HTTPStatus(apperr.KindOf(err)))
	_ = json.NewEncoder(w).Encode(map[string]string{"error": string(apperr.KindOf(err))})
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id auth.Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func IdentityFrom(ctx context.Context) (auth.Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(auth.Identity)
	return id, ok
}

// ScopeOrderFilter limits order listing to the caller's own id. Empty
// filters default to the caller's side of the order.
func ScopeOrderFilter(id auth.Identity, customerID, sellerID string) (customer, seller string, err error) {
	switch id.Role {
	case auth.RoleCustomer:
		if sellerID != "" || (customerID != "" && customerID != id.UserID) {
			return "", "", ErrForbidden
		}
		return id.UserID, "", nil
	case auth.RoleSeller:
		if customerID != "" || (sellerID != "" && sellerID != id.UserID) {
			return "", "", ErrForbidden
		}
		return "", id.UserID, nil
	default:
		return "", "", ErrForbidden
	}
}
