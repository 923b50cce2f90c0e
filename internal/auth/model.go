package auth

import (
	"context"
	"time"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleSeller   Role = "seller"
	RoleAdmin    Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleSeller || r == RoleAdmin
}

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Identity is what a verified token carries.
type Identity struct {
	UserID string
	Role   Role
}

// Store persists users. CreateUser returns apperr.DuplicateEmail when the
// email is taken; lookups return apperr.NotFound.
type Store interface {
	CreateUser(ctx context.Context, u User) error
	UserByEmail(ctx context.Context, email string) (User, error)
	UserByID(ctx context.Context, id string) (User, error)
	ListUsers(ctx context.Context, role Role) ([]User, error)
	SetUserActive(ctx context.Context, id string, active bool) error
}
