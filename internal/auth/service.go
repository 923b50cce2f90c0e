package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ariefcatur/shopcore/internal/apperr"
)

const minPasswordLen = 8

var errBadCredentials = apperr.New(apperr.KindUnauthenticated, "invalid credentials")

// dummyHash is compared on unknown emails so every failed login pays the
// bcrypt cost.
var dummyHash = sync.OnceValue(func() string {
	h, _ := HashPassword("no-such-account")
	return h
})

var checkPassword = CheckPassword

type Service struct {
	Store  Store
	Tokens *Tokens
	Log    *slog.Logger
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     Role
}

func normalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// Register creates a customer or seller. Admins only come from EnsureAdmin.
func (s *Service) Register(ctx context.Context, in RegisterInput) (User, error) {
	email := normalizeEmail(in.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return User{}, apperr.New(apperr.KindValidation, "invalid email")
	}
	if len(in.Password) < minPasswordLen {
		return User{}, apperr.Newf(apperr.KindValidation, "password must be at least %d characters", minPasswordLen)
	}
	if in.Role != RoleCustomer && in.Role != RoleSeller {
		return User{}, apperr.New(apperr.KindValidation, "role must be customer or seller")
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	u := User{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(in.Name),
		Email:        email,
		PasswordHash: hash,
		Role:         in.Role,
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.Store.CreateUser(ctx, u); err != nil {
		return User{}, err
	}
	s.Log.Info("user registered", "user_id", u.ID, "role", u.Role)
	return u, nil
}

// Login never tells the caller which check failed.
func (s *Service) Login(ctx context.Context, email, password string) (string, User, error) {
	u, err := s.Store.UserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, apperr.NotFound) {
			checkPassword(dummyHash(), password)
			return "", User{}, errBadCredentials
		}
		return "", User{}, err
	}
	if !checkPassword(u.PasswordHash, password) || !u.Active {
		return "", User{}, errBadCredentials
	}
	tok, err := s.Tokens.Issue(u.ID, u.Role)
	if err != nil {
		return "", User{}, fmt.Errorf("issue token: %w", err)
	}
	return tok, u, nil
}

func (s *Service) Me(ctx context.Context, id Identity) (User, error) {
	return s.Store.UserByID(ctx, id.UserID)
}

// EnsureAdmin creates the bootstrap admin if the email is unused. An existing
// account with that email is left untouched; roles never change.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) error {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil
	}
	if _, err := s.Store.UserByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, apperr.NotFound) {
		return err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	err = s.Store.CreateUser(ctx, User{
		ID:           uuid.NewString(),
		Name:         "admin",
		Email:        email,
		PasswordHash: hash,
		Role:         RoleAdmin,
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil && !errors.Is(err, apperr.DuplicateEmail) {
		return err
	}
	s.Log.Info("admin account ensured", "email", email)
	return nil
}

// ListUsers backs admin user/vendor management; role "" lists everyone.
func (s *Service) ListUsers(ctx context.Context, role Role) ([]User, error) {
	if role != "" && !role.Valid() {
		return nil, apperr.New(apperr.KindValidation, "unknown role")
	}
	return s.Store.ListUsers(ctx, role)
}

func (s *Service) SetActive(ctx context.Context, actor Identity, userID string, active bool) (User, error) {
	if actor.UserID == userID && !active {
		return User{}, apperr.New(apperr.KindValidation, "admins cannot suspend themselves")
	}
	if err := s.Store.SetUserActive(ctx, userID, active); err != nil {
		return User{}, err
	}
	s.Log.Info("user active flag changed", "user_id", userID, "active", active, "by", actor.UserID)
	return s.Store.UserByID(ctx, userID)
}
