package payment

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/shopcore/internal/apperr"
)

type Status string

const (
	StatusCreated   Status = "created"
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusExpired   Status = "expired"
)

func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusExpired
}

// Session ids are assigned by the provider.
type Session struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	OrderID   string          `json:"orderId,omitempty"`
	PackageID string          `json:"packageId,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Status    Status          `json:"status"`
	URL       string          `json:"url"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type Package struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
}

var DefaultPackages = []Package{
	{ID: "starter", Name: "Starter", Description: "Starter package", Amount: decimal.RequireFromString("9.99"), Currency: "usd"},
	{ID: "pro", Name: "Pro", Description: "Pro package", Amount: decimal.RequireFromString("29.99"), Currency: "usd"},
	{ID: "business", Name: "Business", Description: "Business package", Amount: decimal.RequireFromString("99.99"), Currency: "usd"},
}

var (
	ErrPackageNotFound = apperr.New(apperr.KindNotFound, "package not found")
	ErrSessionNotFound = apperr.New(apperr.KindNotFound, "payment session not found")
	// ErrStale is returned by Store.SetSessionStatus when the session is no
	// longer in the expected status.
	ErrStale = errors.New("payment session status changed concurrently")
)

// Store persists sessions. Session returns ErrSessionNotFound for unknown ids.
type Store interface {
	CreateSession(ctx context.Context, s Session) error
	Session(ctx context.Context, id string) (Session, error)
	SetSessionStatus(ctx context.Context, id string, from, to Status) (Session, error)
}

// Idempotency maps a client idempotency key to the session it produced.
// Claim returns the stored session id when the key already completed, or
// claimed=true when the caller now owns the key.
type Idempotency interface {
	Claim(ctx context.Context, key string) (sessionID string, claimed bool, err error)
	Complete(ctx context.Context, key, sessionID string) error
	Release(ctx context.Context, key string) error
}

// Outcome is one provider-reported result for a session.
type Outcome struct {
	EventID   string `json:"event_id"`
	SessionID string `json:"session_id"`
	Status    Status `json:"status"`
}
