package orders

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Item is the immutable price snapshot taken when the order is created.
type Item struct {
	ProductID string          `json:"productId"`
	Title     string          `json:"title"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

func (it Item) Subtotal() decimal.Decimal {
	return it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

type Order struct {
	ID               string          `json:"id"`
	CustomerID       string          `json:"customerId"`
	SellerID         string          `json:"sellerId"`
	Items            []Item          `json:"items"`
	Total            decimal.Decimal `json:"total"`
	Status           Status          `json:"status"`
	PaymentSessionID string          `json:"paymentSessionId,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// ItemInput is a requested line before prices are known.
type ItemInput struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type Filter struct {
	CustomerID string
	SellerID   string
}

// Transition is a conditional status change: it applies only while the
// order is still in From.
type Transition struct {
	OrderID          string
	From, To         Status
	PaymentSessionID string
	Restock          bool
}

// Store persists orders. CreateOrder decrements stock and fills in the item
// snapshot (Title, UnitPrice) and Total in one atomic unit, returning
// apperr.NotFound / apperr.InsufficientStock with nothing applied.
// Transition returns ErrStale when the order is no longer in t.From.
// AttachPaymentSession only updates pending orders and returns
// apperr.InvalidTransition for any other status.
type Store interface {
	CreateOrder(ctx context.Context, o *Order) error
	Order(ctx context.Context, id string) (Order, error)
	ListOrders(ctx context.Context, f Filter) ([]Order, error)
	Transition(ctx context.Context, t Transition) (Order, error)
	AttachPaymentSession(ctx context.Context, orderID, sessionID string) error
}
