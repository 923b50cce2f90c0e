// Package checkout turns a customer's cart into a single-seller order.
package checkout

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ariefcatur/shopcore/internal/apperr"
	"github.com/ariefcatur/shopcore/internal/cart"
	"github.com/ariefcatur/shopcore/internal/orders"
)

type Carts interface {
	Fetch(ctx context.Context, userID string) (cart.Cart, error)
	Add(ctx context.Context, userID, productID string, qty int) (cart.Cart, error)
	Clear(ctx context.Context, userID string) (cart.Cart, error)
}

type Orders interface {
	Create(ctx context.Context, customerID, sellerID string, items []orders.ItemInput) (orders.Order, error)
	Cancel(ctx context.Context, orderID string) (orders.Order, error)
}

type Service struct {
	Carts  Carts
	Orders Orders
	Log    *slog.Logger
}

// PlaceFromCart creates an order from every line in the cart. Carts spanning
// several sellers are rejected rather than split. sellerID may be empty when
// the cart has a single seller.
func (s *Service) PlaceFromCart(ctx context.Context, customerID, sellerID string) (orders.Order, error) {
	c, err := s.Carts.Fetch(ctx, customerID)
	if err != nil {
		return orders.Order{}, err
	}
	if len(c.Items) == 0 {
		return orders.Order{}, orders.ErrEmptyOrder
	}
	sellers := c.Sellers()
	if len(sellers) > 1 {
		return orders.Order{}, apperr.New(apperr.KindValidation, "cart holds items from several sellers; check out one seller at a time")
	}
	if sellerID == "" {
		sellerID = sellers[0]
	}
	if sellerID != sellers[0] {
		return orders.Order{}, apperr.New(apperr.KindValidation, "cart items do not belong to sellerId")
	}

	items := make([]orders.ItemInput, 0, len(c.Items))
	for _, it := range c.Items {
		items = append(items, orders.ItemInput{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	o, err := s.Orders.Create(ctx, customerID, sellerID, items)
	if err != nil {
		return orders.Order{}, err
	}

	// The order is committed; a failed clear only leaves a stale cart.
	if _, err := s.Carts.Clear(ctx, customerID); err != nil {
		s.Log.Warn("clear cart after checkout", "user_id", customerID, "order_id", o.ID, "err", err)
	}
	return o, nil
}

// Revert undoes PlaceFromCart for an order that could not go to payment: the
// order is cancelled, which restocks it, and its lines go back to the cart.
func (s *Service) Revert(ctx context.Context, o orders.Order) error {
	if _, err := s.Orders.Cancel(ctx, o.ID); err != nil {
		return fmt.Errorf("cancel order %s: %w", o.ID, err)
	}
	for _, it := range o.Items {
		if _, err := s.Carts.Add(ctx, o.CustomerID, it.ProductID, it.Quantity); err != nil {
			return fmt.Errorf("restore cart line %s: %w", it.ProductID, err)
		}
	}
	s.Log.Info("checkout reverted", "order_id", o.ID, "user_id", o.CustomerID)
	return nil
}
