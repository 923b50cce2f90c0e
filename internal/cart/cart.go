package cart

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/shopcore/internal/apperr"
	"github.com/ariefcatur/shopcore/internal/catalog"
)

type Item struct {
	ProductID string          `json:"productId"`
	SellerID  string          `json:"sellerId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// Cart totals are derived; Recompute runs after every load and mutation.
type Cart struct {
	UserID    string          `json:"userId"`
	Items     []Item          `json:"items"`
	Total     decimal.Decimal `json:"total"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func (c *Cart) Recompute() {
	total := decimal.Zero
	for i := range c.Items {
		c.Items[i].Subtotal = c.Items[i].UnitPrice.Mul(decimal.NewFromInt(int64(c.Items[i].Quantity)))
		total = total.Add(c.Items[i].Subtotal)
	}
	c.Total = total
	if c.Items == nil {
		c.Items = []Item{}
	}
}

func (c *Cart) find(productID string) int {
	for i, it := range c.Items {
		if it.ProductID == productID {
			return i
		}
	}
	return -1
}

func (c *Cart) remove(i int) {
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
}

// Sellers returns the distinct seller ids in line order.
func (c *Cart) Sellers() []string {
	seen := map[string]bool{}
	var out []string
	for _, it := range c.Items {
		if !seen[it.SellerID] {
			seen[it.SellerID] = true
			out = append(out, it.SellerID)
		}
	}
	return out
}

// Store serializes mutations per user: UpdateCart runs fn while holding the
// user's cart lock and persists the result only if fn returns nil. Store
// reads made with the ctx passed to fn run inside that same lock.
type Store interface {
	Cart(ctx context.Context, userID string) (Cart, error)
	UpdateCart(ctx context.Context, userID string, fn func(context.Context, *Cart) error) (Cart, error)
}

type Catalog interface {
	Available(ctx context.Context, productID string, qty int) (catalog.Product, error)
}

type Service struct {
	Store   Store
	Catalog Catalog
}

func (s *Service) Fetch(ctx context.Context, userID string) (Cart, error) {
	c, err := s.Store.Cart(ctx, userID)
	if err != nil {
		return Cart{}, err
	}
	c.Recompute()
	return c, nil
}

func (s *Service) Add(ctx context.Context, userID, productID string, qty int) (Cart, error) {
	if qty < 1 {
		return Cart{}, apperr.New(apperr.KindValidation, "quantity must be at least 1")
	}
	return s.mutate(ctx, userID, func(ctx context.Context, c *Cart) error {
		want := qty
		i := c.find(productID)
		if i >= 0 {
			want += c.Items[i].Quantity
		}
		p, err := s.Catalog.Available(ctx, productID, want)
		if err != nil {
			return err
		}
		if i >= 0 {
			c.Items[i].Quantity = want
			c.Items[i].UnitPrice = p.Price
			return nil
		}
		c.Items = append(c.Items, Item{ProductID: p.ID, SellerID: p.SellerID, Quantity: qty, UnitPrice: p.Price})
		return nil
	})
}

// Update replaces a line's quantity; zero removes the line.
func (s *Service) Update(ctx context.Context, userID, productID string, qty int) (Cart, error) {
	if qty < 0 {
		return Cart{}, apperr.New(apperr.KindValidation, "quantity must not be negative")
	}
	return s.mutate(ctx, userID, func(ctx context.Context, c *Cart) error {
		i := c.find(productID)
		if i < 0 {
			return apperr.Newf(apperr.KindNotFound, "product %s is not in the cart", productID)
		}
		if qty == 0 {
			c.remove(i)
			return nil
		}
		if _, err := s.Catalog.Available(ctx, productID, qty); err != nil {
			return err
		}
		c.Items[i].Quantity = qty
		return nil
	})
}

func (s *Service) Remove(ctx context.Context, userID, productID string) (Cart, error) {
	return s.mutate(ctx, userID, func(ctx context.Context, c *Cart) error {
		if i := c.find(productID); i >= 0 {
			c.remove(i)
		}
		return nil
	})
}

func (s *Service) Clear(ctx context.Context, userID string) (Cart, error) {
	return s.mutate(ctx, userID, func(ctx context.Context, c *Cart) error {
		c.Items = nil
		return nil
	})
}

func (s *Service) mutate(ctx context.Context, userID string, fn func(context.Context, *Cart) error) (Cart, error) {
	c, err := s.Store.UpdateCart(ctx, userID, func(ctx context.Context, c *Cart) error {
		if err := fn(ctx, c); err != nil {
			return err
		}
		c.UpdatedAt = time.Now().UTC()
		c.Recompute()
		return nil
	})
	if err != nil {
		return Cart{}, err
	}
	c.Recompute()
	return c, nil
}
