package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/shopcore/internal/cart"
)

func (s *Store) Cart(ctx context.Context, userID string) (cart.Cart, error) {
	return loadCart(ctx, s.DB, userID)
}

// UpdateCart locks the user's cart row for the duration of fn, so concurrent
// mutations of one cart apply one after the other. fn gets a ctx carrying the
// transaction; a mutation never needs a second pool connection.
func (s *Store) UpdateCart(ctx context.Context, userID string, fn func(context.Context, *cart.Cart) error) (cart.Cart, error) {
	var out cart.Cart
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO carts(user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `SELECT 1 FROM carts WHERE user_id=$1 FOR UPDATE`, userID); err != nil {
			return err
		}
		c, err := loadCart(ctx, tx, userID)
		if err != nil {
			return err
		}
		if err := fn(withTx(ctx, tx), &c); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE user_id=$1`, userID); err != nil {
			return err
		}
		for i, it := range c.Items {
			if _, err := tx.Exec(ctx, `
				INSERT INTO cart_items(user_id, product_id, seller_id, quantity, unit_price, position)
				VALUES ($1,$2,$3,$4,$5::numeric,$6)`,
				userID, it.ProductID, it.SellerID, it.Quantity, it.UnitPrice.String(), i); err != nil {
				return err
			}
		}
		if c.UpdatedAt.IsZero() {
			c.UpdatedAt = time.Now().UTC()
		}
		if _, err := tx.Exec(ctx, `UPDATE carts SET updated_at=$2 WHERE user_id=$1`, userID, c.UpdatedAt); err != nil {
			return err
		}
		out = c
		return nil
	})
	return out, err
}

func loadCart(ctx context.Context, q querier, userID string) (cart.Cart, error) {
	c := cart.Cart{UserID: userID, Items: []cart.Item{}}
	err := q.QueryRow(ctx, `SELECT updated_at FROM carts WHERE user_id=$1`, userID).Scan(&c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return c, nil
	}
	if err != nil {
		return cart.Cart{}, err
	}

	rows, err := q.Query(ctx, `
		SELECT product_id, seller_id, quantity, unit_price::text
		FROM cart_items WHERE user_id=$1 ORDER BY position`, userID)
	if err != nil {
		return cart.Cart{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var it cart.Item
		var price string
		if err := rows.Scan(&it.ProductID, &it.SellerID, &it.Quantity, &price); err != nil {
			return cart.Cart{}, err
		}
		if it.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return cart.Cart{}, err
		}
		c.Items = append(c.Items, it)
	}
	return c, rows.Err()
}
