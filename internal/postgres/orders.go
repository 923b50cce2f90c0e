package postgres

import (
	"context"
	"errors"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/shopcore/internal/apperr"
	"github.com/ariefcatur/shopcore/internal/orders"
)

var errOrderNotFound = apperr.New(apperr.KindNotFound, "order not found")

// CreateOrder locks each product row (FOR UPDATE, in id order so concurrent
// orders cannot deadlock), checks seller and stock, decrements, and records
// the order with its price snapshot. Any shortfall rolls everything back.
func (s *Store) CreateOrder(ctx context.Context, o *orders.Order) error {
	locking := make([]int, len(o.Items))
	for i := range locking {
		locking[i] = i
	}
	sort.Slice(locking, func(a, b int) bool { return o.Items[locking[a]].ProductID < o.Items[locking[b]].ProductID })

	return s.inTx(ctx, func(tx pgx.Tx) error {
		total := decimal.Zero
		for _, i := range locking {
			it := &o.Items[i]
			var sellerID, title, price string
			var stock int
			err := tx.QueryRow(ctx, `
				SELECT seller_id, title, price::text, stock
				FROM products WHERE id=$1 FOR UPDATE`, it.ProductID).Scan(&sellerID, &title, &price, &stock)
			if errors.Is(err, pgx.ErrNoRows) {
				return apperr.Newf(apperr.KindNotFound, "product %s not found", it.ProductID)
			}
			if err != nil {
				return err
			}
			if sellerID != o.SellerID {
				return apperr.Newf(apperr.KindValidation, "product %s is not sold by seller %s", it.ProductID, o.SellerID)
			}
			if stock < it.Quantity {
				return apperr.Newf(apperr.KindInsufficientStock, "only %d of product %s in stock", stock, it.ProductID)
			}
			ct, err := tx.Exec(ctx, `
				UPDATE products SET stock = stock - $2, updated_at = now()
				WHERE id=$1 AND stock >= $2`, it.ProductID, it.Quantity)
			if err != nil {
				return err
			}
			if ct.RowsAffected() != 1 {
				return apperr.Newf(apperr.KindInsufficientStock, "only %d of product %s in stock", stock, it.ProductID)
			}
			if it.UnitPrice, err = decimal.NewFromString(price); err != nil {
				return err
			}
			it.Title = title
			total = total.Add(it.Subtotal())
		}
		o.Total = total

		if _, err := tx.Exec(ctx, `
			INSERT INTO orders(id, customer_id, seller_id, status, total, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5::numeric,$6,$7)`,
			o.ID, o.CustomerID, o.SellerID, string(o.Status), o.Total.String(), o.CreatedAt, o.UpdatedAt); err != nil {
			return err
		}
		for i, it := range o.Items {
			if _, err := tx.Exec(ctx, `
				INSERT INTO order_items(order_id, product_id, title, quantity, unit_price, position)
				VALUES ($1,$2,$3,$4,$5::numeric,$6)`,
				o.ID, it.ProductID, it.Title, it.Quantity, it.UnitPrice.String(), i); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) Order(ctx context.Context, id string) (orders.Order, error) {
	return loadOrder(ctx, s.DB, id)
}

func (s *Store) ListOrders(ctx context.Context, f orders.Filter) ([]orders.Order, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE ($1 = '' OR customer_id = $1) AND ($2 = '' OR seller_id = $2)
		ORDER BY created_at DESC`, f.CustomerID, f.SellerID)
	if err != nil {
		return nil, err
	}
	out := []orders.Order{}
	index := map[string]int{}
	ids := []string{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		index[o.ID] = len(out)
		ids = append(ids, o.ID)
		out = append(out, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}

	items, err := s.DB.Query(ctx, `
		SELECT order_id, product_id, title, quantity, unit_price::text
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, position`, ids)
	if err != nil {
		return nil, err
	}
	defer items.Close()
	for items.Next() {
		var orderID string
		it, err := scanItem(items, &orderID)
		if err != nil {
			return nil, err
		}
		i := index[orderID]
		out[i].Items = append(out[i].Items, it)
	}
	return out, items.Err()
}

// Transition applies t only if the order is still in t.From; a restock puts
// every line's quantity back in the same transaction.
func (s *Store) Transition(ctx context.Context, t orders.Transition) (orders.Order, error) {
	var out orders.Order
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var status string
		err := tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1 FOR UPDATE`, t.OrderID).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return errOrderNotFound
		}
		if err != nil {
			return err
		}
		if orders.Status(status) != t.From {
			return orders.ErrStale
		}

		if t.Restock {
			if _, err := tx.Exec(ctx, `
				UPDATE products p SET stock = p.stock + oi.quantity, updated_at = now()
				FROM order_items oi
				WHERE oi.order_id = $1 AND p.id = oi.product_id`, t.OrderID); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(ctx, `
			UPDATE orders
			SET status=$2, payment_session_id=COALESCE(NULLIF($3, ''), payment_session_id), updated_at=now()
			WHERE id=$1`, t.OrderID, string(t.To), t.PaymentSessionID); err != nil {
			return err
		}
		out, err = loadOrder(ctx, tx, t.OrderID)
		return err
	})
	return out, err
}

func (s *Store) AttachPaymentSession(ctx context.Context, orderID, sessionID string) error {
	ct, err := s.DB.Exec(ctx, `
		UPDATE orders SET payment_session_id=$2, updated_at=now()
		WHERE id=$1 AND status='pending'`, orderID, sessionID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() > 0 {
		return nil
	}
	var st string
	err = s.DB.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1`, orderID).Scan(&st)
	if errors.Is(err, pgx.ErrNoRows) {
		return errOrderNotFound
	}
	if err != nil {
		return err
	}
	return apperr.Newf(apperr.KindInvalidTransition, "order %s is %s, not payable", orderID, st)
}

const orderColumns = `id, customer_id, seller_id, status, total::text, payment_session_id, created_at, updated_at`

func loadOrder(ctx context.Context, q querier, id string) (orders.Order, error) {
	o, err := scanOrder(q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
	if err != nil {
		return orders.Order{}, err
	}
	rows, err := q.Query(ctx, `
		SELECT order_id, product_id, title, quantity, unit_price::text
		FROM order_items WHERE order_id=$1 ORDER BY position`, id)
	if err != nil {
		return orders.Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var orderID string
		it, err := scanItem(rows, &orderID)
		if err != nil {
			return orders.Order{}, err
		}
		o.Items = append(o.Items, it)
	}
	return o, rows.Err()
}

func scanOrder(row pgx.Row) (orders.Order, error) {
	var o orders.Order
	var status, total string
	err := row.Scan(&o.ID, &o.CustomerID, &o.SellerID, &status, &total, &o.PaymentSessionID, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Order{}, errOrderNotFound
	}
	if err != nil {
		return orders.Order{}, err
	}
	o.Status = orders.Status(status)
	if o.Total, err = decimal.NewFromString(total); err != nil {
		return orders.Order{}, err
	}
	o.Items = []orders.Item{}
	return o, nil
}

func scanItem(row pgx.Row, orderID *string) (orders.Item, error) {
	var it orders.Item
	var price string
	if err := row.Scan(orderID, &it.ProductID, &it.Title, &it.Quantity, &price); err != nil {
		return orders.Item{}, err
	}
	var err error
	if it.UnitPrice, err = decimal.NewFromString(price); err != nil {
		return orders.Item{}, err
	}
	return it, nil
}
