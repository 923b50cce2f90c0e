package postgres

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		email         TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		role          TEXT NOT NULL CHECK (role IN ('customer','seller','admin')),
		active        BOOLEAN NOT NULL DEFAULT TRUE,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_email_key ON users (lower(email))`,
	`CREATE TABLE IF NOT EXISTS products (
		id          TEXT PRIMARY KEY,
		seller_id   TEXT NOT NULL REFERENCES users(id),
		title       TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		price       NUMERIC(12,2) NOT NULL CHECK (price >= 0),
		stock       INT NOT NULL CHECK (stock >= 0),
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS carts (
		user_id    TEXT PRIMARY KEY REFERENCES users(id),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS cart_items (
		user_id    TEXT NOT NULL REFERENCES carts(user_id) ON DELETE CASCADE,
		product_id TEXT NOT NULL REFERENCES products(id),
		seller_id  TEXT NOT NULL,
		quantity   INT NOT NULL CHECK (quantity > 0),
		unit_price NUMERIC(12,2) NOT NULL,
		position   INT NOT NULL,
		PRIMARY KEY (user_id, product_id)
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id                 TEXT PRIMARY KEY,
		customer_id        TEXT NOT NULL REFERENCES users(id),
		seller_id          TEXT NOT NULL REFERENCES users(id),
		status             TEXT NOT NULL,
		total              NUMERIC(12,2) NOT NULL,
		payment_session_id TEXT NOT NULL DEFAULT '',
		created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS orders_customer_idx ON orders (customer_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS orders_seller_idx ON orders (seller_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		order_id   TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		product_id TEXT NOT NULL REFERENCES products(id),
		title      TEXT NOT NULL,
		quantity   INT NOT NULL CHECK (quantity > 0),
		unit_price NUMERIC(12,2) NOT NULL,
		position   INT NOT NULL,
		PRIMARY KEY (order_id, product_id)
	)`,
	`CREATE TABLE IF NOT EXISTS payment_sessions (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL REFERENCES users(id),
		order_id   TEXT NOT NULL DEFAULT '',
		package_id TEXT NOT NULL DEFAULT '',
		amount     NUMERIC(12,2) NOT NULL,
		currency   TEXT NOT NULL,
		status     TEXT NOT NULL,
		url        TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// EnsureSchema creates missing tables; it is safe to run on every start.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := s.DB.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return nil
}
