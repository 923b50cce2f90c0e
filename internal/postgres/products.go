package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/shopcore/internal/apperr"
	"github.com/ariefcatur/shopcore/internal/catalog"
)

var errProductNotFound = apperr.New(apperr.KindNotFound, "product not found")

// Money columns are read as text so no precision is lost on the way to decimal.
const productColumns = `id, seller_id, title, description, price::text, stock, created_at, updated_at`

func (s *Store) CreateProduct(ctx context.Context, p catalog.Product) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO products(id, seller_id, title, description, price, stock, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5::numeric,$6,$7,$8)`,
		p.ID, p.SellerID, p.Title, p.Description, p.Price.String(), p.Stock, p.CreatedAt, p.UpdatedAt)
	return err
}

func (s *Store) Product(ctx context.Context, id string) (catalog.Product, error) {
	return scanProduct(s.conn(ctx).QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id))
}

func (s *Store) ListProducts(ctx context.Context) ([]catalog.Product, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []catalog.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanProduct(row pgx.Row) (catalog.Product, error) {
	var p catalog.Product
	var price string
	err := row.Scan(&p.ID, &p.SellerID, &p.Title, &p.Description, &price, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Product{}, errProductNotFound
	}
	if err != nil {
		return catalog.Product{}, err
	}
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return catalog.Product{}, err
	}
	return p, nil
}
