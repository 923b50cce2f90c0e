// Package catalog is the read model cart and orders validate against, plus
// the seller-side product creation it is fed by.
package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/shopcore/internal/apperr"
)

type Product struct {
	ID          string          `json:"id"`
	SellerID    string          `json:"sellerId"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Store returns apperr.NotFound for unknown products.
type Store interface {
	CreateProduct(ctx context.Context, p Product) error
	Product(ctx context.Context, id string) (Product, error)
	ListProducts(ctx context.Context) ([]Product, error)
}

type Service struct {
	Store Store
}

type CreateInput struct {
	Title       string
	Description string
	Price       decimal.Decimal
	Stock       int
}

func (s *Service) Create(ctx context.Context, sellerID string, in CreateInput) (Product, error) {
	title := strings.TrimSpace(in.Title)
	switch {
	case title == "":
		return Product{}, apperr.New(apperr.KindValidation, "title is required")
	case in.Price.IsNegative():
		return Product{}, apperr.New(apperr.KindValidation, "price must not be negative")
	case in.Stock < 0:
		return Product{}, apperr.New(apperr.KindValidation, "stock must not be negative")
	}
	now := time.Now().UTC()
	p := Product{
		ID:          uuid.NewString(),
		SellerID:    sellerID,
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		Price:       in.Price.Round(2),
		Stock:       in.Stock,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.Store.CreateProduct(ctx, p); err != nil {
		return Product{}, err
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, id string) (Product, error) {
	return s.Store.Product(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]Product, error) {
	return s.Store.ListProducts(ctx)
}

// Available checks existence and that qty units are in stock right now.
func (s *Service) Available(ctx context.Context, productID string, qty int) (Product, error) {
	p, err := s.Store.Product(ctx, productID)
	if err != nil {
		return Product{}, err
	}
	if qty > p.Stock {
		return Product{}, apperr.Newf(apperr.KindInsufficientStock, "only %d of product %s in stock", p.Stock, productID)
	}
	return p, nil
}
