package catalog_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/shopcore/internal/apperr"
	"github.com/ariefcatur/shopcore/internal/catalog"
	"github.com/ariefcatur/shopcore/internal/memstore"
)

func TestCreateAndAvailable(t *testing.T) {
	s := &catalog.Service{Store: memstore.New()}
	ctx := context.Background()

	p, err := s.Create(ctx, "s1", catalog.CreateInput{
		Title: "  Demo ", Price: decimal.RequireFromString("9.999"), Stock: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, "Demo", p.Title)
	assert.True(t, p.Price.Equal(decimal.NewFromInt(10)), p.Price.String())
	assert.Equal(t, "s1", p.SellerID)

	got, err := s.Available(ctx, p.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = s.Available(ctx, p.ID, 3)
	assert.True(t, errors.Is(err, apperr.InsufficientStock))

	_, err = s.Available(ctx, "missing", 1)
	assert.True(t, errors.Is(err, apperr.NotFound))
}

func TestCreateValidation(t *testing.T) {
	s := &catalog.Service{Store: memstore.New()}
	cases := map[string]catalog.CreateInput{
		"no title":       {Price: decimal.NewFromInt(1), Stock: 1},
		"negative price": {Title: "x", Price: decimal.NewFromInt(-1), Stock: 1},
		"negative stock": {Title: "x", Price: decimal.NewFromInt(1), Stock: -1},
	}
	for name, in := range cases {
		_, err := s.Create(context.Background(), "s1", in)
		assert.True(t, errors.Is(err, apperr.Validation), name)
	}
}
