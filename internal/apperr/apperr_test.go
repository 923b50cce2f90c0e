package apperr_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ariefcatur/shopcore/internal/apperr"
)

func TestKindMatchesThroughWrapping(t *testing.T) {
	err := fmt.Errorf("create order: %w", apperr.Newf(apperr.KindInsufficientStock, "product %s", "p1"))

	assert.True(t, errors.Is(err, apperr.InsufficientStock))
	assert.False(t, errors.Is(err, apperr.NotFound))
	assert.Equal(t, apperr.KindInsufficientStock, apperr.KindOf(err))
}

func TestUntypedErrorIsInternal(t *testing.T) {
	err := errors.New("connection reset")

	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	assert.Equal(t, "internal error", apperr.PublicMessage(err))
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := map[apperr.Kind]int{
		apperr.KindUnauthenticated:     http.StatusUnauthorized,
		apperr.KindForbidden:           http.StatusForbidden,
		apperr.KindValidation:          http.StatusBadRequest,
		apperr.KindNotFound:            http.StatusNotFound,
		apperr.KindInsufficientStock:   http.StatusConflict,
		apperr.KindInvalidTransition:   http.StatusConflict,
		apperr.KindProviderUnavailable: http.StatusBadGateway,
		apperr.KindInternal:            http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, apperr.HTTPStatus(kind), kind)
	}
}

func TestPublicMessageHidesCause(t *testing.T) {
	err := apperr.Wrap(apperr.KindProviderUnavailable, "payment provider unavailable", errors.New("stripe: 500 body=secret"))

	assert.Equal(t, "payment provider unavailable", apperr.PublicMessage(err))
	assert.NotContains(t, apperr.PublicMessage(err), "secret")
}
