package apperr_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/ecommerce-microservices/checkout-service/internal/apperr"
)

func TestError_Status(t *testing.T) {
	tests := []struct {
		name string
		err  *apperr.Error
		want int
	}{
		{name: "validation", err: apperr.Validation("bad"), want: http.StatusBadRequest},
		{name: "unauthenticated", err: apperr.Unauthenticated("login"), want: http.StatusUnauthorized},
		{name: "bad_signature", err: apperr.BadSignature("sig", nil), want: http.StatusBadRequest},
		{name: "configuration", err: apperr.Configuration("cfg"), want: http.StatusInternalServerError},
		{name: "integrity", err: apperr.Integrity("price"), want: http.StatusInternalServerError},
		{name: "internal", err: apperr.Internal("boom", errors.New("db down")), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Status())
		})
	}
}

func TestError_WithDetailsDoesNotMutateOriginal(t *testing.T) {
	base := apperr.Validation("Invalid product item")
	withIndex := base.WithDetails("index", 3)

	assert.Nil(t, base.Details)
	assert.Equal(t, map[string]any{"index": 3}, withIndex.Details)
	assert.Equal(t, base.Message, withIndex.Message)
}

func TestAs_WrappedError(t *testing.T) {
	cause := errors.New("connection refused")
	wrapped := fmt.Errorf("checkout: %w", apperr.Internal("Could not create checkout session", cause))

	appErr, ok := apperr.As(wrapped)
	require.True(t, ok)
	assert.Equal(t, apperr.KindInternal, appErr.Kind)
	assert.ErrorIs(t, wrapped, cause)
	assert.True(t, apperr.IsKind(wrapped, apperr.KindInternal))
	assert.False(t, apperr.IsKind(cause, apperr.KindInternal))
}
