package order_test

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/ecommerce-microservices/checkout-service/internal/order"
)

func TestCursor_RoundTrip(t *testing.T) {
	id := uuid.Must(uuid.FromString("6f1c1f0e-5a61-4f7a-9a3b-0c5c9d0b8e11"))
	createdAt := time.Date(2026, 3, 14, 15, 9, 26, 535897000, time.FixedZone("CET", 3600))

	encoded := order.Cursor{CreatedAt: createdAt, ID: id}.Encode()
	assert.NotContains(t, encoded, "=")

	decoded, err := order.DecodeCursor(encoded)
	require.NoError(t, err)
	assert.Equal(t, id, decoded.ID)
	assert.True(t, createdAt.Equal(decoded.CreatedAt))
}

func TestDecodeCursor_Invalid(t *testing.T) {
	enc := func(s string) string { return base64.RawURLEncoding.EncodeToString([]byte(s)) }

	tests := []struct {
		name   string
		cursor string
	}{
		{name: "not_base64", cursor: "%%%"},
		{name: "no_separator", cursor: enc("2026-03-14T15:09:26Z")},
		{name: "bad_time", cursor: enc("yesterday|6f1c1f0e-5a61-4f7a-9a3b-0c5c9d0b8e11")},
		{name: "bad_id", cursor: enc("2026-03-14T15:09:26Z|not-a-uuid")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := order.DecodeCursor(tt.cursor)
			assert.Nil(t, c)
			assert.ErrorIs(t, err, order.ErrInvalidCursor)
		})
	}
}

func TestCanTransition(t *testing.T) {
	assert.True(t, order.CanTransition(order.StatusPending, order.StatusPaid))
	assert.False(t, order.CanTransition(order.StatusPaid, order.StatusPending))
	assert.False(t, order.CanTransition(order.StatusPreorder, order.StatusPaid))
	assert.False(t, order.CanTransition(order.StatusPaid, order.StatusPaid))
}
