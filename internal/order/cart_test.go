package order_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/ecommerce-microservices/checkout-service/internal/apperr"
	"github.com/vasiliy-maslov/ecommerce-microservices/checkout-service/internal/order"
)

func TestNormalizeCart(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		want      []order.CartItem
		wantMsg   string
		wantIndex any
	}{
		{
			name:    "valid_numbers",
			payload: `[{"id":1,"quantity":2},{"id":2,"quantity":1}]`,
			want:    []order.CartItem{{ProductID: 1, Quantity: 2}, {ProductID: 2, Quantity: 1}},
		},
		{
			name:    "string_values_are_coerced",
			payload: `[{"id":"7","quantity":"3"}]`,
			want:    []order.CartItem{{ProductID: 7, Quantity: 3}},
		},
		{
			name:    "integral_float_quantity",
			payload: `[{"id":7,"quantity":2.0}]`,
			want:    []order.CartItem{{ProductID: 7, Quantity: 2}},
		},
		{
			name:    "duplicate_ids_keep_order",
			payload: `[{"id":2,"quantity":1},{"id":1,"quantity":1},{"id":2,"quantity":4}]`,
			want:    []order.CartItem{{ProductID: 2, Quantity: 1}, {ProductID: 1, Quantity: 1}, {ProductID: 2, Quantity: 4}},
		},
		{name: "empty_array", payload: `[]`, wantMsg: "No products provided"},
		{name: "missing", payload: ``, wantMsg: "No products provided"},
		{name: "null", payload: `null`, wantMsg: "No products provided"},
		{name: "object_instead_of_array", payload: `{"id":1,"quantity":1}`, wantMsg: "No products provided"},
		{name: "zero_quantity", payload: `[{"id":1,"quantity":1},{"id":2,"quantity":0}]`, wantMsg: "Invalid product item", wantIndex: 1},
		{name: "negative_quantity", payload: `[{"id":1,"quantity":-1}]`, wantMsg: "Invalid product item", wantIndex: 0},
		{name: "fractional_quantity", payload: `[{"id":1,"quantity":1},{"id":2,"quantity":1},{"id":3,"quantity":1.5}]`, wantMsg: "Invalid product item", wantIndex: 2},
		{name: "boolean_quantity", payload: `[{"id":1,"quantity":true}]`, wantMsg: "Invalid product item", wantIndex: 0},
		{name: "missing_quantity", payload: `[{"id":1}]`, wantMsg: "Invalid product item", wantIndex: 0},
		{name: "huge_quantity", payload: `[{"id":1,"quantity":1000001}]`, wantMsg: "Invalid product item", wantIndex: 0},
		{name: "missing_id", payload: `[{"quantity":1}]`, wantMsg: "Invalid product item", wantIndex: 0},
		{name: "zero_id", payload: `[{"id":0,"quantity":1}]`, wantMsg: "Invalid product item", wantIndex: 0},
		{name: "empty_string_id", payload: `[{"id":"","quantity":1}]`, wantMsg: "Invalid product item", wantIndex: 0},
		{name: "non_numeric_id", payload: `[{"id":"abc","quantity":1}]`, wantMsg: "Invalid product item", wantIndex: 0},
		{name: "element_not_object", payload: `[{"id":1,"quantity":1},42]`, wantMsg: "Invalid product item", wantIndex: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := order.NormalizeCart(json.RawMessage(tt.payload))

			if tt.wantMsg == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.want, items)
				return
			}

			require.Error(t, err)
			assert.Nil(t, items)

			appErr, ok := apperr.As(err)
			require.True(t, ok)
			assert.Equal(t, apperr.KindValidation, appErr.Kind)
			assert.Equal(t, tt.wantMsg, appErr.Message)
			if tt.wantIndex != nil {
				assert.Equal(t, tt.wantIndex, appErr.Details["index"])
			}
		})
	}
}
