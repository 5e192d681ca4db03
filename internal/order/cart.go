package order

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/ecommerce-microservices/checkout-service/internal/apperr"
)

// MaxItemQuantity bounds a single cart line.
const MaxItemQuantity = 1_000_000

var (
	errNoProducts   = apperr.Validation("No products provided")
	errInvalidItem  = apperr.Validation("Invalid product item")
	maxQuantityDec  = decimal.NewFromInt(MaxItemQuantity)
	jsonNullLiteral = []byte("null")
)

type CartItem struct {
	ProductID int64 `json:"id"`
	Quantity  int   `json:"quantity"`
}

type rawCartItem struct {
	ID       json.RawMessage `json:"id"`
	Quantity json.RawMessage `json:"quantity"`
}

// NormalizeCart validates a client supplied list of {id, quantity} objects.
// The error of the first offending element carries its index.
func NormalizeCart(raw json.RawMessage) ([]CartItem, error) {
	var elems []json.RawMessage
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, errNoProducts
	}
	if err := json.Unmarshal(trimmed, &elems); err != nil || len(elems) == 0 {
		return nil, errNoProducts
	}

	items := make([]CartItem, 0, len(elems))
	for i, elem := range elems {
		item, ok := normalizeItem(elem)
		if !ok {
			return nil, errInvalidItem.WithDetails("index", i)
		}
		items = append(items, item)
	}

	return items, nil
}

func normalizeItem(elem json.RawMessage) (CartItem, bool) {
	elem = bytes.TrimSpace(elem)
	if len(elem) == 0 || elem[0] != '{' {
		return CartItem{}, false
	}

	var raw rawCartItem
	if err := json.Unmarshal(elem, &raw); err != nil {
		return CartItem{}, false
	}

	id, ok := parseProductID(raw.ID)
	if !ok {
		return CartItem{}, false
	}
	qty, ok := parseQuantity(raw.Quantity)
	if !ok {
		return CartItem{}, false
	}

	return CartItem{ProductID: id, Quantity: qty}, true
}

// parseProductID accepts a positive JSON integer or a string of digits.
func parseProductID(raw json.RawMessage) (int64, bool) {
	s, ok := scalarText(raw)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// parseQuantity accepts any integral positive number, as a JSON number or a
// numeric string.
func parseQuantity(raw json.RawMessage) (int, bool) {
	s, ok := scalarText(raw)
	if !ok {
		return 0, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsInteger() || !d.IsPositive() || d.GreaterThan(maxQuantityDec) {
		return 0, false
	}
	return int(d.IntPart()), true
}

// scalarText returns the textual value of a JSON number or string. Booleans,
// null, objects and arrays are rejected.
func scalarText(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, jsonNullLiteral) {
		return "", false
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		s = strings.TrimSpace(s)
		return s, s != ""
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", false
		}
		return n.String(), true
	default:
		return "", false
	}
}
