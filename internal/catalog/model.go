package catalog

import "github.com/shopspring/decimal"

// Product is the authoritative catalog row used for pricing. Price is invalid
// when the stored value is NULL or not a number.
type Product struct {
	ID    int64               `json:"id" db:"id"`
	Name  string              `json:"name" db:"name"`
	Price decimal.NullDecimal `json:"price" db:"price"`
}
