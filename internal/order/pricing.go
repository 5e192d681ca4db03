package order

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/ecommerce-microservices/checkout-service/internal/apperr"
	"github.com/vasiliy-maslov/ecommerce-microservices/checkout-service/internal/catalog"
	"github.com/vasiliy-maslov/ecommerce-microservices/checkout-service/internal/payment"
)

// Quote is a cart priced from catalog data.
type Quote struct {
	LineItems   []payment.LineItem
	Snapshot    []LineSnapshot
	TotalAmount decimal.Decimal
	// Skipped holds ids dropped by lenient pricing.
	Skipped []int64
}

type Pricer struct {
	catalog catalog.Repository
}

func NewPricer(catalogRepo catalog.Repository) *Pricer {
	return &Pricer{catalog: catalogRepo}
}

// Price rejects the whole cart when any product id is unknown.
func (p *Pricer) Price(ctx context.Context, items []CartItem) (*Quote, error) {
	return p.price(ctx, items, false)
}

// PriceLenient skips unknown product ids instead of failing.
func (p *Pricer) PriceLenient(ctx context.Context, items []CartItem) (*Quote, error) {
	return p.price(ctx, items, true)
}

func (p *Pricer) price(ctx context.Context, items []CartItem, lenient bool) (*Quote, error) {
	ids := distinctIDs(items)

	products, err := p.catalog.FindByIDs(ctx, ids)
	if err != nil {
		log.Error().Err(err).Ints64("product_ids", ids).Msg("pricing: failed to load products")
		return nil, apperr.Internal("Could not load products", err)
	}

	if !lenient && len(products) != len(ids) {
		log.Warn().Ints64("product_ids", ids).Int("found", len(products)).Msg("pricing: unknown products in cart")
		return nil, apperr.Validation("One or more products are invalid")
	}

	byID := make(map[int64]catalog.Product, len(products))
	for _, product := range products {
		byID[product.ID] = product
	}

	quote := &Quote{
		LineItems:   make([]payment.LineItem, 0, len(items)),
		Snapshot:    make([]LineSnapshot, 0, len(items)),
		TotalAmount: decimal.Zero,
	}

	for i, item := range items {
		product, ok := byID[item.ProductID]
		if !ok {
			if lenient {
				quote.Skipped = append(quote.Skipped, item.ProductID)
				continue
			}
			return nil, apperr.Validation("Product not found").WithDetails("id", item.ProductID)
		}

		if !product.Price.Valid || !product.Price.Decimal.IsPositive() {
			log.Error().Int64("product_id", product.ID).Int("index", i).Msg("pricing: product has invalid price")
			return nil, apperr.Integrity("Invalid product price").WithDetails("id", item.ProductID)
		}
		unitPrice := product.Price.Decimal
		qty := decimal.NewFromInt(int64(item.Quantity))

		quote.TotalAmount = quote.TotalAmount.Add(unitPrice.Mul(qty))
		quote.LineItems = append(quote.LineItems, payment.LineItem{
			Name:            product.Name,
			UnitAmountMinor: ToMinorUnits(unitPrice),
			Quantity:        int64(item.Quantity),
		})
		quote.Snapshot = append(quote.Snapshot, LineSnapshot{
			ProductID: product.ID,
			Name:      product.Name,
			UnitPrice: unitPrice,
			Quantity:  item.Quantity,
		})
	}

	return quote, nil
}

// ToMinorUnits converts a major-unit price to cents, rounding half up.
func ToMinorUnits(price decimal.Decimal) int64 {
	return price.Shift(2).Round(0).IntPart()
}

func distinctIDs(items []CartItem) []int64 {
	seen := make(map[int64]struct{}, len(items))
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	return ids
}
