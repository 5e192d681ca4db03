package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

type Repository interface {
	// FindByIDs returns the products matching ids. Unknown ids are absent from
	// the result; the order of the result is unspecified.
	FindByIDs(ctx context.Context, ids []int64) ([]Product, error)
}

// DB is the subset of pgxpool.Pool the repository needs.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type postgresRepository struct {
	db DB
}

func NewRepository(db DB) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) FindByIDs(ctx context.Context, ids []int64) ([]Product, error) {
	if len(ids) == 0 {
		return []Product{}, nil
	}

	query := `
		SELECT id, name, price::text
		FROM products
		WHERE id = ANY($1)
	`

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query products: %w", err)
	}
	defer rows.Close()

	products := make([]Product, 0, len(ids))
	for rows.Next() {
		var (
			p        Product
			rawPrice *string
		)
		if err := rows.Scan(&p.ID, &p.Name, &rawPrice); err != nil {
			return nil, fmt.Errorf("repository: failed to scan product: %w", err)
		}
		p.Price = parsePrice(p.ID, rawPrice)
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating products: %w", err)
	}

	return products, nil
}

// parsePrice maps NULL and NaN to an invalid price instead of failing the
// whole lookup; the pricing engine decides what an invalid price means.
func parsePrice(productID int64, raw *string) decimal.NullDecimal {
	if raw == nil {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(*raw)
	if err != nil {
		log.Warn().Err(err).Int64("product_id", productID).Str("price", *raw).Msg("repository: unparsable product price")
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}
