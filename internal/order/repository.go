package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrDuplicateSession = errors.New("an order already exists for this payment session")
)

type Repository interface {
	CreateOrder(ctx context.Context, order *Order) error
	// MarkPaidBySession moves the order for sessionID from pending to paid in
	// a single statement.
	MarkPaidBySession(ctx context.Context, sessionID string) (ApplyResult, error)
	GetOrdersByUserID(ctx context.Context, userID string, page PageQuery) ([]Order, error)
}

// PageQuery is a keyset page: rows strictly older than After, newest first.
type PageQuery struct {
	Limit int
	After *Cursor
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) CreateOrder(ctx context.Context, orderInput *Order) (err error) {
	if orderInput.ID == uuid.Nil {
		genID, genErr := uuid.NewV4()
		if genErr != nil {
			return fmt.Errorf("repository: failed to generate order ID: %w", genErr)
		}
		orderInput.ID = genID
	}

	shipping := orderInput.ShippingDetails
	if shipping == nil {
		shipping = map[string]any{}
	}
	shippingJSON, err := json.Marshal(shipping)
	if err != nil {
		return fmt.Errorf("repository: failed to encode shipping details: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		} else if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				log.Error().Err(rbErr).Stringer("order_id", orderInput.ID).Msg("repository: failed to rollback transaction")
			}
		}
	}()

	now := time.Now().UTC().Truncate(time.Microsecond)

	queryOrder := `
		INSERT INTO orders (id, stripe_session_id, status, total_amount, user_id, shipping_details, created_at, updated_at)
		VALUES ($1, $2, $3, $4::text::numeric, $5, $6, $7, $7)
	`
	_, err = tx.Exec(ctx, queryOrder,
		orderInput.ID,
		orderInput.StripeSessionID,
		string(orderInput.Status),
		orderInput.TotalAmount.String(),
		orderInput.UserID,
		shippingJSON,
		now,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrDuplicateSession
		}
		return fmt.Errorf("repository: failed to insert order: %w", err)
	}

	queryItem := `
		INSERT INTO order_items (id, order_id, line_no, product_id, name, unit_price, quantity, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::text::numeric, $7, $8)
	`
	for i, line := range orderInput.Products {
		itemID, genErr := uuid.NewV4()
		if genErr != nil {
			err = fmt.Errorf("repository: failed to generate order item ID: %w", genErr)
			return err
		}

		_, err = tx.Exec(ctx, queryItem,
			itemID,
			orderInput.ID,
			i,
			line.ProductID,
			line.Name,
			line.UnitPrice.String(),
			line.Quantity,
			now,
		)
		if err != nil {
			return fmt.Errorf("repository: failed to insert order item %d for order %s: %w", i, orderInput.ID, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("repository: failed to commit transaction: %w", err)
	}

	orderInput.CreatedAt = now
	orderInput.UpdatedAt = now

	return nil
}

func (r *postgresRepository) MarkPaidBySession(ctx context.Context, sessionID string) (ApplyResult, error) {
	// The status predicate on the UPDATE is re-checked after a concurrent
	// writer commits, so only one delivery can win the transition.
	query := `
		WITH target AS (
			SELECT id, status FROM orders WHERE stripe_session_id = $1
		), updated AS (
			UPDATE orders o
			SET status = 'paid', updated_at = NOW()
			FROM target t
			WHERE o.id = t.id AND o.status = 'pending'
			RETURNING o.id
		)
		SELECT t.status, EXISTS (SELECT 1 FROM updated)
		FROM target t
	`

	var (
		status  OrderStatus
		changed bool
	)
	err := r.db.QueryRow(ctx, query, sessionID).Scan(&status, &changed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ApplyNotFound, nil
		}
		return "", fmt.Errorf("repository: failed to mark order paid for session %s: %w", sessionID, err)
	}

	switch {
	case changed:
		return ApplyTransitioned, nil
	case status == StatusPaid, status == StatusPending:
		// pending here means a concurrent delivery committed the transition first.
		return ApplyAlreadyPaid, nil
	default:
		return ApplyIgnored, nil
	}
}

func (r *postgresRepository) GetOrdersByUserID(ctx context.Context, userID string, page PageQuery) ([]Order, error) {
	args := []any{userID, page.Limit}
	userOrdersQuery := `
		SELECT id, stripe_session_id, status, total_amount::text, user_id, shipping_details, created_at, updated_at
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	if page.After != nil {
		userOrdersQuery = `
			SELECT id, stripe_session_id, status, total_amount::text, user_id, shipping_details, created_at, updated_at
			FROM orders
			WHERE user_id = $1 AND (created_at, id) < ($3::timestamptz, $4::uuid)
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		`
		args = append(args, page.After.CreatedAt, page.After.ID)
	}

	orderRows, err := r.db.Query(ctx, userOrdersQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders for user id %s: %w", userID, err)
	}
	defer orderRows.Close()

	ordersMap := make(map[uuid.UUID]*Order)
	var orderIDs []uuid.UUID

	for orderRows.Next() {
		var (
			o            Order
			rawTotal     string
			shippingJSON []byte
		)
		err := orderRows.Scan(
			&o.ID,
			&o.StripeSessionID,
			&o.Status,
			&rawTotal,
			&o.UserID,
			&shippingJSON,
			&o.CreatedAt,
			&o.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed scan order for user id %s: %w", userID, err)
		}
		if o.TotalAmount, err = decimal.NewFromString(rawTotal); err != nil {
			return nil, fmt.Errorf("repository: invalid total amount for order %s: %w", o.ID, err)
		}
		if len(shippingJSON) > 0 {
			if err := json.Unmarshal(shippingJSON, &o.ShippingDetails); err != nil {
				return nil, fmt.Errorf("repository: invalid shipping details for order %s: %w", o.ID, err)
			}
			if len(o.ShippingDetails) == 0 {
				o.ShippingDetails = nil
			}
		}
		o.Products = make([]LineSnapshot, 0)
		ordersMap[o.ID] = &o
		orderIDs = append(orderIDs, o.ID)
	}

	if err = orderRows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating orders for user id %s: %w", userID, err)
	}

	if len(orderIDs) == 0 {
		return []Order{}, nil
	}

	userOrderItemsQuery := `
		SELECT order_id, product_id, name, unit_price::text, quantity
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, line_no
	`
	itemRows, err := r.db.Query(ctx, userOrderItemsQuery, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query order items for user id %s: %w", userID, err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var (
			orderID  uuid.UUID
			line     LineSnapshot
			rawPrice string
		)
		if err := itemRows.Scan(&orderID, &line.ProductID, &line.Name, &rawPrice, &line.Quantity); err != nil {
			return nil, fmt.Errorf("repository: failed to scan order item for user id %s: %w", userID, err)
		}
		if line.UnitPrice, err = decimal.NewFromString(rawPrice); err != nil {
			return nil, fmt.Errorf("repository: invalid unit price for order %s: %w", orderID, err)
		}

		if o, ok := ordersMap[orderID]; ok {
			o.Products = append(o.Products, line)
		}
	}

	if err = itemRows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating order items by user id %s: %w", userID, err)
	}

	resultOrders := make([]Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		resultOrders = append(resultOrders, *ordersMap[id])
	}

	return resultOrders, nil
}
