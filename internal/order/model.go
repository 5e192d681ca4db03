package order

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusPending  OrderStatus = "pending"
	StatusPaid     OrderStatus = "paid"
	StatusPreorder OrderStatus = "preorder"
)

func (os OrderStatus) String() string {
	return string(os)
}

var allowedTransitions = map[OrderStatus]map[OrderStatus]bool{
	StatusPending: {
		StatusPaid: true,
	},
	StatusPaid:     {},
	StatusPreorder: {},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to OrderStatus) bool {
	return allowedTransitions[from][to]
}

// LineSnapshot is the pricing data copied from the catalog when the order was
// created. It never changes afterwards.
type LineSnapshot struct {
	ProductID int64           `json:"productId"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
}

type Order struct {
	ID              uuid.UUID       `json:"id"`
	StripeSessionID *string         `json:"stripeSessionId"`
	Products        []LineSnapshot  `json:"products"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	Status          OrderStatus     `json:"status"`
	UserID          *string         `json:"user"`
	ShippingDetails map[string]any  `json:"shippingDetails,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// ApplyResult is the outcome of a paid transition keyed by session id.
type ApplyResult string

const (
	ApplyTransitioned ApplyResult = "transitioned"
	ApplyAlreadyPaid  ApplyResult = "already_paid"
	ApplyNotFound     ApplyResult = "not_found"
	ApplyIgnored      ApplyResult = "ignored"
	ApplyReplayed     ApplyResult = "replayed"
)
