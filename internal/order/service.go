package order

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-microservices/checkout-service/internal/apperr"
	"github.com/vasiliy-maslov/ecommerce-microservices/checkout-service/internal/eventstore"
	"github.com/vasiliy-maslov/ecommerce-microservices/checkout-service/internal/payment"
)

type CheckoutInput struct {
	Products json.RawMessage
	UserID   string
}

type CheckoutResult struct {
	CheckoutURL string    `json:"checkoutUrl"`
	SessionID   string    `json:"sessionId"`
	OrderID     uuid.UUID `json:"-"`
}

type PreOrderInput struct {
	Products        json.RawMessage
	ShippingDetails map[string]any
	UserID          string
}

type PageRequest struct {
	Limit  int
	Cursor string
}

type OrderPage struct {
	Orders     []Order `json:"data"`
	NextCursor string  `json:"nextCursor,omitempty"`
}

type WebhookOutcome struct {
	EventID   string
	EventType string
	SessionID string
	Result    ApplyResult
}

type Service interface {
	Checkout(ctx context.Context, in CheckoutInput) (*CheckoutResult, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookOutcome, error)
	CreatePreOrder(ctx context.Context, in PreOrderInput) (*Order, error)
	ListMyOrders(ctx context.Context, userID string, page PageRequest) (*OrderPage, error)
}

type Options struct {
	Currency    string
	FrontendURL string
}

type service struct {
	orderRepo Repository
	pricer    *Pricer
	provider  payment.Provider
	events    eventstore.Store
	opts      Options
}

// NewService wires the order workflow. provider may be nil, in which case
// checkout and webhooks fail with a configuration error; events may be nil.
func NewService(orderRepo Repository, pricer *Pricer, provider payment.Provider, events eventstore.Store, opts Options) Service {
	if events == nil {
		events = eventstore.Noop{}
	}
	if opts.Currency == "" {
		opts.Currency = "eur"
	}
	opts.FrontendURL = strings.TrimRight(opts.FrontendURL, "/")

	return &service{
		orderRepo: orderRepo,
		pricer:    pricer,
		provider:  provider,
		events:    events,
		opts:      opts,
	}
}

func (s *service) Checkout(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	if s.provider == nil {
		log.Error().Msg("service: STRIPE_SECRET_KEY is not set; checkout functionality is disabled")
		return nil, apperr.Configuration("Stripe is not configured on the server.")
	}

	items, err := NormalizeCart(in.Products)
	if err != nil {
		log.Warn().Err(err).Msg("service: rejected checkout cart")
		return nil, err
	}

	quote, err := s.pricer.Price(ctx, items)
	if err != nil {
		return nil, err
	}

	sess, err := s.provider.CreateCheckoutSession(ctx, payment.SessionRequest{
		Currency:   s.opts.Currency,
		SuccessURL: s.opts.FrontendURL + "/checkout?success=true",
		CancelURL:  s.opts.FrontendURL + "/checkout?canceled=true",
		LineItems:  quote.LineItems,
	})
	if err != nil {
		log.Error().Err(err).Int("lines", len(quote.LineItems)).Msg("service: failed to create payment session")
		return nil, apperr.Internal("Could not create checkout session", err)
	}

	sessionID := sess.ID
	newOrder := &Order{
		StripeSessionID: &sessionID,
		Products:        quote.Snapshot,
		TotalAmount:     quote.TotalAmount,
		Status:          StatusPending,
		UserID:          optionalUser(in.UserID),
	}
	if err := s.orderRepo.CreateOrder(ctx, newOrder); err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("service: failed to persist pending order, payment session is orphaned")
		return nil, apperr.Internal("Could not create checkout session", err)
	}

	log.Info().
		Stringer("order_id", newOrder.ID).
		Str("session_id", sessionID).
		Stringer("total_amount", newOrder.TotalAmount).
		Msg("service: pending order created")

	return &CheckoutResult{CheckoutURL: sess.URL, SessionID: sessionID, OrderID: newOrder.ID}, nil
}

func (s *service) HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookOutcome, error) {
	if s.provider == nil {
		log.Error().Msg("service: STRIPE_SECRET_KEY is not set; Stripe webhook is disabled")
		return nil, apperr.Configuration("Stripe webhook not configured")
	}

	if len(payload) == 0 || strings.TrimSpace(signature) == "" {
		return nil, apperr.BadSignature("Missing Stripe signature or raw body", nil)
	}

	ev, err := s.provider.ConstructEvent(payload, signature)
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrWebhookSecretMissing):
			log.Error().Msg("service: STRIPE_WEBHOOK_SECRET is not set; Stripe webhook is disabled for security")
			return nil, apperr.BadSignature("Stripe webhook not configured", err)
		case errors.Is(err, payment.ErrMalformedEvent):
			log.Warn().Err(err).Msg("service: malformed Stripe event")
			return nil, apperr.Validation("Malformed Stripe event")
		default:
			log.Warn().Err(err).Msg("service: Stripe webhook signature verification failed")
			return nil, apperr.BadSignature("Invalid Stripe signature", err)
		}
	}

	outcome := &WebhookOutcome{EventID: ev.ID, EventType: ev.Type, SessionID: ev.SessionID, Result: ApplyIgnored}

	if ev.Type != payment.EventCheckoutSessionCompleted {
		log.Info().Str("event_type", ev.Type).Str("event_id", ev.ID).Msg("service: unhandled Stripe event type")
		return outcome, nil
	}

	seen, err := s.events.Seen(ctx, ev.ID)
	if err != nil {
		log.Warn().Err(err).Str("event_id", ev.ID).Msg("service: event store lookup failed, applying event")
	} else if seen {
		log.Info().Str("event_id", ev.ID).Str("session_id", ev.SessionID).Msg("service: Stripe event already applied")
		outcome.Result = ApplyReplayed
		return outcome, nil
	}

	result, err := s.orderRepo.MarkPaidBySession(ctx, ev.SessionID)
	if err != nil {
		log.Error().Err(err).
			Str("event_type", ev.Type).
			Str("event_id", ev.ID).
			Str("session_id", ev.SessionID).
			Msg("service: error while handling Stripe webhook event")
		return nil, apperr.Internal("Error while processing Stripe webhook", err)
	}

	logEvent := log.Info()
	if result == ApplyNotFound || result == ApplyIgnored {
		logEvent = log.Warn()
	}
	logEvent.
		Str("event_id", ev.ID).
		Str("session_id", ev.SessionID).
		Str("result", string(result)).
		Msg("service: checkout session completed")

	if err := s.events.Mark(ctx, ev.ID); err != nil {
		log.Warn().Err(err).Str("event_id", ev.ID).Msg("service: failed to record applied event")
	}

	outcome.Result = result
	return outcome, nil
}

func (s *service) CreatePreOrder(ctx context.Context, in PreOrderInput) (*Order, error) {
	items, err := NormalizeCart(in.Products)
	if err != nil {
		log.Warn().Err(err).Msg("service: rejected pre-order cart")
		return nil, err
	}

	quote, err := s.pricer.PriceLenient(ctx, items)
	if err != nil {
		return nil, err
	}
	if len(quote.Skipped) > 0 {
		log.Warn().Ints64("skipped_product_ids", quote.Skipped).Msg("service: unknown products dropped from pre-order")
	}
	if len(quote.Snapshot) == 0 {
		return nil, apperr.Validation("No valid products provided")
	}

	newOrder := &Order{
		Products:        quote.Snapshot,
		TotalAmount:     quote.TotalAmount,
		Status:          StatusPreorder,
		UserID:          optionalUser(in.UserID),
		ShippingDetails: in.ShippingDetails,
	}
	if err := s.orderRepo.CreateOrder(ctx, newOrder); err != nil {
		log.Error().Err(err).Msg("service: failed to create pre-order in repository")
		return nil, apperr.Internal("Could not create pre-order", err)
	}

	log.Info().Stringer("order_id", newOrder.ID).Stringer("total_amount", newOrder.TotalAmount).Msg("service: pre-order created")

	return newOrder, nil
}

func (s *service) ListMyOrders(ctx context.Context, userID string, page PageRequest) (*OrderPage, error) {
	if userID == "" {
		return nil, apperr.Unauthenticated("You must be logged in to view your orders")
	}

	limit := page.Limit
	switch {
	case limit == 0:
		limit = DefaultPageLimit
	case limit < 0:
		return nil, apperr.Validation("Invalid limit").WithDetails("limit", page.Limit)
	case limit > MaxPageLimit:
		limit = MaxPageLimit
	}

	query := PageQuery{Limit: limit + 1}
	if page.Cursor != "" {
		after, err := DecodeCursor(page.Cursor)
		if err != nil {
			return nil, apperr.Validation("Invalid cursor")
		}
		query.After = after
	}

	orders, err := s.orderRepo.GetOrdersByUserID(ctx, userID, query)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("service: failed to fetch user orders in repository")
		return nil, apperr.Internal("Could not fetch orders", err)
	}

	result := &OrderPage{Orders: orders}
	if len(orders) > limit {
		result.Orders = orders[:limit]
		last := result.Orders[limit-1]
		result.NextCursor = Cursor{CreatedAt: last.CreatedAt, ID: last.ID}.Encode()
	}

	return result, nil
}

func optionalUser(userID string) *string {
	if userID == "" {
		return nil
	}
	return &userID
}
