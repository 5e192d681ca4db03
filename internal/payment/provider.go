// Package payment talks to the hosted payment provider.
package payment

import (
	"context"
	"errors"
)

const EventCheckoutSessionCompleted = "checkout.session.completed"

var (
	ErrWebhookSecretMissing = errors.New("webhook signing secret is not configured")
	ErrInvalidSignature     = errors.New("invalid webhook signature")
	ErrMalformedEvent       = errors.New("malformed webhook event")
	ErrProviderUnavailable  = errors.New("payment provider unavailable")
)

// LineItem is priced in the currency's minor unit.
type LineItem struct {
	Name            string
	UnitAmountMinor int64
	Quantity        int64
}

type SessionRequest struct {
	Currency   string
	SuccessURL string
	CancelURL  string
	LineItems  []LineItem
}

type Session struct {
	ID  string
	URL string
}

// Event is a verified provider notification. SessionID is only set for
// checkout session events.
type Event struct {
	ID        string
	Type      string
	SessionID string
}

type Provider interface {
	CreateCheckoutSession(ctx context.Context, req SessionRequest) (*Session, error)
	// ConstructEvent verifies signature against the raw payload and decodes it.
	ConstructEvent(payload []byte, signature string) (*Event, error)
}
