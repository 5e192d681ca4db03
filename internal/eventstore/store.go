// Package eventstore remembers which provider events were already applied.
package eventstore

import "context"

type Store interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	// Mark records eventID as applied.
	Mark(ctx context.Context, eventID string) error
}

// Noop never remembers anything. Used when Redis is not configured; webhook
// application is idempotent without it.
type Noop struct{}

func (Noop) Seen(context.Context, string) (bool, error) { return false, nil }

func (Noop) Mark(context.Context, string) error { return nil }
