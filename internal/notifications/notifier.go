package notifications

import (
	"context"
	"time"
)

type SessionRevokedInput struct {
	UserID string
	Email  string
	Reason string
	At     time.Time
}

// Notifier delivers security alerts to account owners or operators.
type Notifier interface {
	SendSessionRevoked(ctx context.Context, input SessionRevokedInput) error
}
