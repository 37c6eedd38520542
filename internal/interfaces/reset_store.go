package interfaces

import (
	"context"
	"time"

	"asklytics/internal/models"
)

// ResetStore persists at most one secret per channel per user.
//
// FindBySecret and RedeemSecret treat a missing, mismatched and expired secret
// the same way and return repository.ErrNotFound for all of them.
type ResetStore interface {
	// SetSecret overwrites the channel's secret and expiry in a single update.
	SetSecret(ctx context.Context, channel models.Channel, userID string, secret string, expiresAt time.Time) error

	// FindBySecret returns the user holding secret on channel with an expiry after now.
	// identifier scopes the mobile channel and is ignored for the email channel.
	FindBySecret(ctx context.Context, channel models.Channel, identifier string, secret string, now time.Time) (*models.User, error)

	// ClearSecret removes the channel's secret and expiry.
	ClearSecret(ctx context.Context, channel models.Channel, userID string) error

	// RedeemSecret sets the password hash and clears the channel's secret in one atomic
	// step, guarded on the secret still being present and unexpired.
	RedeemSecret(ctx context.Context, channel models.Channel, userID string, secret string, now time.Time, passwordHash string) error
}
