package interfaces

import (
	"context"

	"asklytics/internal/models"
)

// UserStore is the read side of the account store used by the reset flows.
// Lookups return repository.ErrNotFound when no account matches.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByMobile(ctx context.Context, mobile string) (*models.User, error)
}
