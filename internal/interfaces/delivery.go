package interfaces

import "context"

// DeliveryGateway sends issued secrets out of band.
type DeliveryGateway interface {
	SendResetLink(ctx context.Context, email string, token string) error
	SendResetOTP(ctx context.Context, mobile string, otp string) error
}

// IssuanceThrottle decides whether a new secret may be issued for an identifier.
type IssuanceThrottle interface {
	Allow(ctx context.Context, channel string, identifier string) (bool, error)
}
