package models

import "time"

// Channel is the delivery and validation path of a reset secret.
// Each channel keeps its own secret and expiry on the user record.
type Channel string

const (
	ChannelEmailLink Channel = "email"
	ChannelMobileOTP Channel = "mobile"
)

func (c Channel) Valid() bool {
	return c == ChannelEmailLink || c == ChannelMobileOTP
}

func (c Channel) String() string { return string(c) }

// ResetSecret is a freshly issued secret before it is handed to delivery.
// Value is the raw secret as the user will see it.
type ResetSecret struct {
	Channel   Channel
	Value     string
	ExpiresAt time.Time
}

// ResetCredentials carries what the user presents when redeeming a secret.
// Identifier is the mobile number for ChannelMobileOTP and unused for ChannelEmailLink.
type ResetCredentials struct {
	Identifier string
	Secret     string
}
