package models

import "time"

// User is the subset of the account record the reset flows read and write.
// ResetToken holds the SHA-256 digest of the emailed token, never the token itself.
type User struct {
	ID                  string     `json:"id"`
	Email               string     `json:"email"`
	Mobile              *string    `json:"mobile,omitempty"`
	PasswordHash        string     `json:"-"`
	ResetToken          *string    `json:"-"`
	ResetTokenExpiresAt *time.Time `json:"-"`
	ResetOTP            *string    `json:"-"`
	ResetOTPExpiresAt   *time.Time `json:"-"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// MobileNumber returns the user's mobile number or "" when none is on file.
func (u *User) MobileNumber() string {
	if u == nil || u.Mobile == nil {
		return ""
	}
	return *u.Mobile
}

type ForgotPasswordEmailRequest struct {
	Email string `json:"email" validate:"required,email,max=320"`
}

type ForgotPasswordMobileRequest struct {
	Mobile string `json:"mobile" validate:"required,max=32"`
}

type ResetPasswordEmailRequest struct {
	Token    string `json:"token" validate:"required,max=256"`
	Password string `json:"password" validate:"required"`
}

type ResetPasswordMobileRequest struct {
	Mobile   string `json:"mobile" validate:"required,max=32"`
	OTP      string `json:"otp" validate:"required,max=16"`
	Password string `json:"password" validate:"required"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ResetPasswordResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
