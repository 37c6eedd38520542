package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"asklytics/internal/models"
	"asklytics/internal/services"
)

const (
	emailIssuedMessage  = "If your email is registered, you will receive a reset link shortly."
	mobileIssuedMessage = "If your mobile number is registered, you will receive an OTP shortly."
	resetDoneMessage    = "Password updated successfully"
	invalidTokenMessage = "Invalid or expired token"
	invalidOTPMessage   = "Invalid or expired OTP"
)

type ResetIssuer interface {
	RequestReset(ctx context.Context, channel models.Channel, identifier string) error
}

type ResetRedeemer interface {
	CompleteReset(ctx context.Context, channel models.Channel, creds models.ResetCredentials, newPassword string) error
}

type PasswordResetHandler struct {
	issuer            ResetIssuer
	redeemer          ResetRedeemer
	minPasswordLength int
	v                 *validator.Validate
	logger            zerolog.Logger
}

func NewPasswordResetHandler(issuer ResetIssuer, redeemer ResetRedeemer, minPasswordLength int, logger *zerolog.Logger) *PasswordResetHandler {
	if minPasswordLength <= 0 {
		minPasswordLength = services.DefaultMinPasswordLength
	}
	return &PasswordResetHandler{
		issuer:            issuer,
		redeemer:          redeemer,
		minPasswordLength: minPasswordLength,
		v:                 newValidator(),
		logger:            logger.With().Str("component", "password_reset_handler").Logger(),
	}
}

// @Tags Auth
// @Summary Request a password reset link by email
// @Description Always answers with the same message whether or not the email belongs to an account.
// @Accept json
// @Produce json
// @Param body body models.ForgotPasswordEmailRequest true "Email address"
// @Success 202 {object} models.MessageResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /api/v1/auth/forgot-password/email [post]
func (h *PasswordResetHandler) ForgotPasswordEmail(w http.ResponseWriter, r *http.Request) {
	var req models.ForgotPasswordEmailRequest
	if err := decodeAndValidate(w, r, h.v, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.requestReset(w, r, models.ChannelEmailLink, req.Email, emailIssuedMessage)
}

// @Tags Auth
// @Summary Request a password reset OTP by SMS
// @Description Always answers with the same message whether or not the number belongs to an account.
// @Accept json
// @Produce json
// @Param body body models.ForgotPasswordMobileRequest true "Mobile number"
// @Success 202 {object} models.MessageResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /api/v1/auth/forgot-password/mobile [post]
func (h *PasswordResetHandler) ForgotPasswordMobile(w http.ResponseWriter, r *http.Request) {
	var req models.ForgotPasswordMobileRequest
	if err := decodeAndValidate(w, r, h.v, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.requestReset(w, r, models.ChannelMobileOTP, req.Mobile, mobileIssuedMessage)
}

func (h *PasswordResetHandler) requestReset(w http.ResponseWriter, r *http.Request, channel models.Channel, identifier, message string) {
	err := h.issuer.RequestReset(r.Context(), channel, identifier)
	var verr *services.ValidationError
	switch {
	case err == nil:
		writeJSONMessage(w, http.StatusAccepted, message)
	case errors.As(err, &verr):
		writeJSONError(w, http.StatusBadRequest, verr.Error())
	default:
		h.logger.Error().Err(err).Str("channel", channel.String()).Msg("forgot password failed")
		writeJSONError(w, http.StatusInternalServerError, internalErrorMessage)
	}
}

// @Tags Auth
// @Summary Reset a password with an emailed token
// @Accept json
// @Produce json
// @Param body body models.ResetPasswordEmailRequest true "Token and new password"
// @Success 200 {object} models.ResetPasswordResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /api/v1/auth/reset-password/email [post]
func (h *PasswordResetHandler) ResetPasswordEmail(w http.ResponseWriter, r *http.Request) {
	var req models.ResetPasswordEmailRequest
	if err := decodeAndValidate(w, r, h.v, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.completeReset(w, r, models.ChannelEmailLink, models.ResetCredentials{Secret: req.Token}, req.Password)
}

// @Tags Auth
// @Summary Reset a password with an SMS OTP
// @Accept json
// @Produce json
// @Param body body models.ResetPasswordMobileRequest true "Mobile number, OTP and new password"
// @Success 200 {object} models.ResetPasswordResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /api/v1/auth/reset-password/mobile [post]
func (h *PasswordResetHandler) ResetPasswordMobile(w http.ResponseWriter, r *http.Request) {
	var req models.ResetPasswordMobileRequest
	if err := decodeAndValidate(w, r, h.v, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	creds := models.ResetCredentials{Identifier: req.Mobile, Secret: req.OTP}
	h.completeReset(w, r, models.ChannelMobileOTP, creds, req.Password)
}

func (h *PasswordResetHandler) completeReset(w http.ResponseWriter, r *http.Request, channel models.Channel, creds models.ResetCredentials, password string) {
	err := h.redeemer.CompleteReset(r.Context(), channel, creds, password)
	var verr *services.ValidationError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, models.ResetPasswordResponse{Success: true, Message: resetDoneMessage})
	case errors.Is(err, services.ErrInvalidOrExpiredSecret):
		if channel == models.ChannelMobileOTP {
			writeJSONError(w, http.StatusBadRequest, invalidOTPMessage)
			return
		}
		writeJSONError(w, http.StatusBadRequest, invalidTokenMessage)
	case errors.Is(err, services.ErrWeakPassword):
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Password must be at least %d characters long", h.minPasswordLength))
	case errors.As(err, &verr):
		writeJSONError(w, http.StatusBadRequest, verr.Error())
	default:
		h.logger.Error().Err(err).Str("channel", channel.String()).Msg("reset password failed")
		writeJSONError(w, http.StatusInternalServerError, internalErrorMessage)
	}
}
