package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"asklytics/internal/interfaces"
	"asklytics/internal/metrics"
	"asklytics/internal/models"
	"asklytics/internal/repository"
)

const (
	MinBcryptCost            = 12
	DefaultMinPasswordLength = 8
	// bcrypt ignores input past 72 bytes.
	maxPasswordBytes = 72
)

type RedemptionConfig struct {
	MinPasswordLength int
	BcryptCost        int
	StoreTimeout      time.Duration
}

// RedemptionService completes password resets.
type RedemptionService struct {
	resets interfaces.ResetStore
	cfg    RedemptionConfig
	logger zerolog.Logger
	now    func() time.Time
}

func NewRedemptionService(resets interfaces.ResetStore, cfg RedemptionConfig, logger *zerolog.Logger) *RedemptionService {
	if cfg.MinPasswordLength <= 0 {
		cfg.MinPasswordLength = DefaultMinPasswordLength
	}
	if cfg.BcryptCost < MinBcryptCost {
		cfg.BcryptCost = MinBcryptCost
	}
	return &RedemptionService{
		resets: resets,
		cfg:    cfg,
		logger: logger.With().Str("component", "reset_redemption").Logger(),
		now:    time.Now,
	}
}

func (s *RedemptionService) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CompleteReset validates creds against the channel's stored secret and, on a
// match, replaces the password hash and burns the secret in one atomic update.
//
// Every way a secret can fail to match returns ErrInvalidOrExpiredSecret.
func (s *RedemptionService) CompleteReset(ctx context.Context, channel models.Channel, creds models.ResetCredentials, newPassword string) error {
	if err := s.validate(channel, creds, newPassword); err != nil {
		if errors.Is(err, ErrWeakPassword) {
			metrics.ResetRedemptionTotal.WithLabelValues(channel.String(), "weak_password").Inc()
		}
		return err
	}

	identifier := strings.TrimSpace(creds.Identifier)
	secret := storedSecret(channel, strings.TrimSpace(creds.Secret))

	findCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	user, err := s.resets.FindBySecret(findCtx, channel, identifier, secret, s.now())
	cancel()
	if err != nil {
		return s.storeError(channel, "find", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cfg.BcryptCost)
	if err != nil {
		metrics.ResetRedemptionTotal.WithLabelValues(channel.String(), "error").Inc()
		s.logger.Error().Err(err).Str("channel", channel.String()).Msg("reset redemption: hash password failed")
		return fmt.Errorf("hash password: %w", err)
	}

	redeemCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	if err := s.resets.RedeemSecret(redeemCtx, channel, user.ID, secret, s.now(), string(hash)); err != nil {
		return s.storeError(channel, "redeem", err)
	}

	metrics.ResetRedemptionTotal.WithLabelValues(channel.String(), "success").Inc()
	s.logger.Info().Str("channel", channel.String()).Str("user_id", user.ID).Msg("password reset completed")
	return nil
}

func (s *RedemptionService) validate(channel models.Channel, creds models.ResetCredentials, newPassword string) error {
	if !channel.Valid() {
		return &ValidationError{Field: "channel", Reason: "invalid"}
	}
	if channel == models.ChannelMobileOTP && strings.TrimSpace(creds.Identifier) == "" {
		return &ValidationError{Field: "mobile"}
	}
	if strings.TrimSpace(creds.Secret) == "" {
		return &ValidationError{Field: secretField(channel)}
	}
	if newPassword == "" {
		return &ValidationError{Field: "password"}
	}
	if utf8.RuneCountInString(newPassword) < s.cfg.MinPasswordLength {
		return ErrWeakPassword
	}
	if len(newPassword) > maxPasswordBytes {
		return &ValidationError{Field: "password", Reason: "too long"}
	}
	return nil
}

func (s *RedemptionService) storeError(channel models.Channel, op string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		metrics.ResetRedemptionTotal.WithLabelValues(channel.String(), "invalid").Inc()
		return ErrInvalidOrExpiredSecret
	}
	metrics.ResetRedemptionTotal.WithLabelValues(channel.String(), "error").Inc()
	s.logger.Error().Err(err).Str("channel", channel.String()).Str("op", op).Msg("reset redemption: store failed")
	return fmt.Errorf("%w: %s: %v", ErrStorageFailure, op, err)
}
