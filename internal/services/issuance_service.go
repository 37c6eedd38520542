package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"asklytics/internal/interfaces"
	"asklytics/internal/metrics"
	"asklytics/internal/models"
	"asklytics/internal/repository"
)

type IssuanceConfig struct {
	EmailTTL        time.Duration
	MobileTTL       time.Duration
	StoreTimeout    time.Duration
	DeliveryTimeout time.Duration
}

// IssuanceService starts password resets. RequestReset reports the same outcome
// whether or not the identifier belongs to an account.
type IssuanceService struct {
	users    interfaces.UserStore
	resets   interfaces.ResetStore
	delivery interfaces.DeliveryGateway
	secrets  SecretGenerator
	throttle interfaces.IssuanceThrottle
	cfg      IssuanceConfig
	logger   zerolog.Logger
	now      func() time.Time

	deliveries sync.WaitGroup
}

func NewIssuanceService(
	users interfaces.UserStore,
	resets interfaces.ResetStore,
	delivery interfaces.DeliveryGateway,
	secrets SecretGenerator,
	cfg IssuanceConfig,
	logger *zerolog.Logger,
) *IssuanceService {
	return &IssuanceService{
		users:    users,
		resets:   resets,
		delivery: delivery,
		secrets:  secrets,
		cfg:      cfg,
		logger:   logger.With().Str("component", "reset_issuance").Logger(),
		now:      time.Now,
	}
}

func (s *IssuanceService) SetThrottle(t interfaces.IssuanceThrottle) {
	s.throttle = t
}

func (s *IssuanceService) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *IssuanceService) ttl(channel models.Channel) time.Duration {
	if channel == models.ChannelMobileOTP {
		return s.cfg.MobileTTL
	}
	return s.cfg.EmailTTL
}

// RequestReset issues a secret for the account behind identifier, if any, and
// hands it to delivery in the background. Only validation and storage errors
// are returned; an unknown identifier, a throttled request and a failed
// delivery all return nil.
func (s *IssuanceService) RequestReset(ctx context.Context, channel models.Channel, identifier string) error {
	if !channel.Valid() {
		return &ValidationError{Field: "channel", Reason: "invalid"}
	}
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return &ValidationError{Field: identifierField(channel)}
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	user, err := s.lookup(storeCtx, channel, identifier)
	if errors.Is(err, repository.ErrNotFound) {
		metrics.ResetIssuanceTotal.WithLabelValues(channel.String(), "accepted").Inc()
		return nil
	}
	if err != nil {
		metrics.ResetIssuanceTotal.WithLabelValues(channel.String(), "error").Inc()
		s.logger.Error().Err(err).Str("channel", channel.String()).Msg("reset issuance: user lookup failed")
		return fmt.Errorf("%w: lookup user: %v", ErrStorageFailure, err)
	}

	if s.throttle != nil {
		allowed, err := s.throttle.Allow(storeCtx, channel.String(), identifier)
		if err != nil {
			s.logger.Warn().Err(err).Str("channel", channel.String()).Msg("reset issuance: throttle unavailable, allowing")
		} else if !allowed {
			metrics.ResetIssuanceTotal.WithLabelValues(channel.String(), "accepted").Inc()
			s.logger.Info().Str("channel", channel.String()).Str("user_id", user.ID).Msg("reset issuance throttled")
			return nil
		}
	}

	raw, err := generate(s.secrets, channel)
	if err != nil {
		metrics.ResetIssuanceTotal.WithLabelValues(channel.String(), "error").Inc()
		s.logger.Error().Err(err).Str("channel", channel.String()).Msg("reset issuance: secret generation failed")
		return fmt.Errorf("generate reset secret: %w", err)
	}

	secret := models.ResetSecret{
		Channel:   channel,
		Value:     raw,
		ExpiresAt: s.now().Add(s.ttl(channel)),
	}
	if err := s.resets.SetSecret(storeCtx, channel, user.ID, storedSecret(channel, raw), secret.ExpiresAt); err != nil {
		metrics.ResetIssuanceTotal.WithLabelValues(channel.String(), "error").Inc()
		s.logger.Error().Err(err).Str("channel", channel.String()).Str("user_id", user.ID).Msg("reset issuance: persist secret failed")
		return fmt.Errorf("%w: persist secret: %v", ErrStorageFailure, err)
	}

	metrics.ResetIssuanceTotal.WithLabelValues(channel.String(), "accepted").Inc()
	s.logger.Info().Str("channel", channel.String()).Str("user_id", user.ID).Time("expires_at", secret.ExpiresAt).Msg("reset secret issued")

	s.deliver(ctx, user, secret)
	return nil
}

func (s *IssuanceService) lookup(ctx context.Context, channel models.Channel, identifier string) (*models.User, error) {
	if channel == models.ChannelMobileOTP {
		return s.users.GetByMobile(ctx, identifier)
	}
	return s.users.GetByEmail(ctx, identifier)
}

// deliver sends the secret without holding up the caller. The send gets its own
// deadline and survives cancellation of the request context.
func (s *IssuanceService) deliver(parent context.Context, user *models.User, secret models.ResetSecret) {
	s.deliveries.Add(1)
	go func() {
		defer s.deliveries.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), s.cfg.DeliveryTimeout)
		defer cancel()

		var err error
		switch secret.Channel {
		case models.ChannelEmailLink:
			err = s.delivery.SendResetLink(ctx, user.Email, secret.Value)
		case models.ChannelMobileOTP:
			err = s.delivery.SendResetOTP(ctx, user.MobileNumber(), secret.Value)
		}

		if err != nil {
			metrics.ResetDeliveryTotal.WithLabelValues(secret.Channel.String(), "failed").Inc()
			s.logger.Warn().
				Err(fmt.Errorf("%w: %v", ErrDeliveryFailure, err)).
				Str("channel", secret.Channel.String()).
				Str("user_id", user.ID).
				Msg("reset secret delivery failed")
			return
		}
		metrics.ResetDeliveryTotal.WithLabelValues(secret.Channel.String(), "sent").Inc()
	}()
}

// Wait blocks until in-flight deliveries finish or ctx is done.
func (s *IssuanceService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.deliveries.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func identifierField(channel models.Channel) string {
	if channel == models.ChannelMobileOTP {
		return "mobile"
	}
	return "email"
}

func secretField(channel models.Channel) string {
	if channel == models.ChannelMobileOTP {
		return "otp"
	}
	return "token"
}
