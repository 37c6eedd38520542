package services

import (
	"context"

	"github.com/rs/zerolog"
)

// LogEmailSender writes messages to the log instead of sending them.
// It is only wired outside production.
type LogEmailSender struct {
	logger zerolog.Logger
}

func NewLogEmailSender(logger *zerolog.Logger) *LogEmailSender {
	return &LogEmailSender{logger: logger.With().Str("transport", "log_email").Logger()}
}

func (s *LogEmailSender) Send(_ context.Context, email Email) error {
	s.logger.Debug().
		Strs("to", email.To).
		Str("subject", email.Subject).
		Str("body", email.Body).
		Msg("email not sent (log transport)")
	return nil
}

type LogSMSSender struct {
	logger zerolog.Logger
}

func NewLogSMSSender(logger *zerolog.Logger) *LogSMSSender {
	return &LogSMSSender{logger: logger.With().Str("transport", "log_sms").Logger()}
}

func (s *LogSMSSender) Send(_ context.Context, sms SMS) error {
	s.logger.Debug().
		Str("to", sms.To).
		Str("body", sms.Body).
		Msg("sms not sent (log transport)")
	return nil
}
