package service

import (
	"context"

	"github.com/rs/zerolog"
)

// Notifier delivers API key verification tokens to the requesting address.
type Notifier interface {
	SendVerification(ctx context.Context, email, token string) error
}

// LogNotifier writes verification tokens to the log instead of sending mail.
// Intended for local development.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a new LogNotifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("service", "notifier").Logger()}
}

// SendVerification logs the token at debug level.
func (n *LogNotifier) SendVerification(ctx context.Context, email, token string) error {
	n.logger.Debug().
		Str("email", email).
		Str("token", token).
		Msg("api key verification requested")
	return nil
}
