// Package payment integrates the UPI payment providers. Each gateway turns
// a pending reservation into a hosted payment link and turns provider
// callbacks into provider-neutral results.
package payment

import (
	"context"
	"fmt"

	"github.com/sanuj5/challenge-box-cricket-wa/internal/config"
	"github.com/sanuj5/challenge-box-cricket-wa/internal/models"

	"github.com/rs/zerolog"
)

// Gateway is one payment provider. Amounts are rupees at this boundary;
// each implementation converts to paise on the wire.
type Gateway interface {
	// Name returns the provider label used in logs and metrics.
	Name() string
	// GeneratePaymentLink creates a hosted checkout link for the
	// reservation token. The token doubles as the provider reference id.
	GeneratePaymentLink(ctx context.Context, amount int64, token string) (string, error)
	// ValidateCallback authenticates a server-to-server callback and
	// extracts the payment result. An invalid signature is an error.
	ValidateCallback(signature string, body []byte) (*models.PaymentResult, error)
	// GetPayment fetches the authoritative payment status from the
	// provider. Used to cross-check push notifications.
	GetPayment(ctx context.Context, token string) (*models.PaymentResult, error)
}

// New builds the configured gateway.
func New(cfg *config.Config, logger *zerolog.Logger) (Gateway, error) {
	switch cfg.Payment.Provider {
	case "phonepe":
		return NewPhonePe(cfg.Payment.PhonePe, cfg.Payment.CallbackURL, logger), nil
	case "razorpay":
		return NewRazorpay(cfg.Payment.Razorpay, cfg.Payment.CallbackURL, logger), nil
	default:
		return nil, fmt.Errorf("unknown payment provider %q", cfg.Payment.Provider)
	}
}
