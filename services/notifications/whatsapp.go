package notifications

import (
	"context"
	"fmt"
	"regexp"

	"github.com/upb/signalops/models"
	"go.uber.org/zap"
)

// E.164: leading plus, no leading zero, up to 15 digits
var e164Pattern = regexp.MustCompile(`^\+[1-9]\d{7,14}$`)

// WhatsAppProvider validates recipients and logs messages.
// Delivery through a business API account is not wired yet.
type WhatsAppProvider struct {
	logger *zap.Logger
}

// NewWhatsAppProvider creates a new WhatsApp provider
func NewWhatsAppProvider(logger *zap.Logger) *WhatsAppProvider {
	return &WhatsAppProvider{
		logger: logger.With(zap.String("provider", string(models.ChannelWhatsApp))),
	}
}

// Name returns the provider name
func (p *WhatsAppProvider) Name() string {
	return string(models.ChannelWhatsApp)
}

// Send logs the message for the destination phone number
func (p *WhatsAppProvider) Send(ctx context.Context, payload Payload) error {
	if !e164Pattern.MatchString(payload.Destination) {
		return NewProviderError(p.Name(), "INVALID_DESTINATION", fmt.Sprintf("invalid phone number %q", payload.Destination), 0, false, nil)
	}

	p.logger.Info("whatsapp (log-only)",
		zap.String("to", payload.Destination),
		zap.String("message", payload.Message),
	)
	return nil
}
