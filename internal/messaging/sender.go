package messaging

import (
	"context"
	"errors"

	"github.com/fmarconi/consultorio-ai-platform/internal/messaging/whatsappclient"
	"github.com/fmarconi/consultorio-ai-platform/pkg/logging"
)

// TextSender delivers outbound WhatsApp text messages.
type TextSender interface {
	SendText(ctx context.Context, to, body string) error
}

// WhatsAppSender adapts the Cloud API client to TextSender. Delivery is best
// effort: failures are logged and reported, never retried beyond the client's
// own retry budget.
type WhatsAppSender struct {
	client *whatsappclient.Client
	logger *logging.Logger
}

func NewWhatsAppSender(client *whatsappclient.Client, logger *logging.Logger) *WhatsAppSender {
	if client == nil {
		panic("messaging: whatsapp client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &WhatsAppSender{client: client, logger: logger}
}

// LogSender stands in for WhatsApp when no credentials are configured, so
// local runs can still exercise the full pipeline.
type LogSender struct {
	logger *logging.Logger
}

func NewLogSender(logger *logging.Logger) *LogSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) SendText(_ context.Context, to, body string) error {
	s.logger.Info("outbound message (dry run)", "to", to, "body", body)
	return nil
}

func (s *WhatsAppSender) SendText(ctx context.Context, to, body string) error {
	if to == "" {
		return errors.New("messaging: recipient required")
	}
	resp, err := s.client.SendText(ctx, to, body)
	if err != nil {
		s.logger.Error("whatsapp send failed", "to", to, "error", err)
		return err
	}
	s.logger.Info("whatsapp message sent", "to", to, "provider_id", resp.MessageID())
	return nil
}
