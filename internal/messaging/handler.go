package messaging

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fmarconi/consultorio-ai-platform/internal/conversation"
	"github.com/fmarconi/consultorio-ai-platform/internal/messaging/whatsappclient"
	"github.com/fmarconi/consultorio-ai-platform/pkg/logging"
)

var whatsappTracer = otel.Tracer("consultorio.internal.messaging.whatsapp")

const maxWebhookBody = 1 << 20

// turnTimeout bounds one conversation turn end to end, including the model
// call and the outbound send.
const turnTimeout = 90 * time.Second

// SignatureVerifier validates webhook payload signatures.
type SignatureVerifier interface {
	VerifySignature(signatureHeader string, payload []byte) error
}

// MessageClaimer provides replay protection for webhook deliveries.
type MessageClaimer interface {
	Claim(ctx context.Context, messageID string) (bool, error)
}

// Handler terminates the WhatsApp Cloud API webhook: GET for the subscription
// handshake, POST for message deliveries.
type Handler struct {
	verifyToken string
	verifier    SignatureVerifier
	service     conversation.Service
	sender      TextSender
	dedupe      MessageClaimer
	logger      *logging.Logger
}

// NewHandler creates a webhook handler. verifier and dedupe may be nil, which
// disables signature checks and replay protection respectively.
func NewHandler(verifyToken string, verifier SignatureVerifier, service conversation.Service, sender TextSender, dedupe MessageClaimer, logger *logging.Logger) *Handler {
	if service == nil {
		panic("messaging: conversation service cannot be nil")
	}
	if sender == nil {
		panic("messaging: sender cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		verifyToken: verifyToken,
		verifier:    verifier,
		service:     service,
		sender:      sender,
		dedupe:      dedupe,
		logger:      logger,
	}
}

// Verify answers Meta's webhook subscription handshake.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") != "subscribe" || q.Get("hub.verify_token") != h.verifyToken {
		http.Error(w, "verification failed", http.StatusForbidden)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(q.Get("hub.challenge")))
}

// Receive accepts a webhook delivery, acknowledges it immediately, and
// processes each inbound message on its own goroutine. Meta retries slow
// webhooks, so the turn must never run inside the request.
func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	_, span := whatsappTracer.Start(r.Context(), "messaging.webhook.receive")
	defer span.End()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		span.RecordError(err)
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	if h.verifier != nil {
		if err := h.verifier.VerifySignature(r.Header.Get("X-Hub-Signature-256"), body); err != nil {
			span.RecordError(err)
			h.logger.Warn("webhook signature rejected", "error", err)
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
	}

	var payload whatsappclient.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		span.RecordError(err)
		http.Error(w, "decode payload", http.StatusBadRequest)
		return
	}

	messages := payload.ExtractMessages()
	span.SetAttributes(attribute.Int("webhook.messages", len(messages)))
	for _, msg := range messages {
		go h.processInbound(trace.ContextWithSpanContext(context.Background(), span.SpanContext()), msg)
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("EVENT_RECEIVED"))
}

func (h *Handler) processInbound(ctx context.Context, msg whatsappclient.InboundMessage) {
	ctx, cancel := context.WithTimeout(ctx, turnTimeout)
	defer cancel()
	ctx, span := whatsappTracer.Start(ctx, "messaging.webhook.turn")
	defer span.End()

	if h.dedupe != nil && msg.ProviderID != "" {
		fresh, err := h.dedupe.Claim(ctx, msg.ProviderID)
		if err != nil {
			span.RecordError(err)
			h.logger.Error("dedupe claim failed", "message_id", msg.ProviderID, "error", err)
		} else if !fresh {
			h.logger.Info("duplicate webhook delivery dropped", "message_id", msg.ProviderID)
			return
		}
	}

	phone := NormalizeE164(msg.From)
	if phone == "" {
		h.logger.Warn("inbound message without usable phone", "message_id", msg.ProviderID)
		return
	}
	span.SetAttributes(attribute.String("message.type", msg.Type))

	text := msg.Text
	if text == "" && msg.MediaID != "" {
		// Media without caption still advances the conversation so the
		// assistant can acknowledge the document.
		text = "[documento adjunto]"
	}
	if text == "" {
		return
	}

	receivedAt := msg.Timestamp
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	resp, err := h.service.ProcessMessage(ctx, conversation.MessageRequest{
		From:       phone,
		MessageID:  msg.ProviderID,
		Text:       text,
		ReceivedAt: receivedAt,
	})
	if err != nil {
		span.RecordError(err)
		h.logger.Error("conversation turn failed", "phone", phone, "error", err)
		return
	}
	if resp == nil || resp.Reply == "" {
		return
	}
	if err := h.sender.SendText(ctx, phone, resp.Reply); err != nil {
		span.RecordError(err)
	}
}
