package messaging

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fmarconi/consultorio-ai-platform/internal/conversation"
	"github.com/fmarconi/consultorio-ai-platform/internal/messaging/whatsappclient"
)

type stubService struct {
	mu    sync.Mutex
	reqs  []conversation.MessageRequest
	reply string
	err   error
}

func (s *stubService) ProcessMessage(_ context.Context, req conversation.MessageRequest) (*conversation.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	if s.err != nil {
		return nil, s.err
	}
	return &conversation.Response{PatientID: "pat-1", Reply: s.reply, Timestamp: time.Now()}, nil
}

func (s *stubService) requests() []conversation.MessageRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]conversation.MessageRequest(nil), s.reqs...)
}

type chanSender struct {
	sent chan sentText
}

type sentText struct {
	To   string
	Body string
}

func newChanSender() *chanSender {
	return &chanSender{sent: make(chan sentText, 8)}
}

func (s *chanSender) SendText(_ context.Context, to, body string) error {
	s.sent <- sentText{To: to, Body: body}
	return nil
}

func (s *chanSender) await(t *testing.T) sentText {
	t.Helper()
	select {
	case msg := <-s.sent:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for outbound message")
		return sentText{}
	}
}

type stubVerifier struct{ err error }

func (v stubVerifier) VerifySignature(string, []byte) error { return v.err }

type memClaimer struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMemClaimer() *memClaimer { return &memClaimer{seen: make(map[string]bool)} }

func (c *memClaimer) Claim(_ context.Context, id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seen[id] {
		return false, nil
	}
	c.seen[id] = true
	return true, nil
}

const webhookBody = `{
	"object": "whatsapp_business_account",
	"entry": [{
		"id": "123",
		"changes": [{
			"field": "messages",
			"value": {
				"messaging_product": "whatsapp",
				"contacts": [{"profile": {"name": "Ana"}, "wa_id": "5491130001111"}],
				"messages": [{"from": "5491130001111", "id": "wamid.A", "timestamp": "1756454400", "type": "text", "text": {"body": "hola"}}]
			}
		}]
	}]
}`

func TestVerifyHandshake(t *testing.T) {
	h := NewHandler("secreto", nil, &stubService{}, newChanSender(), nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=secreto&hub.challenge=42", nil)
	rec := httptest.NewRecorder()
	h.Verify(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "42" {
		t.Fatalf("expected challenge echo, got %d %q", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=wrong", nil)
	rec = httptest.NewRecorder()
	h.Verify(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for wrong token, got %d", rec.Code)
	}
}

func TestReceiveRejectsBadSignature(t *testing.T) {
	svc := &stubService{reply: "hola"}
	h := NewHandler("secreto", stubVerifier{err: errors.New("mismatch")}, svc, newChanSender(), nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader(webhookBody))
	rec := httptest.NewRecorder()
	h.Receive(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if len(svc.requests()) != 0 {
		t.Fatalf("service must not run on rejected signature")
	}
}

func TestReceiveProcessesMessageAndReplies(t *testing.T) {
	svc := &stubService{reply: "Hola Ana, ¿en qué te ayudo?"}
	sender := newChanSender()
	h := NewHandler("secreto", stubVerifier{}, svc, sender, newMemClaimer(), nil)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader(webhookBody))
	rec := httptest.NewRecorder()
	h.Receive(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 ack, got %d", rec.Code)
	}

	sent := sender.await(t)
	if sent.To != "+5491130001111" {
		t.Fatalf("unexpected recipient %q", sent.To)
	}
	if sent.Body != svc.reply {
		t.Fatalf("unexpected reply %q", sent.Body)
	}
	reqs := svc.requests()
	if len(reqs) != 1 || reqs[0].From != "+5491130001111" || reqs[0].Text != "hola" || reqs[0].MessageID != "wamid.A" {
		t.Fatalf("unexpected service request: %#v", reqs)
	}
}

func TestProcessInboundDropsDuplicates(t *testing.T) {
	svc := &stubService{reply: "hola"}
	sender := newChanSender()
	claimer := newMemClaimer()
	h := NewHandler("secreto", nil, svc, sender, claimer, nil)

	msg := whatsappclient.InboundMessage{ProviderID: "wamid.dup", From: "5491130001111", Type: "text", Text: "hola"}
	h.processInbound(context.Background(), msg)
	sender.await(t)
	h.processInbound(context.Background(), msg)

	time.Sleep(50 * time.Millisecond)
	if got := len(svc.requests()); got != 1 {
		t.Fatalf("expected single processed turn, got %d", got)
	}
}

func TestProcessInboundMediaWithoutCaption(t *testing.T) {
	svc := &stubService{reply: "Recibido, gracias."}
	sender := newChanSender()
	h := NewHandler("secreto", nil, svc, sender, nil, nil)

	h.processInbound(context.Background(), whatsappclient.InboundMessage{
		ProviderID: "wamid.doc",
		From:       "5491130001111",
		Type:       "document",
		MediaID:    "media-7",
		MediaType:  "application/pdf",
	})
	sender.await(t)
	reqs := svc.requests()
	if len(reqs) != 1 || reqs[0].Text != "[documento adjunto]" {
		t.Fatalf("expected placeholder text for captionless media, got %#v", reqs)
	}
}

func TestProcessInboundServiceErrorSendsNothing(t *testing.T) {
	svc := &stubService{err: errors.New("boom")}
	sender := newChanSender()
	h := NewHandler("secreto", nil, svc, sender, nil, nil)

	h.processInbound(context.Background(), whatsappclient.InboundMessage{
		ProviderID: "wamid.err",
		From:       "5491130001111",
		Type:       "text",
		Text:       "hola",
	})
	select {
	case msg := <-sender.sent:
		t.Fatalf("unexpected outbound message %#v", msg)
	case <-time.After(100 * time.Millisecond):
	}
}
