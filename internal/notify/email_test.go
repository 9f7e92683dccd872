package notify

import (
	"context"
	"testing"
)

func TestNewSendGridSenderNilWithoutAPIKey(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{
		APIKey:    "",
		FromEmail: "asistente@example.com",
	}, nil)

	if sender != nil {
		t.Error("expected nil sender when API key is empty")
	}
}

func TestNewSendGridSenderDefaultFromName(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{
		APIKey:    "test-key",
		FromEmail: "asistente@example.com",
	}, nil)

	if sender == nil {
		t.Fatal("expected non-nil sender")
	}
	if sender.fromName != "Asistente del Consultorio" {
		t.Errorf("unexpected default from name %q", sender.fromName)
	}
}

func TestSendGridSenderSendNilClient(t *testing.T) {
	sender := &SendGridSender{}

	err := sender.Send(context.Background(), EmailMessage{
		To:      "consultorio@example.com",
		Subject: "Nuevo turno",
		Body:    "cuerpo",
	})
	if err == nil {
		t.Fatal("expected error with nil client")
	}
}

func TestStubEmailSender(t *testing.T) {
	sender := NewStubEmailSender(nil)
	if err := sender.Send(context.Background(), EmailMessage{To: "x@example.com"}); err != nil {
		t.Fatalf("stub send: %v", err)
	}
}
