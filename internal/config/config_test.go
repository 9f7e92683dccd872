package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("SLOT_MINUTES", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.SlotMinutes != 30 {
		t.Fatalf("expected default slot minutes, got %d", cfg.SlotMinutes)
	}
	if cfg.ClinicTimezone != "America/Argentina/Buenos_Aires" {
		t.Fatalf("expected default timezone, got %s", cfg.ClinicTimezone)
	}
	if cfg.OfficeDays != "1,2,3,4,5" {
		t.Fatalf("expected default office days, got %s", cfg.OfficeDays)
	}
	if cfg.LLMTimeout != 20*time.Second {
		t.Fatalf("expected default llm timeout, got %s", cfg.LLMTimeout)
	}
	if !cfg.UseMemoryQueue {
		t.Fatalf("expected memory queue enabled by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("SLOT_MINUTES", "60")
	t.Setenv("OFFICE_HOURS", "08:00-12:00")
	t.Setenv("BOOKING_HORIZON_DAYS", "21")
	t.Setenv("LLM_TIMEOUT", "45s")
	t.Setenv("USE_MEMORY_QUEUE", "false")
	t.Setenv("CONVERSATION_QUEUE_URL", "https://sqs.local/q")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected db override, got %s", cfg.DatabaseURL)
	}
	if cfg.SlotMinutes != 60 {
		t.Fatalf("expected slot minutes override, got %d", cfg.SlotMinutes)
	}
	if cfg.OfficeHours != "08:00-12:00" {
		t.Fatalf("expected office hours override, got %s", cfg.OfficeHours)
	}
	if cfg.BookingHorizonDays != 21 {
		t.Fatalf("expected horizon override, got %d", cfg.BookingHorizonDays)
	}
	if cfg.LLMTimeout != 45*time.Second {
		t.Fatalf("expected llm timeout override, got %s", cfg.LLMTimeout)
	}
	if cfg.UseMemoryQueue {
		t.Fatalf("expected memory queue disabled")
	}
	if cfg.ConversationQueueURL != "https://sqs.local/q" {
		t.Fatalf("expected queue url override, got %s", cfg.ConversationQueueURL)
	}
}
