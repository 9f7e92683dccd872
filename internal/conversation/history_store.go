package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	historyTTL        = 24 * time.Hour
	maxHistoryEntries = 20
)

// HistoryStore keeps the short-lived chat transcript used to give the
// assistant conversational context. The durable record lives in the message
// table; this is only the rolling window.
type HistoryStore struct {
	redis  *redis.Client
	tracer trace.Tracer
}

func NewHistoryStore(redis *redis.Client, tracer trace.Tracer) *HistoryStore {
	if redis == nil {
		panic("conversation: redis client cannot be nil")
	}
	if tracer == nil {
		tracer = otel.Tracer("consultorio.internal.conversation.history")
	}
	return &HistoryStore{
		redis:  redis,
		tracer: tracer,
	}
}

func historyKey(phone string) string {
	return fmt.Sprintf("conversation:%s", phone)
}

func (s *HistoryStore) Append(ctx context.Context, phone string, msgs ...ChatMessage) error {
	history, err := s.Load(ctx, phone)
	if err != nil {
		return err
	}
	history = append(history, msgs...)
	if len(history) > maxHistoryEntries {
		history = history[len(history)-maxHistoryEntries:]
	}
	return s.Save(ctx, phone, history)
}

func (s *HistoryStore) Save(ctx context.Context, phone string, history []ChatMessage) error {
	ctx, span := s.tracer.Start(ctx, "conversation.save_history")
	defer span.End()

	data, err := json.Marshal(history)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to marshal history: %w", err)
	}
	if err := s.redis.Set(ctx, historyKey(phone), data, historyTTL).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to persist history: %w", err)
	}
	return nil
}

// Load returns the rolling transcript; an unknown phone yields an empty one.
func (s *HistoryStore) Load(ctx context.Context, phone string) ([]ChatMessage, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.load_history")
	defer span.End()

	data, err := s.redis.Get(ctx, historyKey(phone)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to load history: %w", err)
	}

	var history []ChatMessage
	if err := json.Unmarshal(data, &history); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to decode history: %w", err)
	}
	return history, nil
}
