package conversation

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestHistoryStore(t *testing.T) (*HistoryStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewHistoryStore(client, nil), mr
}

func TestHistoryStoreRoundTrip(t *testing.T) {
	store, _ := newTestHistoryStore(t)
	ctx := context.Background()
	phone := "+5491130001111"

	history, err := store.Load(ctx, phone)
	require.NoError(t, err)
	require.Empty(t, history)

	require.NoError(t, store.Append(ctx, phone,
		ChatMessage{Role: "user", Content: "hola"},
		ChatMessage{Role: "assistant", Content: "¡Hola! ¿En qué te ayudo?"},
	))

	history, err = store.Load(ctx, phone)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, "user", history[0].Role)
	require.Equal(t, "hola", history[0].Content)
}

func TestHistoryStoreRollingWindow(t *testing.T) {
	store, _ := newTestHistoryStore(t)
	ctx := context.Background()
	phone := "+5491130001111"

	for i := 0; i < maxHistoryEntries+5; i++ {
		require.NoError(t, store.Append(ctx, phone, ChatMessage{Role: "user", Content: "mensaje"}))
	}
	history, err := store.Load(ctx, phone)
	require.NoError(t, err)
	require.Len(t, history, maxHistoryEntries)
}

func TestHistoryStoreExpires(t *testing.T) {
	store, mr := newTestHistoryStore(t)
	ctx := context.Background()
	phone := "+5491130001111"

	require.NoError(t, store.Save(ctx, phone, []ChatMessage{{Role: "user", Content: "hola"}}))
	mr.FastForward(historyTTL + 1)

	history, err := store.Load(ctx, phone)
	require.NoError(t, err)
	require.Empty(t, history)
}

func TestHistoryStoreIsolatesPhones(t *testing.T) {
	store, _ := newTestHistoryStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "+5491130001111", ChatMessage{Role: "user", Content: "hola"}))

	history, err := store.Load(ctx, "+5491140002222")
	require.NoError(t, err)
	require.Empty(t, history)
}
