package conversation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubService struct {
	mu    sync.Mutex
	calls []MessageRequest
	reply string
	err   error
}

func (s *stubService) ProcessMessage(_ context.Context, req MessageRequest) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	if s.err != nil {
		return nil, s.err
	}
	return &Response{PatientID: "pat-1", Reply: s.reply, Timestamp: time.Now()}, nil
}

func (s *stubService) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func TestOrchestratorRoundTrip(t *testing.T) {
	stub := &stubService{reply: "hola!"}
	o := NewOrchestrator(stub, NewMemoryQueue(8), nil, WithReceiveWaitSeconds(1))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, o.Shutdown(ctx))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := o.ProcessMessage(ctx, MessageRequest{From: "+5491122334455", Text: "hola"})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, "hola!", resp.Reply)
	assert.Equal(t, 1, stub.callCount())
}

func TestOrchestratorConcurrentTurns(t *testing.T) {
	stub := &stubService{reply: "ok"}
	o := NewOrchestrator(stub, NewMemoryQueue(32), nil, WithWorkerCount(4), WithReceiveWaitSeconds(1))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, o.Shutdown(ctx))
	}()

	const turns = 20
	var wg sync.WaitGroup
	errs := make(chan error, turns)
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_, err := o.ProcessMessage(ctx, MessageRequest{From: "+549112233", Text: "hola"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, turns, stub.callCount())
}

func TestOrchestratorPropagatesEngineError(t *testing.T) {
	stub := &stubService{err: context.DeadlineExceeded}
	o := NewOrchestrator(stub, NewMemoryQueue(8), nil, WithReceiveWaitSeconds(1))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, o.Shutdown(ctx))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := o.ProcessMessage(ctx, MessageRequest{From: "+549112233", Text: "hola"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOrchestratorShutdownStopsWorkers(t *testing.T) {
	stub := &stubService{reply: "ok"}
	o := NewOrchestrator(stub, NewMemoryQueue(8), nil, WithReceiveWaitSeconds(1))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, o.Shutdown(ctx))

	// Shutdown is idempotent.
	require.NoError(t, o.Shutdown(ctx))
}

func TestMemoryQueueBatching(t *testing.T) {
	q := NewMemoryQueue(8)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Send(ctx, "payload"))
	}

	msgs, err := q.Receive(ctx, 5, 1)
	require.NoError(t, err)
	assert.Len(t, msgs, 3)

	// An empty queue times out with no messages and no error.
	msgs, err = q.Receive(ctx, 5, 1)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
