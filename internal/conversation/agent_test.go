package conversation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fmarconi/consultorio-ai-platform/internal/observability/metrics"
)

// scriptedLLM answers every completion with a fixed response or error.
type scriptedLLM struct {
	resp  LLMResponse
	err   error
	calls int
}

func (s *scriptedLLM) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	s.calls++
	if s.err != nil {
		return LLMResponse{}, s.err
	}
	return s.resp, nil
}

func newTestMetrics(t *testing.T) (*metrics.ConversationMetrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return metrics.NewConversationMetrics(reg), reg
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			require.Len(t, mf.Metric, 1)
			return mf.Metric[0].GetCounter().GetValue()
		}
	}
	return 0
}

func testAgentContext() AgentContext {
	return AgentContext{
		Patient:   completePatient("+5491122334455"),
		Message:   "quiero un turno para el martes",
		FreeSlots: testFreeSlots(),
		Now:       testNow,
	}
}

func TestAgentProposesDecodedAction(t *testing.T) {
	llm := &scriptedLLM{resp: LLMResponse{Text: `{"action":"ask_clarification","reply":"¿Qué día te queda bien?"}`}}
	a := NewAgent(llm, testClinic(), time.Second, nil)

	action := a.ProposeAction(context.Background(), testAgentContext())
	require.NotNil(t, action)
	assert.Equal(t, ActionAskClarification, action.Kind)
	assert.Equal(t, "¿Qué día te queda bien?", action.Reply)
	assert.Equal(t, 1, llm.calls)
}

func TestAgentModelErrorCountsFailure(t *testing.T) {
	m, reg := newTestMetrics(t)
	llm := &scriptedLLM{err: errors.New("rate limited")}
	a := NewAgent(llm, testClinic(), time.Second, nil).WithMetrics(m)

	action := a.ProposeAction(context.Background(), testAgentContext())
	assert.Nil(t, action, "a failed call degrades to the deterministic path")
	assert.Equal(t, 1.0, counterValue(t, reg, "consultorio_conversation_llm_failures_total"))
}

func TestAgentUndecodableReplyCountsFailure(t *testing.T) {
	m, reg := newTestMetrics(t)
	llm := &scriptedLLM{resp: LLMResponse{Text: "no tengo horarios, perdón"}}
	a := NewAgent(llm, testClinic(), time.Second, nil).WithMetrics(m)

	action := a.ProposeAction(context.Background(), testAgentContext())
	assert.Nil(t, action)
	assert.Equal(t, 1.0, counterValue(t, reg, "consultorio_conversation_llm_failures_total"))
}
