package conversation

import (
	"context"

	"github.com/fmarconi/consultorio-ai-platform/pkg/logging"
)

// FallbackLLMClient chains two model providers. Every completion goes to the
// primary; only a primary failure reaches the secondary, so the secondary's
// quota is spent exclusively on outages.
type FallbackLLMClient struct {
	primary  LLMClient
	fallback LLMClient
	logger   *logging.Logger
}

// NewFallbackLLMClient wires the chain. A nil fallback degrades to a plain
// passthrough around the primary.
func NewFallbackLLMClient(primary, fallback LLMClient, logger *logging.Logger) *FallbackLLMClient {
	if primary == nil {
		panic("conversation: primary llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &FallbackLLMClient{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// Complete tries the primary and, on failure, the fallback. When both fail
// the fallback's error wins: it was the last attempt made.
func (c *FallbackLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	resp, primaryErr := c.primary.Complete(ctx, req)
	if primaryErr == nil {
		return resp, nil
	}
	if c.fallback == nil {
		return LLMResponse{}, primaryErr
	}

	c.logger.Warn("primary model failed, retrying with fallback", "error", primaryErr)

	resp, err := c.fallback.Complete(ctx, req)
	if err != nil {
		c.logger.Error("fallback model failed too",
			"primary_error", primaryErr,
			"fallback_error", err,
		)
		return LLMResponse{}, err
	}

	c.logger.Info("fallback model answered after primary failure")
	return resp, nil
}
