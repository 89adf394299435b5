// Package generation turns material requests into prompts, sends them to the
// generation service and shapes the results.
package generation

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/wilhg/eventmarketer/pkg/adapters/llm"
	"github.com/wilhg/eventmarketer/pkg/errmodel"
)

// Client performs exactly one round trip to the generation service per call.
// It never retries and never caches.
type Client struct {
	model    llm.LLM
	log      *slog.Logger
	estimate TokenEstimator
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithTokenEstimator enables logging of an estimated prompt token count.
func WithTokenEstimator(est TokenEstimator) ClientOption {
	return func(c *Client) { c.estimate = est }
}

// NewClient wraps a provider.
func NewClient(model llm.LLM, opts ...ClientOption) *Client {
	c := &Client{model: model, log: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("component", "generation.client", "provider", model.Name())
	return c
}

// Generate sends prompt and returns the generated text.
// Failures are *errmodel.Error values in the upstream category.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", errmodel.Validation("empty_prompt", "prompt is empty", nil)
	}
	attrs := []any{"prompt_chars", len(prompt)}
	if c.estimate != nil {
		attrs = append(attrs, "prompt_tokens_est", c.estimate(prompt))
	}
	start := time.Now()
	res, err := c.model.Generate(ctx, []llm.Message{llm.UserMessage(prompt)}, nil)
	if err != nil {
		c.log.ErrorContext(ctx, "generation failed", append(attrs, "error", err, "elapsed", time.Since(start))...)
		return "", errmodel.Upstream("upstream_error", "generation service request failed", map[string]any{"provider": c.model.Name()}, err)
	}
	if strings.TrimSpace(res.Text) == "" {
		c.log.WarnContext(ctx, "generation returned no text", attrs...)
		return "", errmodel.Upstream("empty_output", "generation service returned no text", map[string]any{"provider": c.model.Name(), "model": res.Model}, nil)
	}
	c.log.DebugContext(ctx, "generation done", append(attrs, "output_chars", len(res.Text), "total_tokens", res.TotalTokens, "elapsed", time.Since(start))...)
	return res.Text, nil
}
