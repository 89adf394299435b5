package fake

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"

	"github.com/wilhg/eventmarketer/pkg/adapters/llm"
)

// RespondFunc produces the reply for a prompt. Returning an error simulates an upstream failure.
type RespondFunc func(ctx context.Context, prompt string) (string, error)

// LLM is an in-process provider for tests and offline development.
// By default it answers with the first prompt line and a short digest of the full prompt.
type LLM struct {
	respond RespondFunc

	mu      sync.Mutex
	prompts []string
}

// New returns a fake provider. A nil fn selects the default echo reply.
func New(fn RespondFunc) *LLM {
	if fn == nil {
		fn = Echo
	}
	return &LLM{respond: fn}
}

// Echo is the default RespondFunc.
func Echo(_ context.Context, prompt string) (string, error) {
	first, _, _ := strings.Cut(prompt, "\n")
	h := sha256.Sum256([]byte(prompt))
	return "[fake " + hex.EncodeToString(h[:4]) + "] " + first, nil
}

func (f *LLM) Name() string { return "fake" }

func (f *LLM) Generate(ctx context.Context, messages []llm.Message, _ map[string]any) (llm.GenerateResult, error) {
	var parts []string
	for _, m := range messages {
		if m.Content != "" {
			parts = append(parts, m.Content)
		}
	}
	p := strings.Join(parts, "\n")
	f.mu.Lock()
	f.prompts = append(f.prompts, p)
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return llm.GenerateResult{}, err
	}
	text, err := f.respond(ctx, p)
	if err != nil {
		return llm.GenerateResult{}, err
	}
	return llm.GenerateResult{Text: text, Model: "fake"}, nil
}

// Prompts returns every prompt received so far, in arrival order.
func (f *LLM) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

// Factory builds an echoing fake provider.
func Factory(_ context.Context, _ map[string]any) (llm.LLM, error) { // nolint: revive
	return New(nil), nil
}

func init() {
	_ = llm.Register("fake", Factory)
}
