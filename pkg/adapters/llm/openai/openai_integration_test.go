//go:build integration

package openai

import (
	"context"
	"os"
	"testing"

	"github.com/wilhg/eventmarketer/pkg/adapters/llm"
)

func TestOpenAIGenerate(t *testing.T) {
	if os.Getenv("OPENAI_API_KEY") == "" {
		t.Skip("OPENAI_API_KEY not set")
	}
	ctx := context.Background()
	m, err := Factory(ctx, map[string]any{})
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	res, err := m.Generate(ctx, []llm.Message{llm.UserMessage("Say 'pong'")}, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.Text == "" {
		t.Fatalf("empty response text")
	}
}
