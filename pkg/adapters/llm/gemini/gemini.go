package gemini

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/wilhg/eventmarketer/pkg/adapters/llm"
	genai "google.golang.org/genai"
)

const defaultModel = "gemini-2.5-flash"

type clientWrapper struct {
	client *genai.Client
	model  string
}

func (c *clientWrapper) Name() string { return "gemini" }

func (c *clientWrapper) Generate(ctx context.Context, messages []llm.Message, opts map[string]any) (llm.GenerateResult, error) {
	model := c.model
	if v, ok := opts["model"].(string); ok && v != "" {
		model = v
	}
	parts := []*genai.Part{{Text: joinMessages(messages)}}
	res, err := c.client.Models.GenerateContent(ctx, model, []*genai.Content{{Role: "user", Parts: parts}}, nil)
	if err != nil {
		return llm.GenerateResult{}, err
	}
	if res.PromptFeedback != nil && res.PromptFeedback.BlockReason != "" {
		return llm.GenerateResult{}, fmt.Errorf("gemini: prompt blocked: %s", res.PromptFeedback.BlockReason)
	}
	out := llm.GenerateResult{Text: res.Text(), Model: model}
	if u := res.UsageMetadata; u != nil {
		out.PromptTokens = int(u.PromptTokenCount)
		out.OutputTokens = int(u.CandidatesTokenCount)
		out.TotalTokens = int(u.TotalTokenCount)
	}
	return out, nil
}

// joinMessages flattens the conversation into one user turn. The marketing
// prompts are single-turn, so this is usually just the prompt itself.
func joinMessages(messages []llm.Message) string {
	texts := make([]string, 0, len(messages))
	for _, m := range messages {
		if m.Content != "" {
			texts = append(texts, m.Content)
		}
	}
	return strings.Join(texts, "\n")
}

// Factory creates a Gemini LLM client. The key comes from cfg.api_key, then GEMINI_API_KEY, then GOOGLE_API_KEY.
func Factory(ctx context.Context, cfg map[string]any) (llm.LLM, error) { // nolint: revive
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
	}
	if v, ok := cfg["api_key"].(string); ok && v != "" {
		apiKey = v
	}
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: missing API key; set GEMINI_API_KEY or cfg.api_key")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	model := defaultModel
	if v, ok := cfg["model"].(string); ok && v != "" {
		model = v
	}
	return &clientWrapper{client: client, model: model}, nil
}

func init() {
	_ = llm.Register("gemini", Factory)
}
