package gemini

import (
	"strings"
	"testing"

	"github.com/wilhg/eventmarketer/pkg/adapters/llm"
)

func TestJoinMessages(t *testing.T) {
	cases := []struct {
		name string
		in   []llm.Message
		want string
	}{
		{"single prompt", []llm.Message{llm.UserMessage("Create a poster")}, "Create a poster"},
		{"separated not terminated", []llm.Message{{Role: "system", Content: "a"}, llm.UserMessage("b")}, "a\nb"},
		{"empty skipped", []llm.Message{llm.UserMessage(""), llm.UserMessage("a"), llm.UserMessage(""), llm.UserMessage("b")}, "a\nb"},
		{"nothing", nil, ""},
	}
	for _, tc := range cases {
		if got := joinMessages(tc.in); got != tc.want {
			t.Fatalf("%s: got %q want %q", tc.name, got, tc.want)
		}
	}
}

func TestFactoryMissingKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	if _, err := Factory(t.Context(), map[string]any{}); err == nil || !strings.Contains(err.Error(), "missing API key") {
		t.Fatalf("err=%v", err)
	}
}

func TestOpenViaRegistry(t *testing.T) {
	m, err := llm.Open(t.Context(), "gemini", map[string]any{"api_key": "k", "model": "gemini-test"})
	if err != nil {
		t.Fatal(err)
	}
	if m.Name() != "gemini" {
		t.Fatalf("name=%q", m.Name())
	}
	if w := m.(*clientWrapper); w.model != "gemini-test" {
		t.Fatalf("model=%q", w.model)
	}
}
