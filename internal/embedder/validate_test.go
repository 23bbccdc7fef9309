package embedder

import (
	"testing"

	"github.com/54b3r/botrag-go/internal/config"
)

func TestLooksLikeChatModel(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"gpt-4o":                                 true,
		"llama3.1:8b":                            true,
		"gemini-2.0-flash":                       true,
		"text-embedding-3-small":                 false,
		"nomic-embed-text":                       false,
		"sentence-transformers/all-MiniLM-L6-v2": false,
		"gemini-embedding-001":                   false,
		"BAAI/bge-small-en-v1.5":                 false,
	}
	for model, want := range cases {
		if got := looksLikeChatModel(model); got != want {
			t.Errorf("looksLikeChatModel(%q) = %v, want %v", model, got, want)
		}
	}
}

func TestWarnIfChatModel(t *testing.T) {
	t.Parallel()

	if !WarnIfChatModel(config.EmbeddingSettings{Provider: "openai", Model: "gpt-4o-mini"}, discardLogger()) {
		t.Error("expected warning for chat model")
	}
	if WarnIfChatModel(config.EmbeddingSettings{Provider: "openai", Model: ""}, discardLogger()) {
		t.Error("empty model must not warn")
	}
}
