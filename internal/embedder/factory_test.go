package embedder

import (
	"context"
	"errors"
	"testing"

	"github.com/54b3r/botrag-go/internal/config"
)

func TestNewBackend_MissingKeyIsNotConfigured(t *testing.T) {
	t.Parallel()

	for _, provider := range []string{"huggingface", "google", "openai", "azure"} {
		t.Run(provider, func(t *testing.T) {
			t.Parallel()
			b, err := NewBackend(context.Background(), config.EmbeddingSettings{Provider: provider}, discardLogger())
			if err != nil {
				t.Fatalf("NewBackend: %v", err)
			}
			if _, err := b.EmbedText(context.Background(), "hello"); !errors.Is(err, ErrNotConfigured) {
				t.Errorf("err = %v, want ErrNotConfigured", err)
			}
		})
	}
}

func TestNewBackend_UnknownProvider(t *testing.T) {
	t.Parallel()

	if _, err := NewBackend(context.Background(), config.EmbeddingSettings{Provider: "cohere"}, discardLogger()); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestNewBackend_ConfiguredProviders(t *testing.T) {
	t.Parallel()

	cases := []struct {
		cfg  config.EmbeddingSettings
		name string
	}{
		{config.EmbeddingSettings{Provider: "huggingface", APIKey: "k"}, "huggingface"},
		{config.EmbeddingSettings{Provider: "openai", APIKey: "k"}, "openai"},
		{config.EmbeddingSettings{Provider: "azure", APIKey: "k", Endpoint: "https://x.openai.azure.com"}, "azure"},
		{config.EmbeddingSettings{Provider: "ollama"}, "ollama"},
	}
	for _, tc := range cases {
		b, err := NewBackend(context.Background(), tc.cfg, discardLogger())
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if b.Name() != tc.name {
			t.Errorf("Name() = %q, want %q", b.Name(), tc.name)
		}
	}
}

func TestNewFromSettings_NotConfiguredFailsWithoutRetry(t *testing.T) {
	t.Parallel()

	c, err := NewFromSettings(context.Background(), config.EmbeddingSettings{Provider: "huggingface", MaxAttempts: 3}, discardLogger(), nil)
	if err != nil {
		t.Fatalf("NewFromSettings: %v", err)
	}
	if _, err := c.Embed(context.Background(), "hello"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v", err)
	}
}

func TestDefaultDimensions(t *testing.T) {
	t.Parallel()

	cases := map[string]int{
		"huggingface": 384,
		"google":      768,
		"ollama":      768,
		"openai":      1536,
		"azure":       1536,
	}
	for provider, want := range cases {
		if got := DefaultDimensions(provider, 0); got != want {
			t.Errorf("DefaultDimensions(%q) = %d, want %d", provider, got, want)
		}
	}
	if got := DefaultDimensions("huggingface", 1024); got != 1024 {
		t.Errorf("override ignored: %d", got)
	}
}
