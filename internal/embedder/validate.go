package embedder

import (
	"log/slog"
	"strings"

	"github.com/54b3r/botrag-go/internal/config"
)

// knownChatModelPrefixes contains name fragments that identify chat/completion
// models which are NOT suitable for embedding.
var knownChatModelPrefixes = []string{
	"gpt-4",
	"gpt-3.5",
	"gpt-35",
	"o1",
	"o3",
	"llama3",
	"llama2",
	"llama-3",
	"llama-2",
	"mistral",
	"mixtral",
	"gemma",
	"gemini",
	"phi-",
	"phi3",
	"claude",
	"command-r",
	"deepseek",
	"qwen",
	"solar",
	"vicuna",
	"falcon",
	"yi-",
}

// embeddingModelHints are fragments that mark a model as an embedding model
// even when it also matches a chat prefix (e.g. "gemini-embedding-001").
var embeddingModelHints = []string{"embed", "minilm", "mpnet", "bge-", "e5-", "gte-"}

// looksLikeChatModel returns true when the model name resembles a known
// chat/completion model rather than a dedicated embedding model.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	for _, hint := range embeddingModelHints {
		if strings.Contains(lower, hint) {
			return false
		}
	}
	for _, prefix := range knownChatModelPrefixes {
		if strings.Contains(lower, prefix) {
			return true
		}
	}
	return false
}

// WarnIfChatModel logs a warning when the configured embedding model looks
// like a chat model. It returns true when a warning was emitted.
func WarnIfChatModel(cfg config.EmbeddingSettings, log *slog.Logger) bool {
	if cfg.Model == "" || !looksLikeChatModel(cfg.Model) {
		return false
	}
	log.Warn("embedder: EMBEDDING_MODEL looks like a chat model, not an embedding model; "+
		"this will likely produce poor or broken embeddings",
		slog.String("provider", cfg.Provider),
		slog.String("model", cfg.Model),
		slog.String("hint", "use a dedicated embedding model e.g. sentence-transformers/all-MiniLM-L6-v2, text-embedding-3-small"),
	)
	return true
}
