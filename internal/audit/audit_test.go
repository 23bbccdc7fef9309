package audit

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/54b3r/botrag-go/internal/config"
)

func TestPresence(t *testing.T) {
	t.Parallel()
	if got := presence("something"); got != "set" {
		t.Errorf("expected 'set', got %q", got)
	}
	if got := presence(""); got != "unset" {
		t.Errorf("expected 'unset', got %q", got)
	}
}

func TestSanitiseConfigPath(t *testing.T) {
	t.Parallel()
	if got := sanitiseConfigPath(""); got != "none" {
		t.Errorf("expected 'none', got %q", got)
	}
	if got := sanitiseConfigPath("/tmp/config.yaml"); got != "/tmp/config.yaml" {
		t.Errorf("expected '/tmp/config.yaml', got %q", got)
	}
	home, err := os.UserHomeDir()
	if err == nil {
		p := home + "/.botrag/config.yaml"
		if got := sanitiseConfigPath(p); got != "~/.botrag/config.yaml" {
			t.Errorf("expected '~/.botrag/config.yaml', got %q", got)
		}
	}
}

func TestLogCommandStart_RedactsSecrets(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	s := config.Settings{}
	s.Embedding.Provider = "huggingface"
	s.Embedding.APIKey = "hf_supersecret"
	s.Store.Driver = "postgres"
	s.Store.DatabaseURL = "postgres://user:pw@db/rag"
	s.Server.APIKey = "server-secret"

	LogCommandStart(context.Background(), log, "serve", "", s)

	out := buf.String()
	for _, secret := range []string{"hf_supersecret", "user:pw", "server-secret"} {
		if strings.Contains(out, secret) {
			t.Errorf("audit line leaked %q: %s", secret, out)
		}
	}
	if !strings.Contains(out, `"command":"serve"`) {
		t.Errorf("missing command attr: %s", out)
	}
	if !strings.Contains(out, `"api_key":"set"`) {
		t.Errorf("missing api_key presence: %s", out)
	}
}
