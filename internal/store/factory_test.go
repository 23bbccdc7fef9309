package store

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/54b3r/botrag-go/internal/config"
)

func Test_Open_SQLite(t *testing.T) {
	t.Parallel()

	s, err := Open(context.Background(), config.StoreSettings{Driver: "sqlite", SQLitePath: ":memory:"}, 0,
		slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	if s.Name() != "sqlite" {
		t.Errorf("Name() = %q", s.Name())
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func Test_Open_Errors(t *testing.T) {
	t.Parallel()

	cases := map[string]config.StoreSettings{
		"unknown driver":    {Driver: "mongo"},
		"postgres no dsn":   {Driver: "postgres"},
		"supabase no creds": {Driver: "supabase"},
		"bad coercion":      {Driver: "sqlite", SQLitePath: ":memory:", CoerceInvalid: "clamp"},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if s, err := Open(context.Background(), cfg, 0, nil, nil); err == nil {
				_ = s.Close()
				t.Fatal("expected error")
			}
		})
	}
}
