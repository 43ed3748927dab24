package backend

import (
	"context"
	"path/filepath"
	"testing"

	"spendbook/internal/config"
	"spendbook/internal/docstore/memory"
	"spendbook/internal/docstore/sqlite"
	applog "spendbook/internal/log"
)

func TestCreateBackend(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(applog.Discard())

	t.Run("memory", func(t *testing.T) {
		res, err := f.CreateBackend(ctx, Config{Type: MemoryBackend, DataDirectory: t.TempDir()})
		if err != nil {
			t.Fatalf("CreateBackend() error = %v", err)
		}
		if _, ok := res.Store.(*memory.Store); !ok {
			t.Errorf("expected memory store, got %T", res.Store)
		}
		if err := res.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})

	t.Run("sqlite", func(t *testing.T) {
		res, err := f.CreateBackend(ctx, Config{
			Type:         SQLiteBackend,
			SQLiteDBPath: filepath.Join(t.TempDir(), "spendbook.db"),
		})
		if err != nil {
			t.Fatalf("CreateBackend() error = %v", err)
		}
		defer res.Close()
		if _, ok := res.Store.(*sqlite.Store); !ok {
			t.Errorf("expected sqlite store, got %T", res.Store)
		}
		if err := res.Ready(ctx); err != nil {
			t.Errorf("Ready() error = %v", err)
		}
	})

	t.Run("firestore without project", func(t *testing.T) {
		if _, err := f.CreateBackend(ctx, Config{Type: FirestoreBackend}); err == nil {
			t.Error("expected error without project id")
		}
	})

	t.Run("postgres without url", func(t *testing.T) {
		if _, err := f.CreateBackend(ctx, Config{Type: PostgresBackend}); err == nil {
			t.Error("expected error without database url")
		}
	})

	t.Run("invalid type", func(t *testing.T) {
		if _, err := f.CreateBackend(ctx, Config{Type: "sheets"}); err == nil {
			t.Error("expected error for unknown backend")
		}
	})
}

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Error("expected error for nil config")
	}

	cfg, err := FromAppConfig(&config.Config{
		StoreBackend:       "firestore",
		FirestoreProjectID: "demo",
		FirestoreDatabase:  "(default)",
		DataDir:            "data",
	})
	if err != nil {
		t.Fatalf("FromAppConfig() error = %v", err)
	}
	if cfg.Type != FirestoreBackend || cfg.FirestoreProjectID != "demo" || cfg.DataDirectory != "data" {
		t.Errorf("unexpected backend config: %+v", cfg)
	}

	if _, err := FromAppConfig(&config.Config{StoreBackend: "nope"}); err == nil {
		t.Error("expected error for invalid backend")
	}
}

func TestGetBackendTypeStrings(t *testing.T) {
	got := GetBackendTypeStrings()
	want := []string{"memory", "sqlite", "firestore", "postgres"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}

func TestReadyWithoutPinger(t *testing.T) {
	res := &BackendResult{Store: memory.New()}
	if err := res.Ready(context.Background()); err != nil {
		t.Errorf("Ready() error = %v", err)
	}
	var nilRes *BackendResult
	if err := nilRes.Close(); err != nil {
		t.Errorf("nil Close() error = %v", err)
	}
}
