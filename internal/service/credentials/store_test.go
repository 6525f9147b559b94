package credentials

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"sentioracle/internal/domain/models"
)

func TestFileStoreFallsBackWhenDirEmpty(t *testing.T) {
	store := NewFileStore("", "", map[models.Source]string{"news": "dev-key"}, "deadbeef")
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	got, err := store.CollectorCredential(context.Background(), "news")
	if err != nil {
		t.Fatalf("collector credential: %v", err)
	}
	if got != "dev-key" {
		t.Fatalf("expected fallback key, got %q", got)
	}

	key, err := store.SignerKey(context.Background())
	if err != nil {
		t.Fatalf("signer key: %v", err)
	}
	if string(key) != "deadbeef" {
		t.Fatalf("expected fallback signer key, got %q", key)
	}
}

func TestFileStoreOverridesFallbackFromDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "news.key"), []byte("rotated-key\n"), 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}
	signerFile := filepath.Join(dir, "signer.hex")
	if err := os.WriteFile(signerFile, []byte("cafebabe\n"), 0o600); err != nil {
		t.Fatalf("write signer file: %v", err)
	}

	store := NewFileStore(dir, signerFile, map[models.Source]string{"news": "dev-key"}, "deadbeef")
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	got, err := store.CollectorCredential(context.Background(), "news")
	if err != nil {
		t.Fatalf("collector credential: %v", err)
	}
	if got != "rotated-key" {
		t.Fatalf("expected file-backed key, got %q", got)
	}

	key, err := store.SignerKey(context.Background())
	if err != nil {
		t.Fatalf("signer key: %v", err)
	}
	if string(key) != "cafebabe" {
		t.Fatalf("expected file-backed signer key, got %q", key)
	}
}

func TestFileStoreReloadPicksUpRotation(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "news.key")
	if err := os.WriteFile(keyPath, []byte("key-v1"), 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}

	store := NewFileStore(dir, "", map[models.Source]string{"news": "dev-key"}, "")
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	if err := os.WriteFile(keyPath, []byte("key-v2"), 0o600); err != nil {
		t.Fatalf("rewrite key file: %v", err)
	}
	if err := store.Reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}

	got, err := store.CollectorCredential(context.Background(), "news")
	if err != nil {
		t.Fatalf("collector credential: %v", err)
	}
	if got != "key-v2" {
		t.Fatalf("expected rotated key after reload, got %q", got)
	}
}

func TestFileStoreUnknownSourceErrors(t *testing.T) {
	store := NewFileStore("", "", nil, "")
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := store.CollectorCredential(context.Background(), "unknown"); err == nil {
		t.Fatal("expected error for unconfigured source")
	}
}
