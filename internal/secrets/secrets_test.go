package secrets

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	root := t.TempDir()
	return NewStore(filepath.Join(root, "secrets.enc"), filepath.Join(root, "master.key")), root
}

func TestProviderKeyRoundTrip(t *testing.T) {
	store, root := newTestStore(t)
	if err := store.SetProviderKey("OpenAI", " sk-test "); err != nil {
		t.Fatalf("set key: %v", err)
	}
	key, err := store.ProviderKey("openai")
	if err != nil {
		t.Fatalf("get key: %v", err)
	}
	if key != "sk-test" {
		t.Fatalf("expected key roundtrip, got %q", key)
	}
	reopened := NewStore(filepath.Join(root, "secrets.enc"), filepath.Join(root, "master.key"))
	key, err = reopened.ProviderKey("openai")
	if err != nil || key != "sk-test" {
		t.Fatalf("expected key to survive reopen, got %q %v", key, err)
	}
}

func TestSecretsFileIsEncrypted(t *testing.T) {
	store, root := newTestStore(t)
	if err := store.SetProviderKey("anthropic", "sk-ant-plain"); err != nil {
		t.Fatalf("set key: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(root, "secrets.enc"))
	if err != nil {
		t.Fatalf("read secrets: %v", err)
	}
	if strings.Contains(string(data), "sk-ant-plain") {
		t.Fatalf("expected key to be encrypted on disk")
	}
	info, err := os.Stat(filepath.Join(root, "master.key"))
	if err != nil {
		t.Fatalf("stat master key: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected master key mode 0600, got %v", info.Mode().Perm())
	}
}

func TestClearProviderKey(t *testing.T) {
	store, _ := newTestStore(t)
	if err := store.SetProviderKey("google", "g-1"); err != nil {
		t.Fatalf("set key: %v", err)
	}
	if err := store.SetProviderKey("mistral", "m-1"); err != nil {
		t.Fatalf("set key: %v", err)
	}
	if err := store.ClearProviderKey("google"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if key, _ := store.ProviderKey("google"); key != "" {
		t.Fatalf("expected google key cleared, got %q", key)
	}
	ids, err := store.ConfiguredProviders()
	if err != nil {
		t.Fatalf("configured providers: %v", err)
	}
	if len(ids) != 1 || ids[0] != "mistral" {
		t.Fatalf("expected only mistral configured, got %v", ids)
	}
}

func TestInvalidMasterKey(t *testing.T) {
	store, root := newTestStore(t)
	if err := os.WriteFile(filepath.Join(root, "master.key"), []byte("short"), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	if err := store.SetProviderKey("openai", "sk"); !errors.Is(err, ErrInvalidMasterKey) {
		t.Fatalf("expected invalid master key error, got %v", err)
	}
}

func TestSetProviderKeyRequiresID(t *testing.T) {
	store, _ := newTestStore(t)
	if err := store.SetProviderKey("  ", "sk"); err == nil {
		t.Fatalf("expected error for empty provider id")
	}
}
