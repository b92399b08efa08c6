package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ignite/analytics-import/internal/domain"
)

func localStore(t *testing.T) *Store {
	t.Helper()
	st, err := NewStore(context.Background(), Config{LocalDir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return st
}

func TestDelete_LocalFile(t *testing.T) {
	st := localStore(t)
	dir := t.TempDir()

	loc := domain.DeriveLocation(dir, "imp-1", "events.csv", false)
	if err := os.MkdirAll(filepath.Dir(loc.Key), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(loc.Key, []byte("session_id,created_at\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	deleted, err := st.Delete(context.Background(), loc)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !deleted {
		t.Error("expected deleted=true for an existing file")
	}
	if _, err := os.Stat(loc.Key); !os.IsNotExist(err) {
		t.Error("expected file removed from disk")
	}
}

func TestDelete_AbsentLocalFileIsSuccess(t *testing.T) {
	st := localStore(t)

	loc := domain.DeriveLocation(t.TempDir(), "imp-1", "never-written.csv", false)
	deleted, err := st.Delete(context.Background(), loc)
	if err != nil {
		t.Fatalf("expected absence to be success, got %v", err)
	}
	if deleted {
		t.Error("expected deleted=false for an absent file")
	}
}

func TestDelete_AbsentIsIdempotent(t *testing.T) {
	st := localStore(t)
	dir := t.TempDir()

	loc := domain.DeriveLocation(dir, "imp-1", "events.csv", false)
	if err := os.MkdirAll(filepath.Dir(loc.Key), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(loc.Key, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if deleted, err := st.Delete(context.Background(), loc); err != nil || !deleted {
		t.Fatalf("first delete: deleted=%v err=%v", deleted, err)
	}
	if deleted, err := st.Delete(context.Background(), loc); err != nil || deleted {
		t.Fatalf("second delete should be a no-op: deleted=%v err=%v", deleted, err)
	}
}

func TestDelete_EmptyKeyRejected(t *testing.T) {
	st := localStore(t)

	if _, err := st.Delete(context.Background(), domain.StorageLocation{}); err == nil {
		t.Error("expected error for empty key")
	}
}

func TestDelete_RemoteWithoutClient(t *testing.T) {
	st := localStore(t) // no bucket configured

	_, err := st.Delete(context.Background(), domain.StorageLocation{Key: "imports/x/y.csv", Remote: true})
	if err == nil {
		t.Error("expected error when remote storage is not configured")
	}
}
