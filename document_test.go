package blogvault

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func setupTestDocs(t *testing.T) *LocalDocumentStore {
	t.Helper()
	s, err := NewLocalDocumentStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create document store: %v", err)
	}
	return s
}

func TestLoadCreatesMissingDocument(t *testing.T) {
	s := setupTestDocs(t)
	ctx := context.Background()

	def := []byte(`{"folders": []}`)
	data, rev, err := s.Load(ctx, "gallery.json", def)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if string(data) != string(def) {
		t.Errorf("Load = %q, want default %q", data, def)
	}
	if rev == AnyRevision {
		t.Error("expected a concrete revision for a freshly created document")
	}

	// The default must be persisted, not just returned.
	onDisk, err := os.ReadFile(filepath.Join(s.dir, "gallery.json"))
	if err != nil {
		t.Fatalf("document not written: %v", err)
	}
	if string(onDisk) != string(def) {
		t.Errorf("on disk = %q, want %q", onDisk, def)
	}
}

func TestLoadReturnsStoredDocument(t *testing.T) {
	s := setupTestDocs(t)
	ctx := context.Background()

	stored := []byte(`[{"id":"1"}]`)
	if _, err := s.Save(ctx, "posts.json", stored, AnyRevision); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, _, err := s.Load(ctx, "posts.json", []byte("[]"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if string(data) != string(stored) {
		t.Errorf("Load = %q, want %q", data, stored)
	}
}

func TestSaveWithStaleRevisionConflicts(t *testing.T) {
	s := setupTestDocs(t)
	ctx := context.Background()

	_, rev, err := s.Load(ctx, "posts.json", []byte("[]"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// A second writer gets in first.
	if _, err := s.Save(ctx, "posts.json", []byte(`[{"id":"1"}]`), AnyRevision); err != nil {
		t.Fatalf("concurrent Save failed: %v", err)
	}

	_, err = s.Save(ctx, "posts.json", []byte(`[{"id":"2"}]`), rev)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("Save with stale revision: err = %v, want ErrConflict", err)
	}

	// The racing write must survive.
	data, _, err := s.Load(ctx, "posts.json", []byte("[]"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if string(data) != `[{"id":"1"}]` {
		t.Errorf("stored document = %q, want the first writer's version", data)
	}
}

func TestSaveWithCurrentRevisionSucceeds(t *testing.T) {
	s := setupTestDocs(t)
	ctx := context.Background()

	_, rev, err := s.Load(ctx, "posts.json", []byte("[]"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	newRev, err := s.Save(ctx, "posts.json", []byte(`[{"id":"1"}]`), rev)
	if err != nil {
		t.Fatalf("Save with current revision failed: %v", err)
	}
	if newRev == rev {
		t.Error("revision should change after a write")
	}
}

func TestWithConflictRetryRetriesConflictsOnly(t *testing.T) {
	calls := 0
	err := withConflictRetry(func() error {
		calls++
		if calls < 3 {
			return ErrConflict
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}

	calls = 0
	err = withConflictRetry(func() error {
		calls++
		return ErrConflict
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict after exhausted retries, got %v", err)
	}
	if calls != conflictRetries {
		t.Errorf("calls = %d, want %d", calls, conflictRetries)
	}

	calls = 0
	err = withConflictRetry(func() error {
		calls++
		return ErrNotFound
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if calls != 1 {
		t.Errorf("non-conflict errors must not retry, calls = %d", calls)
	}
}

func TestDecodeDocumentReportsCorruption(t *testing.T) {
	var v []Post
	err := decodeDocument("posts.json", []byte("{not json"), &v)
	if !errors.Is(err, ErrCorruptDocument) {
		t.Fatalf("err = %v, want ErrCorruptDocument", err)
	}
}
