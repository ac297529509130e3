package local

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestSaveOpenDelete(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)
	ctx := context.Background()

	payload := []byte("%PDF-1.4 minimal body")
	key, size, mimeType, err := store.Save(ctx, "session-1", "charter.pdf", "", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if size != int64(len(payload)) {
		t.Fatalf("expected size %d, got %d", len(payload), size)
	}
	if mimeType != "application/pdf" {
		t.Fatalf("expected sniffed application/pdf, got %q", mimeType)
	}

	rc, err := store.Open(ctx, key)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, _ := io.ReadAll(rc)
	_ = rc.Close()
	if !bytes.Equal(got, payload) {
		t.Fatalf("unexpected content %q", got)
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, key)); !os.IsNotExist(err) {
		t.Fatalf("expected file removed, stat err=%v", err)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("second Delete should be a no-op: %v", err)
	}
}

func TestSaveKeepsDeclaredContentType(t *testing.T) {
	store := New(t.TempDir())
	const docx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	_, _, mimeType, err := store.Save(context.Background(), "session-1", "policy.docx", docx, bytes.NewReader([]byte("PK\x03\x04")))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if mimeType != docx {
		t.Fatalf("expected declared type, got %q", mimeType)
	}
}

func TestOpenRejectsTraversal(t *testing.T) {
	store := New(t.TempDir())
	if _, err := store.Open(context.Background(), "../secret"); err == nil {
		t.Fatalf("expected traversal to be rejected")
	}
}
