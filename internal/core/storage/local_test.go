package storage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalStoreWriteRead(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}

	ctx := context.Background()
	data := []byte("%PDF-1.7 fake")
	if err := s.Write(ctx, "uploads/doc-1/file.pdf", data); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := s.Read(ctx, "uploads/doc-1/file.pdf")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Read = %q, want %q", got, data)
	}
}

func TestLocalStoreReadMissing(t *testing.T) {
	s, _ := NewLocalStore(t.TempDir())
	if _, err := s.Read(context.Background(), "nope/missing.pdf"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLocalStoreDeleteTree(t *testing.T) {
	root := t.TempDir()
	s, _ := NewLocalStore(root)
	ctx := context.Background()

	_ = s.Write(ctx, "outputs/doc-1/page_001.jpg", []byte("a"))
	_ = s.Write(ctx, "outputs/doc-1/page_002.jpg", []byte("b"))
	_ = s.Write(ctx, "outputs/doc-2/page_001.jpg", []byte("c"))

	if err := s.DeleteTree(ctx, "outputs/doc-1"); err != nil {
		t.Fatalf("DeleteTree: %v", err)
	}

	if _, err := os.Stat(filepath.Join(root, "outputs/doc-1")); !os.IsNotExist(err) {
		t.Error("doc-1 tree still exists")
	}
	if _, err := s.Read(ctx, "outputs/doc-2/page_001.jpg"); err != nil {
		t.Errorf("unrelated tree was deleted: %v", err)
	}
}

func TestLocalStoreDeleteTreeMissingIsNoop(t *testing.T) {
	s, _ := NewLocalStore(t.TempDir())
	if err := s.DeleteTree(context.Background(), "outputs/never-existed"); err != nil {
		t.Fatalf("DeleteTree on missing prefix: %v", err)
	}
}

func TestNewLocalStoreEmptyRoot(t *testing.T) {
	if _, err := NewLocalStore(""); err == nil {
		t.Fatal("expected error for empty root")
	}
}
