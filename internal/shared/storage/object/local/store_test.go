package local

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
)

func TestSaveOpenDelete(t *testing.T) {
	store := New(t.TempDir())
	ctx := context.Background()

	key, size, mime, err := store.Save(ctx, "tenant-1", "job-1", "visit note.txt", strings.NewReader("Patient ambulates 50ft."))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if size != int64(len("Patient ambulates 50ft.")) {
		t.Fatalf("unexpected size %d", size)
	}
	if !strings.HasPrefix(mime, "text/plain") {
		t.Fatalf("unexpected mime %q", mime)
	}
	if !strings.HasSuffix(key, "/job-1_visit note.txt") {
		t.Fatalf("unexpected key %q", key)
	}

	rc, err := store.Open(ctx, key)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if !bytes.Equal(data, []byte("Patient ambulates 50ft.")) {
		t.Fatalf("unexpected content %q", data)
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Open(ctx, key); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not exist after delete, got %v", err)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("second delete should be a no-op, got %v", err)
	}
}

func TestRejectsTraversal(t *testing.T) {
	store := New(t.TempDir())
	if _, err := store.Open(context.Background(), "../secret"); err == nil {
		t.Fatalf("expected invalid key error")
	}
	if _, _, _, err := store.Save(context.Background(), "t", "j", "../x", strings.NewReader("x")); err == nil {
		t.Fatalf("expected invalid file name error")
	}
}
