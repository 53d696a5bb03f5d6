package local

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"insight-backend/internal/shared/storage/object"
)

func TestSaveOpenDelete(t *testing.T) {
	ctx := context.Background()
	store := New(t.TempDir())

	key, size, mime, err := store.Save(ctx, "client-1", "orders.csv", strings.NewReader("order_id,amount\n1,10\n"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if size != 21 {
		t.Fatalf("expected 21 bytes, got %d", size)
	}
	if mime != object.ContentTypeCSV {
		t.Fatalf("unexpected mime %q", mime)
	}
	if !strings.HasSuffix(key, "_orders.csv") {
		t.Fatalf("unexpected key %q", key)
	}

	rc, err := store.Open(ctx, key)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "order_id,amount\n1,10\n" {
		t.Fatalf("unexpected content %q", data)
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Open(ctx, key); !errors.Is(err, object.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
}

func TestRejectsTraversal(t *testing.T) {
	store := New(t.TempDir())
	if _, err := store.Open(context.Background(), "../secret"); err == nil {
		t.Fatalf("expected traversal to be rejected")
	}
	if _, _, _, err := store.Save(context.Background(), "c", "../x.csv", strings.NewReader("a")); err == nil {
		t.Fatalf("expected bad file name to be rejected")
	}
}
