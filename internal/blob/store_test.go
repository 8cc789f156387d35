package blob

import (
	"bytes"
	"context"
	"testing"
)

func TestPutGetRoundtrip(t *testing.T) {
	store := NewFSStore(t.TempDir(), 0)
	ctx := context.Background()
	data := []byte("archive contents")
	handle, err := store.Put(ctx, data)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if handle == "" {
		t.Fatalf("expected handle")
	}
	got, err := store.Get(ctx, handle)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("roundtrip mismatch")
	}
}

func TestPutIdempotentForSameContent(t *testing.T) {
	store := NewFSStore(t.TempDir(), 0)
	ctx := context.Background()
	h1, err := store.Put(ctx, []byte("same"))
	if err != nil {
		t.Fatal(err)
	}
	h2, err := store.Put(ctx, []byte("same"))
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Fatalf("expected identical handles, got %s and %s", h1, h2)
	}
}

func TestGetMissingHandle(t *testing.T) {
	store := NewFSStore(t.TempDir(), 0)
	if _, err := store.Get(context.Background(), "deadbeef"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.Get(context.Background(), "../escape"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for traversal, got %v", err)
	}
}

func TestPutEnforcesSizeCap(t *testing.T) {
	store := NewFSStore(t.TempDir(), 4)
	if _, err := store.Put(context.Background(), []byte("too large")); err == nil {
		t.Fatalf("expected size cap error")
	}
	if _, err := store.Put(context.Background(), nil); err == nil {
		t.Fatalf("expected empty archive error")
	}
}
