package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"testing"

	"carboncore/internal/blob/core"
)

func TestStore_AllBranches(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, _, err := store.Get(ctx, "missing"); err == nil {
		t.Fatalf("expected missing get error")
	}
	if _, err := store.Head(ctx, "missing"); err == nil {
		t.Fatalf("expected missing head error")
	}
	if ok, err := store.Delete(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected delete false")
	}

	if _, err := store.Put(ctx, "reports/r1.json", bytes.NewReader([]byte(`{}`)), core.PutOptions{ContentType: "application/json", Metadata: map[string]string{"run_id": "r1"}}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Put(ctx, "reports/r1.json", bytes.NewReader([]byte("v2")), core.PutOptions{}); err == nil {
		t.Fatalf("expected duplicate put error")
	}

	info, rc, err := store.Get(ctx, "reports/r1.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(b) != `{}` || info.ContentType != "application/json" {
		t.Fatalf("unexpected get result: %q %+v", b, info)
	}

	if list, err := store.List(ctx, ""); err != nil || len(list) != 1 {
		t.Fatalf("list all: %v %d", err, len(list))
	}
	if list, err := store.List(ctx, "reports/"); err != nil || len(list) != 1 {
		t.Fatalf("list prefix: %v %d", err, len(list))
	}
	if list, err := store.List(ctx, "other/"); err != nil || len(list) != 0 {
		t.Fatalf("list miss: %v %d", err, len(list))
	}
	if _, err := store.PresignURL(ctx, "reports/r1.json", core.SignedURLOptions{}); err == nil {
		t.Fatalf("expected unsupported presign")
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, fmt.Errorf("fail") }

func TestStore_PutReadErrorAndDriver(t *testing.T) {
	store := New()
	if store.Driver() != core.DriverMemory {
		t.Fatalf("expected memory driver")
	}
	if _, err := store.Put(context.Background(), "bad", failingReader{}, core.PutOptions{}); err == nil {
		t.Fatalf("expected read error")
	}
}

func TestStore_GetReturnsIndependentCopy(t *testing.T) {
	store := New()
	ctx := context.Background()
	if _, err := store.Put(ctx, "k", bytes.NewReader([]byte("orig")), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}

	_, rc, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	first, _ := io.ReadAll(rc)
	_ = rc.Close()
	first[0] = 'X'

	_, rc, err = store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	second, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(second) != "orig" {
		t.Fatalf("stored bytes mutated: %q", second)
	}
}
