package fs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"carboncore/internal/blob/core"
)

func newTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store
}

func TestStore_PutGetHeadListDelete(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)

	info, err := store.Put(ctx, "reports/run.csv", bytes.NewReader([]byte("year,trees\n")), core.PutOptions{ContentType: "text/csv", Metadata: map[string]string{"run_id": "r1"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "reports/run.csv" || info.Size != int64(len("year,trees\n")) {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := store.Put(ctx, "reports/run.csv", bytes.NewReader([]byte("x")), core.PutOptions{}); err == nil {
		t.Fatalf("expected duplicate failure")
	}

	h, err := store.Head(ctx, "reports/run.csv")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if h.ContentType != "text/csv" || h.Metadata["run_id"] != "r1" {
		t.Fatalf("head lost metadata: %+v", h)
	}

	g, rc, err := store.Get(ctx, "reports/run.csv")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	if err := rc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if string(b) != "year,trees\n" || g.ETag != h.ETag {
		t.Fatalf("unexpected get artifacts")
	}

	list, err := store.List(ctx, "reports/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Key != "reports/run.csv" {
		t.Fatalf("unexpected list %+v", list)
	}

	url, err := store.PresignURL(ctx, "reports/run.csv", core.SignedURLOptions{})
	if err != nil || !strings.Contains(url, "reports/run.csv") {
		t.Fatalf("presign url: %v %s", err, url)
	}

	ok, err := store.Delete(ctx, "reports/run.csv")
	if err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	ok, err = store.Delete(ctx, "reports/run.csv")
	if err != nil || ok {
		t.Fatalf("second delete should be false")
	}
}

func TestStore_PathTraversal(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	if _, err := store.Put(ctx, "../escape.txt", bytes.NewReader([]byte("x")), core.PutOptions{}); err == nil {
		t.Fatalf("expected traversal error")
	}
	if _, err := store.Put(ctx, "/abs.txt", bytes.NewReader([]byte("x")), core.PutOptions{}); err == nil {
		t.Fatalf("expected absolute error")
	}
	if _, err := store.Put(ctx, "", bytes.NewReader([]byte("x")), core.PutOptions{}); err == nil {
		t.Fatalf("expected empty key error")
	}
}

func TestStore_MetadataSidecar(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	if _, err := store.Put(ctx, "meta/data.bin", bytes.NewReader([]byte("abc")), core.PutOptions{ContentType: "application/octet-stream", Metadata: map[string]string{"a": "1"}}); err != nil {
		t.Fatalf("put: %v", err)
	}
	dataPath, metaPath, _ := store.pathFor("meta/data.bin")
	if _, err := os.Stat(dataPath); err != nil {
		t.Fatalf("expected data path: %v", err)
	}
	b, err := os.ReadFile(metaPath)
	if err != nil {
		t.Fatalf("read meta: %v", err)
	}
	if !bytes.Contains(b, []byte("application/octet-stream")) {
		t.Fatalf("meta missing content type")
	}
	if filepath.Ext(metaPath) != ".meta" {
		t.Fatalf("meta path extension mismatch")
	}
}

type errorReader struct{}

func (errorReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func TestStore_PutReadError(t *testing.T) {
	store := newTempStore(t)
	if _, err := store.Put(context.Background(), "bad.bin", errorReader{}, core.PutOptions{}); err == nil {
		t.Fatalf("expected copy error")
	}
}

func TestStore_ListSortedWithPrefix(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	for i := 2; i >= 0; i-- {
		k := "folder/f" + strconv.Itoa(i) + ".txt"
		if _, err := store.Put(ctx, k, bytes.NewReader([]byte("data")), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	if _, err := store.Put(ctx, "other/skip.txt", bytes.NewReader([]byte("data")), core.PutOptions{}); err != nil {
		t.Fatalf("put other: %v", err)
	}

	list, err := store.List(ctx, "folder/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 keys, got %d", len(list))
	}
	for i, info := range list {
		want := "folder/f" + strconv.Itoa(i) + ".txt"
		if info.Key != want {
			t.Fatalf("position %d: got %q, want %q", i, info.Key, want)
		}
	}
}

func TestStore_PresignRejectsNonGet(t *testing.T) {
	store := newTempStore(t)
	if _, err := store.Put(context.Background(), "k.txt", bytes.NewReader([]byte("v")), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.PresignURL(context.Background(), "k.txt", core.SignedURLOptions{Method: "PUT"}); err == nil {
		t.Fatalf("expected unsupported method error")
	}
}
