package blob

import (
	"bytes"
	"context"
	"testing"
)

func TestOpenSelectsMemoryDriver(t *testing.T) {
	t.Setenv("CARBONCORE_BLOB_DRIVER", "memory")
	store, err := Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if store.Driver() != DriverMemory {
		t.Fatalf("expected memory driver, got %s", store.Driver())
	}
}

func TestOpenDefaultsToFilesystem(t *testing.T) {
	t.Setenv("CARBONCORE_BLOB_DRIVER", "")
	t.Setenv("CARBONCORE_BLOB_FS_ROOT", t.TempDir())
	store, err := Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if store.Driver() != DriverFilesystem {
		t.Fatalf("expected fs driver, got %s", store.Driver())
	}
	if _, err := store.Put(context.Background(), "k.txt", bytes.NewReader([]byte("v")), PutOptions{}); err != nil {
		t.Fatalf("put through facade: %v", err)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	t.Setenv("CARBONCORE_BLOB_DRIVER", "tape")
	if _, err := Open(context.Background()); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}

func TestOpenS3RequiresBucket(t *testing.T) {
	t.Setenv("CARBONCORE_BLOB_DRIVER", "s3")
	t.Setenv("CARBONCORE_BLOB_S3_BUCKET", "")
	if _, err := Open(context.Background()); err == nil {
		t.Fatalf("expected missing bucket error")
	}
}
