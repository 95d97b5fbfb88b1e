package blob

import (
	"context"
	"testing"
)

func TestOpen_SelectsDriver(t *testing.T) {
	ctx := context.Background()

	mem, err := Open(ctx, Config{Driver: "MEMORY"})
	if err != nil || mem.Driver() != DriverMemory {
		t.Fatalf("memory driver: %v %v", mem, err)
	}

	fsStore, err := Open(ctx, Config{FSRoot: t.TempDir()})
	if err != nil || fsStore.Driver() != DriverFilesystem {
		t.Fatalf("default driver: %v %v", fsStore, err)
	}

	s3Store, err := Open(ctx, Config{Driver: DriverS3, S3: S3Config{Bucket: "b", AccessKeyID: "a", SecretAccessKey: "s"}})
	if err != nil || s3Store.Driver() != DriverS3 {
		t.Fatalf("s3 driver: %v %v", s3Store, err)
	}

	if _, err := Open(ctx, Config{Driver: DriverS3}); err == nil {
		t.Fatalf("expected missing bucket error")
	}
	if _, err := Open(ctx, Config{Driver: "ftp"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}
