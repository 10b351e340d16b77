package blob

import (
	"context"
	"testing"

	"questionbank/internal/blob/core"
	"questionbank/internal/config"
)

func TestOpenDrivers(t *testing.T) {
	ctx := context.Background()

	store, err := Open(ctx, config.Blob{})
	if err != nil || store != nil {
		t.Fatalf("empty driver should disable archiving: %v %v", store, err)
	}

	store, err = Open(ctx, config.Blob{Driver: "memory"})
	if err != nil || store.Driver() != core.DriverMemory {
		t.Fatalf("memory: %v %v", store, err)
	}

	store, err = Open(ctx, config.Blob{Driver: "fs", FSRoot: t.TempDir()})
	if err != nil || store.Driver() != core.DriverFilesystem {
		t.Fatalf("fs: %v %v", store, err)
	}

	t.Setenv("AWS_ACCESS_KEY_ID", "AKIA")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "SECRET")
	store, err = Open(ctx, config.Blob{Driver: "s3", S3: config.S3{Bucket: "archive", Endpoint: "http://127.0.0.1:9000", PathStyle: true}})
	if err != nil || store.Driver() != core.DriverS3 {
		t.Fatalf("s3: %v %v", store, err)
	}

	if _, err := Open(ctx, config.Blob{Driver: "s3"}); err == nil {
		t.Fatalf("expected missing bucket error")
	}
	if _, err := Open(ctx, config.Blob{Driver: "gcs"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}
