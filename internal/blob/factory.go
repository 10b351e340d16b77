// Package blob opens the configured archive store.
package blob

import (
	"context"
	"fmt"
	"os"

	"questionbank/internal/blob/core"
	"questionbank/internal/config"
	"questionbank/internal/infra/blob/fs"
	"questionbank/internal/infra/blob/memory"
	"questionbank/internal/infra/blob/s3"
)

// Open returns the blob store selected by cfg.Driver, or nil when the driver
// is empty (archiving disabled). S3 credentials come from AWS_ACCESS_KEY_ID /
// AWS_SECRET_ACCESS_KEY / AWS_SESSION_TOKEN or the default chain.
func Open(ctx context.Context, cfg config.Blob) (core.Store, error) {
	switch core.Driver(cfg.Driver) {
	case "":
		return nil, nil
	case core.DriverFilesystem:
		store, err := fs.New(cfg.FSRoot)
		if err != nil {
			return nil, err
		}
		return store, nil
	case core.DriverMemory:
		return memory.New(), nil
	case core.DriverS3:
		store, err := s3.New(ctx, s3.Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			PathStyle:       cfg.S3.PathStyle,
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", cfg.Driver)
	}
}
