package storage

import (
	"context"
	"fmt"

	"github.com/tutorconnect/tutorconnect-api/pkg/config"
)

// New returns the object store selected by STORAGE_DRIVER.
func New(ctx context.Context, cfg config.StorageConfig) (ObjectStore, error) {
	switch cfg.Driver {
	case "", "local":
		return NewLocalStorage(cfg.LocalDir)
	case "minio":
		return NewMinioStorage(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
