package storage

import (
	"context"
	"fmt"
	"io"
)

type Object struct {
	Name string
	Size int64
}

// ObjectIterator yields objects in key order. Iteration errors are delivered
// through the yield callback, after which the iterator stops.
type ObjectIterator func(yield func(obj Object, err error) bool)

// ObjectStore holds pipeline artifacts like classifier files and analysis
// reports. Implementations are scoped to a single bucket or directory.
type ObjectStore interface {
	CreateBucket(ctx context.Context) error

	GetObject(ctx context.Context, key string) ([]byte, error)

	PutObject(ctx context.Context, key string, data io.Reader) error

	DeleteObjects(ctx context.Context, prefix string) error

	DownloadDir(ctx context.Context, src, dest string, overwrite bool) error

	UploadDir(ctx context.Context, src, dest string) error
}

type ObjectStoreConfig struct {
	Type StorageType

	LocalDir string

	S3 S3ClientConfig
}

func NewObjectStore(cfg ObjectStoreConfig) (ObjectStore, error) {
	switch cfg.Type {
	case LocalStorageType:
		return NewLocalObjectStore(cfg.LocalDir)

	case S3StorageType:
		return NewS3ObjectStore(cfg.S3)

	default:
		return nil, fmt.Errorf("unknown object store type: %s", cfg.Type)
	}
}
