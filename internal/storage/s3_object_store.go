package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type S3ObjectStore struct {
	client     *s3.Client
	downloader *manager.Downloader
	uploader   *manager.Uploader
	cfg        S3ClientConfig
}

var _ ObjectStore = (*S3ObjectStore)(nil)

func NewS3ObjectStore(cfg S3ClientConfig) (*S3ObjectStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	client, err := initializeS3Client(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize s3 client: %w", err)
	}

	return &S3ObjectStore{
		client:     client,
		downloader: manager.NewDownloader(client),
		uploader:   manager.NewUploader(client),
		cfg:        cfg,
	}, nil
}

// CreateBucket is idempotent: a bucket that already exists, whoever owns it,
// is not an error.
func (s *S3ObjectStore) CreateBucket(ctx context.Context) error {
	_, err := s.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(s.cfg.Bucket),
	})
	if err == nil {
		slog.Info("bucket created successfully", "bucket", s.cfg.Bucket)
		return nil
	}

	var existErr *types.BucketAlreadyExists
	var ownedErr *types.BucketAlreadyOwnedByYou
	if errors.As(err, &existErr) || errors.As(err, &ownedErr) {
		slog.Info("bucket already exists", "bucket", s.cfg.Bucket)
		return nil
	}

	return fmt.Errorf("failed to create bucket %s: %w", s.cfg.Bucket, err)
}

func (s *S3ObjectStore) GetObject(ctx context.Context, key string) ([]byte, error) {
	// Sizing the buffer up front lets the manager download parts concurrently.
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object size for s3://%s/%s: %w", s.cfg.Bucket, key, err)
	}

	buffer := manager.NewWriteAtBuffer(make([]byte, *head.ContentLength))
	if _, err := s.downloader.Download(ctx, buffer, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	}); err != nil {
		return nil, fmt.Errorf("failed to download object s3://%s/%s: %w", s.cfg.Bucket, key, err)
	}

	return buffer.Bytes(), nil
}

func (s *S3ObjectStore) PutObject(ctx context.Context, key string, data io.Reader) error {
	if _, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
		Body:   data,
	}); err != nil {
		return fmt.Errorf("failed to upload object to s3://%s/%s: %w", s.cfg.Bucket, key, err)
	}

	slog.Info("object uploaded successfully", "bucket", s.cfg.Bucket, "key", key)
	return nil
}

func (s *S3ObjectStore) DeleteObjects(ctx context.Context, prefix string) error {
	for obj, err := range s.iterObjects(ctx, prefix) {
		if err != nil {
			return fmt.Errorf("failed to iterate objects in s3://%s/%s: %w", s.cfg.Bucket, prefix, err)
		}

		if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.cfg.Bucket),
			Key:    aws.String(obj.Name),
		}); err != nil {
			return fmt.Errorf("failed to delete object s3://%s/%s: %w", s.cfg.Bucket, obj.Name, err)
		}
	}

	slog.Info("objects deleted successfully", "bucket", s.cfg.Bucket, "prefix", prefix)
	return nil
}

func (s *S3ObjectStore) DownloadDir(ctx context.Context, src, dest string, overwrite bool) error {
	if _, err := os.Stat(dest); err == nil {
		if !overwrite {
			return fmt.Errorf("destination %s already exists and overwrite is false", dest)
		}
		if err := os.RemoveAll(dest); err != nil {
			return fmt.Errorf("failed to remove existing destination: %w", err)
		}
	}

	if err := os.MkdirAll(dest, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dest, err)
	}

	prefix := ensureTrailingSlash(src)
	for obj, err := range s.iterObjects(ctx, prefix) {
		if err != nil {
			return fmt.Errorf("error downloading directory %s/%s to %s: %w", s.cfg.Bucket, prefix, dest, err)
		}

		localPath := filepath.Join(dest, strings.TrimPrefix(obj.Name, prefix))
		if err := s.downloadObject(ctx, obj.Name, localPath); err != nil {
			return fmt.Errorf("error downloading directory %s/%s to %s: %w", s.cfg.Bucket, prefix, dest, err)
		}
	}

	return nil
}

func (s *S3ObjectStore) UploadDir(ctx context.Context, src, dest string) error {
	prefix := ensureTrailingSlash(dest)

	err := filepath.WalkDir(src, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("failed to walk directory %s: %w", src, err)
		}
		if entry.IsDir() {
			return nil
		}

		key := filepath.ToSlash(filepath.Join(prefix, strings.TrimPrefix(path, src)))

		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()

		return s.PutObject(ctx, key, file)
	})
	if err != nil {
		return fmt.Errorf("error uploading directory %s to %s/%s: %w", src, s.cfg.Bucket, prefix, err)
	}

	return nil
}

func (s *S3ObjectStore) iterObjects(ctx context.Context, prefix string) ObjectIterator {
	return func(yield func(obj Object, err error) bool) {
		paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
			Bucket: aws.String(s.cfg.Bucket),
			Prefix: aws.String(prefix),
		})

		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				yield(Object{}, err)
				return
			}

			for _, obj := range page.Contents {
				if !yield(Object{Name: *obj.Key, Size: *obj.Size}, nil) {
					return
				}
			}
		}
	}
}

func (s *S3ObjectStore) downloadObject(ctx context.Context, key, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create directory for download %s: %w", filepath.Dir(filename), err)
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", filename, err)
	}
	defer file.Close()

	if _, err := s.downloader.Download(ctx, file, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("failed to download object s3://%s/%s to %s: %w", s.cfg.Bucket, key, filename, err)
	}

	return nil
}

func ensureTrailingSlash(p string) string {
	if strings.HasSuffix(p, "/") {
		return p
	}
	return p + "/"
}
