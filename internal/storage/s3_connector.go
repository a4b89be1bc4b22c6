package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type S3ConnectorParams struct {
	Endpoint        string
	Region          string
	Bucket          string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
}

type S3Connector struct {
	client     *s3.Client
	downloader *manager.Downloader
	params     S3ConnectorParams
}

var _ Connector = (*S3Connector)(nil)

func NewS3Connector(ctx context.Context, params S3ConnectorParams) (*S3Connector, error) {
	client, err := initializeS3Client(S3ClientConfig{
		Endpoint:        params.Endpoint,
		Region:          params.Region,
		AccessKeyID:     params.AccessKeyID,
		SecretAccessKey: params.SecretAccessKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize s3 client: %w", err)
	}

	if err := validateParams(ctx, client, params.Bucket, params.Prefix); err != nil {
		return nil, fmt.Errorf("failed to validate s3 connector params: %w", err)
	}

	slog.Info("initialized s3 connector", "bucket", params.Bucket, "prefix", params.Prefix)

	return &S3Connector{
		client:     client,
		downloader: manager.NewDownloader(client),
		params:     params,
	}, nil
}

// basePrefix is the dataset root prefix, with a trailing slash when nonempty,
// so that object keys relative to it parse like local paths.
func (c *S3Connector) basePrefix() string {
	if c.params.Prefix == "" {
		return ""
	}
	return strings.TrimSuffix(c.params.Prefix, "/") + "/"
}

func (c *S3Connector) fullKey(key string) string {
	return c.basePrefix() + key
}

func (c *S3Connector) ListSplitDirs(ctx context.Context) ([]string, error) {
	base := c.basePrefix()

	paginator := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(c.params.Bucket),
		Prefix:    aws.String(base),
		Delimiter: aws.String("/"),
	})

	var dirs []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list split dirs in s3://%s/%s: %w", c.params.Bucket, base, err)
		}

		for _, prefix := range page.CommonPrefixes {
			dir := strings.TrimSuffix(strings.TrimPrefix(*prefix.Prefix, base), "/")
			dirs = append(dirs, dir)
		}
	}

	return dirs, nil
}

func (c *S3Connector) CreateScanTasks(ctx context.Context) ([]ScanTask, error) {
	dirs, err := c.ListSplitDirs(ctx)
	if err != nil {
		return nil, err
	}
	return scanTasksForDirs(dirs), nil
}

func (c *S3Connector) IterSplitObjects(ctx context.Context, splitDir string) ObjectIterator {
	return func(yield func(obj Object, err error) bool) {
		base := c.basePrefix()

		paginator := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
			Bucket: aws.String(c.params.Bucket),
			Prefix: aws.String(base + path.Clean(splitDir) + "/"),
		})

		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				yield(Object{}, err)
				return
			}

			for _, obj := range page.Contents {
				name := strings.TrimPrefix(*obj.Key, base)
				if !yield(Object{Name: name, Size: *obj.Size}, nil) {
					return
				}
			}
		}
	}
}

func (c *S3Connector) GetObject(ctx context.Context, key string) ([]byte, error) {
	fullKey := c.fullKey(key)

	headObj, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.params.Bucket),
		Key:    aws.String(fullKey),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object size for s3://%s/%s: %w", c.params.Bucket, fullKey, err)
	}

	buffer := manager.NewWriteAtBuffer(make([]byte, *headObj.ContentLength))

	if _, err := c.downloader.Download(ctx, buffer, &s3.GetObjectInput{
		Bucket: aws.String(c.params.Bucket),
		Key:    aws.String(fullKey),
	}); err != nil {
		return nil, fmt.Errorf("failed to download object s3://%s/%s: %w", c.params.Bucket, fullKey, err)
	}

	return buffer.Bytes(), nil
}
